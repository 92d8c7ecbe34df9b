package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport names accepted in connection.transport.
const (
	TransportWebSocket = "websocket"
	TransportPipe      = "pipe"
)

// Config is the top-level client configuration.
type Config struct {
	Connection     ConnectionConfig     `yaml:"connection"`
	Client         ClientConfig         `yaml:"client"`
	Retry          RetryConfig          `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	MockServer     MockServerConfig     `yaml:"mock_server"`
	Logger         LoggerConfig         `yaml:"logger"`
	Tracer         TracerConfig         `yaml:"tracer"`
	Includes       []string             `yaml:"includes,omitempty"`
}

// ConnectionConfig selects and configures the transport.
type ConnectionConfig struct {
	Transport string `yaml:"transport"` // "websocket" or "pipe"

	// WebSocket
	URL            string        `yaml:"url,omitempty"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// Pipe
	Executable string            `yaml:"executable,omitempty"`
	Args       []string          `yaml:"args,omitempty"`
	WorkDir    string            `yaml:"work_dir,omitempty"`
	Env        map[string]string `yaml:"env,omitempty"` // replaces the inherited environment; values may be "enc:..."
}

// ClientConfig is sent to the peer in the initialize call.
type ClientConfig struct {
	Name            string   `yaml:"name"`
	Title           string   `yaml:"title,omitempty"`
	Version         string   `yaml:"version"`
	ExperimentalAPI bool     `yaml:"experimental_api"`
	OptOutMethods   []string `yaml:"opt_out_notification_methods,omitempty"`
}

// RetryConfig holds the backoff policy for rate-limited calls.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// CircuitBreakerConfig holds circuit breaker settings for outbound calls.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// RateLimitConfig throttles outbound calls.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// MockServerConfig configures `appserverctl mock-server`.
type MockServerConfig struct {
	Addr      string `yaml:"addr"`
	UserAgent string `yaml:"user_agent"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// Defaults returns a Config that launches `codex app-server` over pipes.
func Defaults() *Config {
	return &Config{
		Connection: ConnectionConfig{
			Transport:      TransportPipe,
			URL:            "ws://127.0.0.1:4500",
			ConnectTimeout: 5 * time.Second,
			Executable:     "/usr/bin/env",
			Args:           []string{"codex", "app-server"},
		},
		Client: ClientConfig{
			Name:    "appserverctl",
			Title:   "App Server CLI",
			Version: "0.1.0",
		},
		Retry: RetryConfig{
			MaxAttempts: 5,
			BaseDelay:   200 * time.Millisecond,
			MaxDelay:    5 * time.Second,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:     false,
			MaxFailures: 5,
			Timeout:     30 * time.Second,
			Interval:    60 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerSecond: 20,
			Burst:             5,
		},
		MockServer: MockServerConfig{
			Addr:      "127.0.0.1:4500",
			UserAgent: "mock-app-server/0.1.0",
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts
// secrets. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return finish(cfg)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	// First pass collects the includes list.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if len(cfg.Includes) > 0 {
		visited := map[string]bool{absPath: true}
		if err := processIncludes(cfg, filepath.Dir(absPath), visited, 0); err != nil {
			return nil, err
		}

		// Second pass so the main file wins over its includes.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (second pass): %w", err)
		}
		cfg.Includes = nil
	}

	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("APPSERVER_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps APPSERVER_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("APPSERVER_TRANSPORT"); v != "" {
		cfg.Connection.Transport = v
	}
	if v := os.Getenv("APPSERVER_URL"); v != "" {
		cfg.Connection.URL = v
	}
	if v := os.Getenv("APPSERVER_EXECUTABLE"); v != "" {
		cfg.Connection.Executable = v
	}
	if v := os.Getenv("APPSERVER_ARGS"); v != "" {
		cfg.Connection.Args = splitAndTrim(v, ",")
	}
	if v := os.Getenv("APPSERVER_WORK_DIR"); v != "" {
		cfg.Connection.WorkDir = v
	}
	if v := os.Getenv("APPSERVER_CONNECT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Connection.ConnectTimeout = d
		}
	}
	if v := os.Getenv("APPSERVER_CLIENT_NAME"); v != "" {
		cfg.Client.Name = v
	}
	if v := os.Getenv("APPSERVER_EXPERIMENTAL_API"); v != "" {
		cfg.Client.ExperimentalAPI = v == "true"
	}
	if v := os.Getenv("APPSERVER_RETRY_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retry.MaxAttempts = n
		}
	}
	if v := os.Getenv("APPSERVER_MOCK_ADDR"); v != "" {
		cfg.MockServer.Addr = v
	}
	if v := os.Getenv("APPSERVER_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("APPSERVER_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("APPSERVER_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("APPSERVER_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
}

// splitAndTrim splits s by sep and trims whitespace from each element.
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// validatePermissions rejects config files writable by group or others.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	if mode&0o022 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
