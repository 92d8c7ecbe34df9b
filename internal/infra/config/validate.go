package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateConnection(cfg, ve)
	validateClient(cfg, ve)
	validateRetry(cfg, ve)
	validateCircuitBreaker(cfg, ve)
	validateRateLimit(cfg, ve)
	validateMockServer(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateConnection(cfg *Config, ve *ValidationError) {
	c := cfg.Connection
	if c.ConnectTimeout <= 0 {
		ve.Add("connection.connect_timeout must be > 0")
	}
	switch c.Transport {
	case TransportWebSocket:
		if c.URL == "" {
			ve.Add("connection.url is required for the websocket transport")
			return
		}
		u, err := url.Parse(c.URL)
		if err != nil {
			ve.Add("connection.url %q: %v", c.URL, err)
			return
		}
		if s := strings.ToLower(u.Scheme); s != "ws" && s != "wss" {
			ve.Add("connection.url %q must use ws:// or wss://", c.URL)
		}
		if u.Hostname() == "" {
			ve.Add("connection.url %q must include a host", c.URL)
		}
	case TransportPipe:
		if c.Executable == "" {
			ve.Add("connection.executable is required for the pipe transport")
		}
		for k := range c.Env {
			if k == "" || strings.Contains(k, "=") {
				ve.Add("connection.env has invalid variable name %q", k)
			}
		}
	default:
		ve.Add("connection.transport %q must be %q or %q", c.Transport, TransportWebSocket, TransportPipe)
	}
}

func validateClient(cfg *Config, ve *ValidationError) {
	if cfg.Client.Name == "" {
		ve.Add("client.name must not be empty")
	}
	if cfg.Client.Version == "" {
		ve.Add("client.version must not be empty")
	}
}

func validateRetry(cfg *Config, ve *ValidationError) {
	r := cfg.Retry
	if r.MaxAttempts < 1 {
		ve.Add("retry.max_attempts must be >= 1")
	}
	if r.BaseDelay <= 0 {
		ve.Add("retry.base_delay must be > 0")
	}
	if r.MaxDelay < r.BaseDelay {
		ve.Add("retry.max_delay must be >= retry.base_delay")
	}
}

func validateCircuitBreaker(cfg *Config, ve *ValidationError) {
	cb := cfg.CircuitBreaker
	if !cb.Enabled {
		return
	}
	if cb.MaxFailures == 0 {
		ve.Add("circuit_breaker.max_failures must be > 0 when enabled")
	}
	if cb.Timeout <= 0 {
		ve.Add("circuit_breaker.timeout must be > 0 when enabled")
	}
	if cb.Interval < 0 {
		ve.Add("circuit_breaker.interval must not be negative")
	}
}

func validateRateLimit(cfg *Config, ve *ValidationError) {
	rl := cfg.RateLimit
	if !rl.Enabled {
		return
	}
	if rl.RequestsPerSecond <= 0 {
		ve.Add("rate_limit.requests_per_second must be > 0 when enabled")
	}
	if rl.Burst < 1 {
		ve.Add("rate_limit.burst must be >= 1 when enabled")
	}
}

func validateMockServer(cfg *Config, ve *ValidationError) {
	if cfg.MockServer.Addr == "" {
		return
	}
	if _, _, err := net.SplitHostPort(cfg.MockServer.Addr); err != nil {
		ve.Add("mock_server.addr %q: %v", cfg.MockServer.Addr, err)
	}
}

var (
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	validLogFormats = map[string]bool{"text": true, "json": true}
	validExporters  = map[string]bool{"": true, "noop": true, "stdout": true}
)

func validateLogger(cfg *Config, ve *ValidationError) {
	if lvl := strings.ToLower(cfg.Logger.Level); lvl != "" && !validLogLevels[lvl] {
		ve.Add("logger.level %q is not one of debug, info, warn, error", cfg.Logger.Level)
	}
	if f := strings.ToLower(cfg.Logger.Format); f != "" && !validLogFormats[f] {
		ve.Add("logger.format %q must be text or json", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !validExporters[cfg.Tracer.Exporter] {
		ve.Add("tracer.exporter %q must be noop or stdout", cfg.Tracer.Exporter)
	}
}
