package config

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   []string // substrings expected among the errors; nil means valid
	}{
		{
			name:   "defaults",
			mutate: func(*Config) {},
		},
		{
			name: "websocket ok",
			mutate: func(c *Config) {
				c.Connection.Transport = TransportWebSocket
				c.Connection.URL = "wss://example.com:8443/app?x=1"
			},
		},
		{
			name: "websocket without url",
			mutate: func(c *Config) {
				c.Connection.Transport = TransportWebSocket
				c.Connection.URL = ""
			},
			want: []string{"connection.url is required"},
		},
		{
			name: "websocket http scheme",
			mutate: func(c *Config) {
				c.Connection.Transport = TransportWebSocket
				c.Connection.URL = "http://example.com"
			},
			want: []string{"ws:// or wss://"},
		},
		{
			name: "websocket without host",
			mutate: func(c *Config) {
				c.Connection.Transport = TransportWebSocket
				c.Connection.URL = "ws:///path"
			},
			want: []string{"must include a host"},
		},
		{
			name: "pipe without executable",
			mutate: func(c *Config) {
				c.Connection.Executable = ""
			},
			want: []string{"connection.executable"},
		},
		{
			name: "pipe bad env name",
			mutate: func(c *Config) {
				c.Connection.Env = map[string]string{"A=B": "x"}
			},
			want: []string{"invalid variable name"},
		},
		{
			name: "unknown transport",
			mutate: func(c *Config) {
				c.Connection.Transport = "grpc"
			},
			want: []string{`"grpc"`},
		},
		{
			name: "zero timeout",
			mutate: func(c *Config) {
				c.Connection.ConnectTimeout = 0
			},
			want: []string{"connect_timeout"},
		},
		{
			name: "client identity",
			mutate: func(c *Config) {
				c.Client.Name = ""
				c.Client.Version = ""
			},
			want: []string{"client.name", "client.version"},
		},
		{
			name: "retry bounds",
			mutate: func(c *Config) {
				c.Retry.MaxAttempts = 0
				c.Retry.BaseDelay = 0
				c.Retry.MaxDelay = -1
			},
			want: []string{"retry.max_attempts", "retry.base_delay", "retry.max_delay"},
		},
		{
			name: "breaker only checked when enabled",
			mutate: func(c *Config) {
				c.CircuitBreaker.MaxFailures = 0
			},
		},
		{
			name: "breaker enabled",
			mutate: func(c *Config) {
				c.CircuitBreaker.Enabled = true
				c.CircuitBreaker.MaxFailures = 0
				c.CircuitBreaker.Timeout = 0
			},
			want: []string{"circuit_breaker.max_failures", "circuit_breaker.timeout"},
		},
		{
			name: "rate limit enabled",
			mutate: func(c *Config) {
				c.RateLimit.Enabled = true
				c.RateLimit.RequestsPerSecond = 0
				c.RateLimit.Burst = 0
			},
			want: []string{"rate_limit.requests_per_second", "rate_limit.burst"},
		},
		{
			name: "mock server addr",
			mutate: func(c *Config) {
				c.MockServer.Addr = "no-port"
			},
			want: []string{"mock_server.addr"},
		},
		{
			name: "logger and tracer",
			mutate: func(c *Config) {
				c.Logger.Level = "verbose"
				c.Logger.Format = "xml"
				c.Tracer.Exporter = "jaeger"
			},
			want: []string{"logger.level", "logger.format", "tracer.exporter"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := Validate(cfg)

			if tt.want == nil {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}
			ve, ok := err.(*ValidationError)
			if !ok {
				t.Fatalf("expected *ValidationError, got %T (%v)", err, err)
			}
			if len(ve.Errors) != len(tt.want) {
				t.Errorf("got %d errors, want %d: %v", len(ve.Errors), len(tt.want), ve.Errors)
			}
			joined := ve.Error()
			for _, w := range tt.want {
				if !strings.Contains(joined, w) {
					t.Errorf("missing %q in %s", w, joined)
				}
			}
		})
	}
}

func TestValidationErrorFormat(t *testing.T) {
	ve := &ValidationError{}
	if ve.HasErrors() {
		t.Fatal("fresh ValidationError has errors")
	}
	ve.Add("first %d", 1)
	ve.Add("second")
	want := "config validation failed:\n  - first 1\n  - second"
	if ve.Error() != want {
		t.Errorf("Error() = %q, want %q", ve.Error(), want)
	}
}
