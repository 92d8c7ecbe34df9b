package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"appserver-client/internal/infra/config"
	"appserver-client/internal/infra/logger"
	"appserver-client/pkg/appserver"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
	StatusSkip CheckStatus = "SKIP"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(ctx context.Context, cfg *config.Config) CheckResult
}

func newDoctorCommand(cmdCtx *commandContext) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:         "doctor",
		Short:       "Check the configuration and whether the app-server answers initialize",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := cmdCtx.configPath()
			cfg, cfgErr := config.Load(cfgPath)
			if cfgErr == nil {
				cmdCtx.applyFlags(cfg)
			}

			checks := []Check{
				{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
				{Name: "Transport target", Fn: requireConfig(checkTransportTarget)},
				{Name: "Handshake", Fn: requireConfig(checkHandshake(timeout))},
			}
			return runDoctor(cmd.Context(), cmd.OutOrStdout(), cfg, checks)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Handshake timeout")
	return cmd
}

// runDoctor executes all health checks and reports results.
func runDoctor(ctx context.Context, out io.Writer, cfg *config.Config, checks []Check) error {
	colorize := shouldColorize(out)

	fmt.Fprintln(out, "appserverctl doctor")
	fmt.Fprintln(out, strings.Repeat("=", 50))
	fmt.Fprintln(out)

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(ctx, cfg)
		result.Name = check.Name

		fmt.Fprintf(out, "  %s %s: %s\n", statusIcon(result.Status, colorize), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Fprintf(out, "      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("-", 50))
	fmt.Fprintf(out, "Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		return fmt.Errorf("%d check(s) failed", fail)
	}
	return nil
}

func statusIcon(s CheckStatus, colorize bool) string {
	switch s {
	case StatusPass:
		return paint("[PASS]", colorize, text.FgGreen)
	case StatusWarn:
		return paint("[WARN]", colorize, text.FgYellow)
	case StatusFail:
		return paint("[FAIL]", colorize, text.FgRed)
	case StatusSkip:
		return paint("[SKIP]", colorize, text.FgHiBlack)
	default:
		return "[????]"
	}
}

func requireConfig(fn func(context.Context, *config.Config) CheckResult) func(context.Context, *config.Config) CheckResult {
	return func(ctx context.Context, cfg *config.Config) CheckResult {
		if cfg == nil {
			return CheckResult{Status: StatusSkip, Message: "no usable configuration"}
		}
		return fn(ctx, cfg)
	}
}

// checkConfigFile reports whether the config file exists and loads. A missing
// file is only a warning since the defaults are usable.
func checkConfigFile(cfgPath string, cfgErr error) func(context.Context, *config.Config) CheckResult {
	return func(context.Context, *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     "Check " + cfgPath + " syntax and permissions (0600)",
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("%s not found, using defaults", cfgPath),
				Fix:     "Create " + cfgPath + " or pass --config",
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

// checkTransportTarget verifies the executable resolves or the WebSocket
// endpoint accepts TCP connections.
func checkTransportTarget(ctx context.Context, cfg *config.Config) CheckResult {
	conn := cfg.Connection
	switch conn.Transport {
	case config.TransportPipe:
		path, err := exec.LookPath(conn.Executable)
		if err != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("executable %q not found", conn.Executable),
				Fix:     "Set connection.executable or pass --exec",
			}
		}
		// `env codex app-server` style launches depend on the wrapped command.
		if filepath.Base(path) == "env" && len(conn.Args) > 0 {
			if _, err := exec.LookPath(conn.Args[0]); err != nil {
				return CheckResult{
					Status:  StatusFail,
					Message: fmt.Sprintf("%q not found in PATH", conn.Args[0]),
					Fix:     "Install it or point connection.executable at the binary",
				}
			}
		}
		return CheckResult{Status: StatusPass, Message: "launches " + strings.Join(append([]string{path}, conn.Args...), " ")}

	case config.TransportWebSocket:
		u, err := url.Parse(conn.URL)
		if err != nil || u.Host == "" {
			return CheckResult{Status: StatusFail, Message: fmt.Sprintf("invalid url %q", conn.URL)}
		}
		host := u.Host
		if u.Port() == "" {
			port := "80"
			if u.Scheme == "wss" {
				port = "443"
			}
			host = net.JoinHostPort(u.Hostname(), port)
		}
		dialer := net.Dialer{Timeout: conn.ConnectTimeout}
		c, err := dialer.DialContext(ctx, "tcp", host)
		if err != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("cannot reach %s: %v", host, err),
				Fix:     "Start the app-server (or `appserverctl mock-server`) and check connection.url",
			}
		}
		_ = c.Close()
		return CheckResult{Status: StatusPass, Message: "reachable at " + host}

	default:
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("unknown transport %q", conn.Transport)}
	}
}

// checkHandshake connects and runs initialize/initialized.
func checkHandshake(timeout time.Duration) func(context.Context, *config.Config) CheckResult {
	return func(ctx context.Context, cfg *config.Config) CheckResult {
		log, closeLog, err := logger.New(config.LoggerConfig{Level: "error", Format: cfg.Logger.Format, Output: "discard"})
		if err != nil {
			return CheckResult{Status: StatusFail, Message: err.Error()}
		}
		defer closeLog()

		client, err := appserver.NewFromConfig(cfg, appserver.WithLogger(log))
		if err != nil {
			return CheckResult{Status: StatusFail, Message: err.Error()}
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		start := time.Now()
		if err := client.Connect(ctx); err != nil {
			return CheckResult{Status: StatusFail, Message: fmt.Sprintf("connect: %v", err)}
		}
		res, err := handshake(ctx, client, cfg)
		if err != nil {
			return CheckResult{Status: StatusFail, Message: err.Error()}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("%s answered in %s", res.UserAgent, time.Since(start).Round(time.Millisecond)),
		}
	}
}
