package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"appserver-client/internal/adapter/mockserver"
	"appserver-client/internal/domain"
	"appserver-client/internal/infra/config"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "appserver.yaml")
	content := "logger:\n  level: error\n  output: discard\nretry:\n  base_delay: 1ms\n  max_delay: 5ms\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, args []string, stdin string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", writeTestConfig(t)}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func startMockServer(t *testing.T, opts ...mockserver.Option) *mockserver.Server {
	t.Helper()
	srv := newMockServer("127.0.0.1:0", "cli-test/1.0", slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	select {
	case <-srv.Ready():
	case err := <-errCh:
		cancel()
		t.Fatalf("start mock server: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		<-errCh
	})
	return srv
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func TestMethodsCommandTable(t *testing.T) {
	out, _, err := runCLI(t, []string{"methods"}, "")
	if err != nil {
		t.Fatalf("methods: %v", err)
	}
	requireContains(t, out, "DIRECTION")
	requireContains(t, out, "METHOD")
	requireContains(t, out, "thread/start")
	requireContains(t, out, "item/commandExecution/requestApproval")
	requireContains(t, out, "turn/completed")
}

func TestMethodsCommandJSON(t *testing.T) {
	out, _, err := runCLI(t, []string{"methods", "--json"}, "")
	if err != nil {
		t.Fatalf("methods --json: %v", err)
	}
	var got methodCatalogue
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if len(got.Client) != len(domain.ClientMethods) {
		t.Errorf("client methods = %d, want %d", len(got.Client), len(domain.ClientMethods))
	}
	if len(got.ServerRequest) != len(domain.ServerRequestMethods) {
		t.Errorf("server requests = %d, want %d", len(got.ServerRequest), len(domain.ServerRequestMethods))
	}
}

func TestCallAgainstMockServer(t *testing.T) {
	srv := startMockServer(t)

	out, _, err := runCLI(t, []string{"--url", srv.URL(), "call", "model/list"}, "")
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	requireContains(t, out, `"mock-model"`)
}

func TestCallParamsFromStdin(t *testing.T) {
	srv := startMockServer(t)

	out, _, err := runCLI(t, []string{"--url", srv.URL(), "call", "turn/start", "-"}, `{"threadId":"t-1","input":"hello"}`)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	requireContains(t, out, `"turn-1"`)
}

func TestCallUnknownMethodWarnsAndFails(t *testing.T) {
	srv := startMockServer(t)

	_, stderr, err := runCLI(t, []string{"--url", srv.URL(), "call", "nope/missing"}, "")
	if err == nil {
		t.Fatal("expected an error for an unhandled method")
	}
	var rpcErr *domain.RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Code != domain.RPCCodeMethodNotFound {
		t.Fatalf("expected method-not-found RPC error, got %v", err)
	}
	requireContains(t, stderr, "not a known client method")
}

func TestCallInvalidParams(t *testing.T) {
	_, _, err := runCLI(t, []string{"--url", "ws://127.0.0.1:1/", "call", "thread/start", "{not json"}, "")
	if err == nil || !strings.Contains(err.Error(), "parse params") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestWatchPrintsAndDeclinesPeerRequests(t *testing.T) {
	answered := make(chan error, 1)
	srv := startMockServer(t, mockserver.WithOnConnect(func(ctx context.Context, p *mockserver.Peer) {
		params := domain.Object(map[string]domain.JSONValue{"threadId": domain.String("t-1")})
		_ = p.Notify("thread/started", &params)
		_, err := p.Request(ctx, domain.MethodToolCall, nil)
		answered <- err
		_ = p.Close()
	}))

	out, _, err := runCLI(t, []string{"--url", srv.URL(), "watch"}, "")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	requireContains(t, out, "connected to cli-test/1.0")
	requireContains(t, out, `thread/started {"threadId":"t-1"}`)
	requireContains(t, out, "item/tool/call [srv-1]")
	requireContains(t, out, "exit code unknown")

	var rpcErr *domain.RPCError
	if err := <-answered; !errors.As(err, &rpcErr) || rpcErr.Code != domain.RPCCodeMethodNotFound {
		t.Fatalf("expected the peer request to be declined, got %v", err)
	}
}

func TestDoctorPassesAgainstMockServer(t *testing.T) {
	srv := startMockServer(t)

	out, _, err := runCLI(t, []string{"--url", srv.URL(), "doctor"}, "")
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	requireContains(t, out, "[PASS] Transport target")
	requireContains(t, out, "[PASS] Handshake: cli-test/1.0 answered")
	requireContains(t, out, "0 failed")
}

func TestDoctorReportsUnreachableServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	out, _, err := runCLI(t, []string{"--url", "ws://" + addr + "/", "doctor"}, "")
	if err == nil {
		t.Fatal("expected doctor to fail")
	}
	requireContains(t, out, "[FAIL] Transport target")
	requireContains(t, out, "[FAIL] Handshake")
}

func TestCheckConfigFileMissingIsWarning(t *testing.T) {
	fn := checkConfigFile(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	result := fn(context.Background(), nil)
	if result.Status != StatusWarn {
		t.Errorf("expected WARN for missing config, got %s", result.Status)
	}
	if result.Fix == "" {
		t.Error("expected fix suggestion for missing config")
	}
}

func TestCheckConfigFileLoadError(t *testing.T) {
	fn := checkConfigFile("appserver.yaml", &config.ValidationError{Errors: []string{"bad transport"}})
	if result := fn(context.Background(), nil); result.Status != StatusFail {
		t.Errorf("expected FAIL for load error, got %s", result.Status)
	}
}

func TestRequireConfigSkipsWithoutConfig(t *testing.T) {
	called := false
	fn := requireConfig(func(context.Context, *config.Config) CheckResult {
		called = true
		return CheckResult{Status: StatusPass}
	})
	if result := fn(context.Background(), nil); result.Status != StatusSkip {
		t.Errorf("expected SKIP, got %s", result.Status)
	}
	if called {
		t.Error("check ran without a config")
	}
}

func TestEncryptValue(t *testing.T) {
	t.Setenv("APPSERVER_CONFIG_KEY", "test-passphrase")

	out, _, err := runCLI(t, []string{"encrypt-value", "s3cret"}, "")
	if err != nil {
		t.Fatalf("encrypt-value: %v", err)
	}
	enc := strings.TrimSpace(out)
	if !strings.HasPrefix(enc, config.SecretPrefix) {
		t.Fatalf("expected %q prefix, got %q", config.SecretPrefix, enc)
	}
	plain, err := config.DecryptValue(strings.TrimPrefix(enc, config.SecretPrefix), "test-passphrase")
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if plain != "s3cret" {
		t.Errorf("round trip = %q, want s3cret", plain)
	}
}

func TestEncryptValueRequiresKey(t *testing.T) {
	t.Setenv("APPSERVER_CONFIG_KEY", "")
	if _, _, err := runCLI(t, []string{"encrypt-value", "x"}, ""); err == nil {
		t.Fatal("expected an error without APPSERVER_CONFIG_KEY")
	}
}

func TestApplyFlagsExecSplitsCommandLine(t *testing.T) {
	execFlag := "  /opt/bin/codex app-server --listen stdio "
	ctx := newCommandContext(nil, nil, &execFlag)
	cfg := config.Defaults()
	if !ctx.applyFlags(cfg) {
		t.Fatal("expected applyFlags to report a change")
	}
	if cfg.Connection.Transport != config.TransportPipe {
		t.Errorf("transport = %q, want pipe", cfg.Connection.Transport)
	}
	if cfg.Connection.Executable != "/opt/bin/codex" {
		t.Errorf("executable = %q", cfg.Connection.Executable)
	}
	if got := strings.Join(cfg.Connection.Args, " "); got != "app-server --listen stdio" {
		t.Errorf("args = %q", got)
	}
}

func TestFormatInbound(t *testing.T) {
	code := 3
	params := domain.Object(map[string]domain.JSONValue{"a": domain.Number(1)})
	cases := []struct {
		name string
		msg  domain.InboundMessage
		want string
	}{
		{"notification", domain.InboundMessage{Kind: domain.InboundNotification, Notification: &domain.Notification{Method: "turn/started", Params: &params}}, `turn/started {"a":1}`},
		{"notification without params", domain.InboundMessage{Kind: domain.InboundNotification, Notification: &domain.Notification{Method: "turn/started"}}, "turn/started {}"},
		{"request", domain.InboundMessage{Kind: domain.InboundRequest, Request: &domain.PeerRequest{ID: domain.IntID(9), Method: "item/tool/call"}}, "item/tool/call [9]"},
		{"diagnostic", domain.InboundMessage{Kind: domain.InboundDiagnostic, Diagnostic: "stderr line"}, "stderr line"},
		{"disconnected", domain.InboundMessage{Kind: domain.InboundDisconnected, ExitCode: &code}, "exit code 3"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			requireContains(t, formatInbound(tc.msg, false), tc.want)
		})
	}
}
