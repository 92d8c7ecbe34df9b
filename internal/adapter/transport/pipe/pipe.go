// Package pipe runs the app-server as a child process and exchanges
// newline-delimited JSON over its stdin and stdout. Lines written to stderr
// are surfaced as diagnostics.
package pipe

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"appserver-client/internal/domain"
)

const (
	// maxLineSize bounds a single stdout or stderr line.
	maxLineSize     = 10 * 1024 * 1024
	eventBufferSize = 64
	stderrTailSize  = 16 * 1024
)

// LaunchConfig describes the app-server process.
type LaunchConfig struct {
	Executable string
	Args       []string
	WorkDir    string
	// Env replaces the inherited environment when non-empty.
	Env map[string]string
}

// DefaultLaunchConfig runs `codex app-server` found on PATH.
func DefaultLaunchConfig() LaunchConfig {
	return LaunchConfig{
		Executable: "/usr/bin/env",
		Args:       []string{"codex", "app-server"},
	}
}

// Option configures a Transport.
type Option func(*Transport)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) { t.logger = logger }
}

// Transport is a process-backed domain.Transport. It is single-use.
type Transport struct {
	cfg    LaunchConfig
	logger *slog.Logger

	mu      sync.Mutex
	started bool
	closing bool
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	writeMu sync.Mutex

	stderrTail *tailBuffer

	events    chan domain.TransportEvent
	stop      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once
}

// New returns an unstarted transport for cfg.
func New(cfg LaunchConfig, opts ...Option) *Transport {
	t := &Transport{
		cfg:        cfg,
		logger:     slog.Default(),
		stderrTail: newTailBuffer(stderrTailSize),
		events:     make(chan domain.TransportEvent, eventBufferSize),
		stop:       make(chan struct{}),
		loopDone:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name implements domain.Transport.
func (t *Transport) Name() string { return "pipe" }

// StderrTail returns the most recent stderr output of the process.
func (t *Transport) StderrTail() string { return t.stderrTail.String() }

// Events implements domain.Transport.
func (t *Transport) Events() <-chan domain.TransportEvent { return t.events }

// Connect starts the process. The process is not bound to ctx; it runs
// until Close or until it exits on its own.
func (t *Transport) Connect(ctx context.Context) error {
	const op = "pipe.Connect"
	if !supported {
		return domain.NewClientError(op, domain.ErrUnsupportedTransport, "process pipes are unavailable on this platform")
	}
	if err := ctx.Err(); err != nil {
		return domain.WrapOp(op, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return domain.NewClientError(op, domain.ErrAlreadyConnected, "")
	}
	t.started = true

	cmd := exec.Command(t.cfg.Executable, t.cfg.Args...)
	cmd.Dir = t.cfg.WorkDir
	if len(t.cfg.Env) > 0 {
		cmd.Env = envList(t.cfg.Env)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%s: stdin pipe: %w", op, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%s: stdout pipe: %w", op, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("%s: stderr pipe: %w", op, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%s: start %q: %w", op, t.cfg.Executable, err)
	}

	t.cmd = cmd
	t.stdin = stdin
	t.logger.Debug("app-server process started", "pid", cmd.Process.Pid, "executable", t.cfg.Executable)

	go t.run(stdout, stderr)
	return nil
}

func envList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// run drains stdout and stderr, then reaps the process and reports its
// exit status as the final event.
func (t *Transport) run(stdout, stderr io.Reader) {
	defer close(t.loopDone)
	defer close(t.events)

	var g errgroup.Group
	g.Go(func() error {
		err := scanLines(stdout, func(line string) {
			t.emit(domain.TransportEvent{Kind: domain.TransportMessage, Text: line})
		})
		if err != nil {
			// an oversized line leaves the stream unrecoverable
			t.kill()
			return fmt.Errorf("stdout: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		err := scanLines(stderr, func(line string) {
			_, _ = t.stderrTail.Write([]byte(line + "\n"))
			t.emit(domain.TransportEvent{Kind: domain.TransportDiagnostic, Text: line})
		})
		if err != nil {
			t.emit(domain.TransportEvent{Kind: domain.TransportDiagnostic, Text: "stderr stream failed: " + err.Error()})
		}
		return nil
	})
	readErr := g.Wait()

	waitErr := t.cmd.Wait()
	exitCode := exitCodeOf(t.cmd, waitErr)
	if readErr != nil {
		t.logger.Warn("app-server output stream failed", "error", readErr)
	}
	if exitCode != nil && *exitCode != 0 {
		t.logger.Warn("app-server process exited abnormally", "exit_code", *exitCode, "stderr_tail", t.stderrTail.String())
	} else {
		t.logger.Debug("app-server process exited", "exit_code", exitCode, "error", waitErr)
	}

	t.emit(domain.TransportEvent{Kind: domain.TransportClosed, ExitCode: exitCode, Err: readErr})
}

func scanLines(r io.Reader, fn func(string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		fn(scanner.Text())
	}
	err := scanner.Err()
	if errors.Is(err, io.ErrClosedPipe) {
		return nil
	}
	return err
}

func exitCodeOf(cmd *exec.Cmd, waitErr error) *int {
	if cmd.ProcessState == nil {
		return nil
	}
	code := cmd.ProcessState.ExitCode()
	if code < 0 {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return nil
		}
	}
	return &code
}

func (t *Transport) emit(ev domain.TransportEvent) {
	select {
	case t.events <- ev:
	case <-t.stop:
	}
}

// Send writes text followed by a newline to the process's stdin.
func (t *Transport) Send(_ context.Context, text []byte) error {
	const op = "pipe.Send"
	t.mu.Lock()
	stdin, closing := t.stdin, t.closing
	t.mu.Unlock()
	if stdin == nil || closing {
		return domain.NewClientError(op, domain.ErrNotConnected, "")
	}

	line := make([]byte, 0, len(text)+1)
	line = append(line, text...)
	line = append(line, '\n')

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := stdin.Write(line); err != nil {
		return domain.NewClientError(op, domain.ErrNotConnected, err.Error())
	}
	return nil
}

func (t *Transport) kill() {
	t.mu.Lock()
	cmd := t.cmd
	t.mu.Unlock()
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

// Close closes stdin, kills the process and waits for it to be reaped.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closing = true
		stdin, cmd := t.stdin, t.cmd
		t.mu.Unlock()

		close(t.stop)
		if cmd == nil {
			return
		}
		_ = stdin.Close()
		t.kill()
		<-t.loopDone
	})
	return nil
}

var _ domain.Transport = (*Transport)(nil)
