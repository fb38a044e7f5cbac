// Package supervisor runs the engine subprocess, streams its output line by
// line and terminates it on request.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/enginefarm/unreal-adaptor/internal/ansi"
)

// Stream identifies where a line of output came from.
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
	// Terminal is the combined stream of a PTY-attached process.
	Terminal Stream = "pty"
)

// ExitCodeUnavailable is reported while no exit status has been recorded.
const ExitCodeUnavailable = 0

const (
	maxLineSize = 1024 * 1024
	// killWait bounds the wait for the kernel to reap a SIGKILLed process.
	killWait = 5 * time.Second
)

// LineFunc receives each output line with escape sequences removed. It runs
// on a reader goroutine and must not block.
type LineFunc func(stream Stream, line string)

// Command describes the process to spawn.
type Command struct {
	Path string
	Args []string
	Env  []string
	Dir  string

	// PTY attaches the process to a pseudo terminal so engines that buffer
	// non-interactive output still stream line by line.
	PTY bool
}

// Process is a running (or exited) subprocess.
type Process struct {
	cmd    *exec.Cmd
	pgid   int
	logger *slog.Logger

	readers errgroup.Group
	exited  chan struct{}
	done    chan struct{}
	running atomic.Bool

	mu       sync.Mutex
	exitCode int
	waitErr  error
}

// Spawn starts the command and begins streaming its output to onLine.
func Spawn(ctx context.Context, c Command, onLine LineFunc) (*Process, error) {
	if onLine == nil {
		onLine = func(Stream, string) {}
	}

	cmd := exec.Command(c.Path, c.Args...)
	cmd.Env = c.Env
	cmd.Dir = c.Dir

	p := &Process{
		cmd:      cmd,
		logger:   slog.Default().With(slog.String("component", "engine")),
		exited:   make(chan struct{}),
		done:     make(chan struct{}),
		exitCode: ExitCodeUnavailable,
	}

	var err error
	if c.PTY {
		err = p.startPTY(onLine)
	} else {
		err = p.startPipes(onLine)
	}

	if err != nil {
		return nil, err
	}

	p.running.Store(true)
	p.pgid = cmd.Process.Pid

	p.logger.InfoContext(ctx, "Engine process started",
		slog.String("event.type", "engine.start"),
		slog.String("process.executable", c.Path),
		slog.Int("process.pid", cmd.Process.Pid),
		slog.Bool("process.pty", c.PTY),
	)

	go p.wait()

	return p, nil
}

func (p *Process) startPipes(onLine LineFunc) error {
	outR, outW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	errR, errW, err := os.Pipe()
	if err != nil {
		_ = outR.Close()
		_ = outW.Close()

		return fmt.Errorf("create stderr pipe: %w", err)
	}

	p.cmd.Stdout = outW
	p.cmd.Stderr = errW
	p.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	startErr := p.cmd.Start()

	// The child holds its own copies of the write ends.
	_ = outW.Close()
	_ = errW.Close()

	if startErr != nil {
		_ = outR.Close()
		_ = errR.Close()

		return fmt.Errorf("start %s: %w", p.cmd.Path, startErr)
	}

	p.readers.Go(func() error { return p.scan(outR, Stdout, onLine) })
	p.readers.Go(func() error { return p.scan(errR, Stderr, onLine) })

	return nil
}

func (p *Process) startPTY(onLine LineFunc) error {
	ptmx, err := pty.StartWithSize(p.cmd, &pty.Winsize{Rows: 50, Cols: 250})
	if err != nil {
		return fmt.Errorf("start %s with pty: %w", p.cmd.Path, err)
	}

	p.readers.Go(func() error { return p.scan(ptmx, Terminal, onLine) })

	return nil
}

func (p *Process) scan(r io.ReadCloser, stream Stream, onLine LineFunc) error {
	defer r.Close()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := ansi.CleanLine(scanner.Text())
		p.logger.Info(line, slog.String("stream", string(stream)))
		onLine(stream, line)
	}

	err := scanner.Err()
	// A PTY master reports EIO once the child side is gone.
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, syscall.EIO) {
		return fmt.Errorf("read %s: %w", stream, err)
	}

	return nil
}

func (p *Process) wait() {
	err := p.cmd.Wait()

	code := ExitCodeUnavailable
	if state := p.cmd.ProcessState; state != nil {
		code = state.ExitCode()
		if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			code = -int(ws.Signal())
		}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		err = nil
	}

	p.mu.Lock()
	p.exitCode = code
	p.waitErr = err
	p.mu.Unlock()

	p.running.Store(false)
	close(p.exited)

	p.logger.Info("Engine process exited",
		slog.String("event.type", "engine.exit"),
		slog.Int("process.exit_code", code),
	)

	if readErr := p.readers.Wait(); readErr != nil {
		p.logger.Error("Reading engine output failed",
			slog.String("event.type", "engine.output.error"),
			slog.String("error", readErr.Error()),
		)
	}

	close(p.done)
}

// Pid returns the process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// IsRunning reports whether the process has not exited yet.
func (p *Process) IsRunning() bool {
	return p.running.Load()
}

// ExitCode returns the exit code after the process exited, the negated
// signal number if it was killed by a signal, or ExitCodeUnavailable.
func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.exitCode
}

// Wait blocks until the process exited and its output was fully read, or
// until ctx is done.
func (p *Process) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()

		return p.waitErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Terminate stops the process group. With a positive grace it sends SIGTERM
// and waits up to grace before SIGKILL; otherwise it kills immediately.
// Terminating an exited process is a no-op.
func (p *Process) Terminate(grace time.Duration) error {
	if !p.IsRunning() {
		return nil
	}

	if grace > 0 {
		p.logger.Debug("Stopping engine process",
			slog.String("event.type", "engine.terminate"),
			slog.Duration("grace", grace),
		)

		p.signal(unix.SIGTERM)

		select {
		case <-p.exited:
			return nil
		case <-time.After(grace):
		}
	}

	p.logger.Debug("Killing engine process",
		slog.String("event.type", "engine.kill"),
	)

	p.signal(unix.SIGKILL)

	select {
	case <-p.exited:
		return nil
	case <-time.After(killWait):
		return fmt.Errorf("engine process %d did not exit after SIGKILL", p.Pid())
	}
}

func (p *Process) signal(sig unix.Signal) {
	if p.pgid > 0 {
		if err := unix.Kill(-p.pgid, sig); err == nil || errors.Is(err, unix.ESRCH) {
			return
		}
	}

	_ = p.cmd.Process.Signal(sig)
}
