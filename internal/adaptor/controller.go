// Package adaptor implements the lifecycle controller that runs an engine
// session for a job host: it starts the IPC server, launches the engine,
// feeds it actions and turns its log output into progress, completion and
// failure.
package adaptor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/enginefarm/unreal-adaptor/internal/action"
	"github.com/enginefarm/unreal-adaptor/internal/classify"
	"github.com/enginefarm/unreal-adaptor/internal/handler"
	"github.com/enginefarm/unreal-adaptor/internal/ipc"
	"github.com/enginefarm/unreal-adaptor/internal/observability"
	"github.com/enginefarm/unreal-adaptor/internal/pathmap"
	"github.com/enginefarm/unreal-adaptor/internal/supervisor"
)

const tracerName = "github.com/enginefarm/unreal-adaptor/internal/adaptor"

// outputDrainTimeout bounds the wait for buffered engine output after the
// engine exited.
const outputDrainTimeout = time.Second

// Server is the IPC server a session exposes its action queue through.
type Server interface {
	ServeForever() error
	Address() string
	Shutdown(ctx context.Context) error
}

// Process is a running engine.
type Process interface {
	IsRunning() bool
	Terminate(grace time.Duration) error
	ExitCode() int
	Wait(ctx context.Context) error
}

// ServerFactory creates the IPC server for a session.
type ServerFactory func(queue *action.Queue, rules pathmap.Rules) Server

// SpawnFunc launches the engine.
type SpawnFunc func(ctx context.Context, cmd supervisor.Command, onLine supervisor.LineFunc) (Process, error)

// Lifecycle is the contract a job host drives.
type Lifecycle interface {
	OnStart(ctx context.Context, initData map[string]any) error
	OnRun(ctx context.Context, runData map[string]any) error
	OnStop(ctx context.Context) error
	OnCancel(ctx context.Context) error
	OnCleanup(ctx context.Context) error
}

// Options configures a Controller. Zero values select production defaults.
type Options struct {
	Config    Config
	Reporter  StatusReporter
	Validator *Validator
	Logger    *slog.Logger
	NewServer ServerFactory
	Spawn     SpawnFunc
	Environ   func() []string
}

// Controller runs one engine session. It is not reusable: after cleanup a
// new Controller is needed for the next session.
type Controller struct {
	cfg       Config
	reporter  StatusReporter
	validator *Validator
	logger    *slog.Logger
	newServer ServerFactory
	spawn     SpawnFunc
	environ   func() []string

	queue      *action.Queue
	classifier *classify.Classifier

	cleanupMu sync.Mutex

	mu         sync.Mutex
	state      State
	server     Server
	serverDone chan struct{}
	proc       Process
	faultErr   error
	stopped    bool

	// Written by the output reader goroutines.
	rendering  atomic.Bool
	failure    atomic.Pointer[stagedFailure]
	cleaningUp atomic.Bool
}

type stagedFailure struct {
	err error
}

var _ Lifecycle = (*Controller)(nil)

// New creates a controller in the Idle state.
func New(opts Options) (*Controller, error) {
	c := &Controller{
		cfg:       opts.Config.withIntervalDefaults(),
		reporter:  opts.Reporter,
		validator: opts.Validator,
		logger:    opts.Logger,
		newServer: opts.NewServer,
		spawn:     opts.Spawn,
		environ:   opts.Environ,
		queue:     action.NewQueue(),
		state:     StateIdle,
	}

	if c.reporter == nil {
		c.reporter = discardReporter{}
	}

	if c.validator == nil {
		v, err := defaultValidator()
		if err != nil {
			return nil, err
		}

		c.validator = v
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}

	c.logger = c.logger.With(slog.String("component", "adaptor"))

	if c.newServer == nil {
		socketDir := c.cfg.SocketDir
		logger := c.logger

		c.newServer = func(q *action.Queue, rules pathmap.Rules) Server {
			return ipc.NewServer(q, ipc.Options{SocketDir: socketDir, Rules: rules, Logger: logger})
		}
	}

	if c.spawn == nil {
		c.spawn = func(ctx context.Context, cmd supervisor.Command, onLine supervisor.LineFunc) (Process, error) {
			return supervisor.Spawn(ctx, cmd, onLine)
		}
	}

	if c.environ == nil {
		c.environ = os.Environ
	}

	c.classifier = classify.New(handler.Select(handler.NameBase).Rules, classifierSink{c: c})

	return c, nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// IsRendering reports whether a run is waiting for the engine to complete.
func (c *Controller) IsRendering() bool {
	return c.rendering.Load()
}

// Queue returns the session's action queue.
func (c *Controller) Queue() *action.Queue {
	return c.queue
}

// OnStart validates the init payload, starts the IPC server, launches the
// engine and waits until the engine has drained the bootstrap queue.
func (c *Controller) OnStart(ctx context.Context, initData map[string]any) (err error) {
	ctx, span := observability.Tracer(tracerName).Start(ctx, "adaptor.start")
	defer func() { endSpan(span, err) }()

	if state := c.State(); state != StateIdle {
		return fmt.Errorf("%w: cannot start from %s", ErrInvalidState, state)
	}

	if err := c.validator.ValidateInit(initData); err != nil {
		return err
	}

	projectPath, _ := initData["project_path"].(string)

	rules, err := pathmap.FromPayload(initData["path_mapping_rules"])
	if err != nil {
		return &ValidationError{Payload: "init data", Err: err}
	}

	clientScript, err := c.cfg.Engine.ResolveClientScript()
	if err != nil {
		return err
	}

	span.SetAttributes(attribute.String("unreal.project_path", projectPath))

	if err := c.advance(StateStarting); err != nil {
		return err
	}

	c.reporter.ReportProgress(0)
	c.reporter.ReportStatus("Initializing Unreal Engine")

	addr, err := c.startServer(rules)
	if err != nil {
		return c.fault(err)
	}

	c.queue.Enqueue(action.New(action.SetHandler, map[string]any{"handler": handler.NameBase}), false)

	env := supervisor.SetEnv(c.environ(), ipc.SocketEnv, addr)
	env = supervisor.AppendPathList(env, "PYTHONPATH", c.cfg.Engine.SearchPaths(clientScript)...)

	cmd := supervisor.Command{
		Path: c.cfg.Engine.Executable,
		Args: c.cfg.Engine.Args(projectPath, clientScript),
		Env:  env,
		PTY:  c.cfg.Engine.PTY,
	}

	proc, err := c.spawn(ctx, cmd, c.handleLine)
	if err != nil {
		return c.fault(fmt.Errorf("start engine: %w", err))
	}

	if err := c.adopt(ctx, proc); err != nil {
		return err
	}

	if err := c.advance(StateAwaitingClientInit); err != nil {
		return err
	}

	if err := c.waitForEngineInit(ctx); err != nil {
		return c.fault(err)
	}

	return c.advance(StateReady)
}

// stoppingLocked reports whether cleanup has begun. c.mu must be held.
func (c *Controller) stoppingLocked() bool {
	return c.stopped || c.cleaningUp.Load()
}

// advance moves OnStart forward unless cleanup has begun.
func (c *Controller) advance(s State) error {
	c.mu.Lock()
	if c.stoppingLocked() {
		c.mu.Unlock()
		return ErrSessionStopped
	}

	prev := c.state
	c.state = s
	c.mu.Unlock()

	c.logStateChange(prev, s)

	return nil
}

// adopt records proc as the session's engine. When cleanup already ran
// without it, the engine is killed instead.
func (c *Controller) adopt(ctx context.Context, proc Process) error {
	c.mu.Lock()
	if !c.stoppingLocked() {
		c.proc = proc
		c.mu.Unlock()

		return nil
	}
	c.mu.Unlock()

	c.logger.Warn("Session stopped while Unreal was starting. Terminating.",
		slog.String("event.type", "adaptor.start.stopped"),
	)

	if err := proc.Terminate(0); err != nil {
		c.logger.Error("Failed to terminate engine",
			slog.String("event.type", "adaptor.start.terminate_error"),
			slog.String("error", err.Error()),
		)
	}

	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.EngineEndTimeout)
	defer cancel()

	if err := proc.Wait(waitCtx); err != nil {
		c.logger.Warn("Engine output did not finish",
			slog.String("event.type", "adaptor.start.wait_error"),
			slog.String("error", err.Error()),
		)
	}

	return ErrSessionStopped
}

func (c *Controller) startServer(rules pathmap.Rules) (string, error) {
	srv := c.newServer(c.queue, rules)
	done := make(chan struct{})

	c.mu.Lock()
	if c.stoppingLocked() {
		c.mu.Unlock()
		return "", ErrSessionStopped
	}

	c.server = srv
	c.serverDone = done
	c.mu.Unlock()

	go func() {
		defer close(done)

		if err := srv.ServeForever(); err != nil {
			c.logger.Error("IPC server stopped with error",
				slog.String("event.type", "adaptor.server.error"),
				slog.String("error", err.Error()),
			)
		}
	}()

	deadline := time.Now().Add(c.cfg.ServerStartTimeout)
	for srv.Address() == "" && time.Now().Before(deadline) && !c.stopping() {
		time.Sleep(c.cfg.ServerPollInterval)
	}

	if c.stopping() {
		return "", ErrSessionStopped
	}

	if addr := srv.Address(); addr != "" {
		return addr, nil
	}

	return "", &StartupTimeoutError{Timeout: c.cfg.ServerStartTimeout}
}

func (c *Controller) waitForEngineInit(ctx context.Context) error {
	deadline := time.Now().Add(c.cfg.EngineStartTimeout)

	for c.engineRunning() && c.checkFailure() == nil && c.queue.Len() > 0 && time.Now().Before(deadline) && !c.stopping() {
		if err := sleepCtx(ctx, c.cfg.EngineStartPollInterval); err != nil {
			return err
		}
	}

	if c.stopping() {
		return ErrSessionStopped
	}

	if c.queue.Len() > 0 {
		if time.Now().Before(deadline) {
			return &InitFailureError{Cause: c.initFailureCause()}
		}

		return &InitTimeoutError{Timeout: c.cfg.EngineStartTimeout}
	}

	// The engine took the bootstrap actions and then failed.
	if err := c.checkFailure(); err != nil {
		return &InitFailureError{Cause: err}
	}

	if !c.engineRunning() {
		return &InitFailureError{Cause: c.initFailureCause()}
	}

	return nil
}

func (c *Controller) initFailureCause() error {
	if err := c.checkFailure(); err != nil {
		return err
	}

	if proc := c.process(); proc != nil && !proc.IsRunning() {
		return fmt.Errorf("engine exited with code %d", proc.ExitCode())
	}

	return nil
}

// OnRun submits a task to the engine and waits until the engine reports
// completion, logs an error or exits.
func (c *Controller) OnRun(ctx context.Context, runData map[string]any) (err error) {
	ctx, span := observability.Tracer(tracerName).Start(ctx, "adaptor.run")
	defer func() { endSpan(span, err) }()

	if err := c.faulted(); err != nil {
		return err
	}

	if !c.engineRunning() {
		return &NotRunningError{}
	}

	if err := c.validator.ValidateRun(runData); err != nil {
		return err
	}

	name, _ := runData["handler"].(string)
	if name == "" {
		name = handler.NameBase
	}

	variant := handler.Select(name)
	span.SetAttributes(attribute.String("adaptor.handler", variant.Name))

	c.classifier.Use(variant.Rules)
	c.queue.Enqueue(action.New(action.SetHandler, map[string]any{"handler": name}), false)
	c.rendering.Store(true)
	c.queue.Enqueue(action.New(action.RunScript, runData), false)
	c.setState(StateRendering)

	c.logger.Info("Run submitted",
		slog.String("event.type", "adaptor.run.submit"),
		slog.String("adaptor.handler", variant.Name),
	)

	if err := c.waitForRender(ctx); err != nil {
		c.rendering.Store(false)
		return c.fault(err)
	}

	c.setState(StateReady)

	return nil
}

func (c *Controller) waitForRender(ctx context.Context) error {
	for c.rendering.Load() && c.engineRunning() {
		if err := c.checkFailure(); err != nil {
			return err
		}

		if err := sleepCtx(ctx, c.cfg.RenderPollInterval); err != nil {
			return err
		}

		if c.queue.Len() == 0 {
			c.logger.Debug("Enqueue wait result",
				slog.String("event.type", "adaptor.run.keepalive"),
			)
			c.queue.Enqueue(action.New(action.WaitResult, nil), false)
		}
	}

	if !c.rendering.Load() {
		return c.checkFailure()
	}

	// The engine exited while rendering. Let its last lines reach the
	// classifier before deciding how the run ended.
	proc := c.process()
	drainCtx, cancel := context.WithTimeout(ctx, outputDrainTimeout)
	_ = proc.Wait(drainCtx)

	cancel()

	if err := c.checkFailure(); err != nil {
		return err
	}

	if !c.rendering.Load() {
		return nil
	}

	return &RenderFailureError{ExitCode: proc.ExitCode()}
}

// OnStop ends the session. It runs the same teardown as OnCleanup.
func (c *Controller) OnStop(ctx context.Context) error {
	return c.cleanup(ctx, "adaptor.stop")
}

// OnCleanup asks the engine to close, force-terminates it after the engine
// end timeout and shuts down the IPC server. Failures are logged, not
// returned, and calling it again is a no-op.
func (c *Controller) OnCleanup(ctx context.Context) error {
	return c.cleanup(ctx, "adaptor.cleanup")
}

func (c *Controller) cleanup(ctx context.Context, spanName string) error {
	c.cleanupMu.Lock()
	defer c.cleanupMu.Unlock()

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}

	// Set under c.mu so OnStart cannot hand over an engine or server after
	// they were read below.
	c.cleaningUp.Store(true)
	defer c.cleaningUp.Store(false)

	prev := c.state
	proc := c.proc
	srv := c.server
	serverDone := c.serverDone
	c.mu.Unlock()

	ctx, span := observability.Tracer(tracerName).Start(ctx, spanName)
	defer span.End()

	// Teardown runs to completion even if the caller gave up.
	ctx = context.WithoutCancel(ctx)

	c.setState(StateCleaningUp)
	c.queue.Enqueue(action.New(action.Close, nil), true)

	deadline := time.Now().Add(c.cfg.EngineEndTimeout)
	for c.engineRunning() && time.Now().Before(deadline) {
		time.Sleep(c.cfg.CleanupPollInterval)
	}

	if c.engineRunning() {
		c.logger.Error("Unreal did not complete cleanup actions and failed to gracefully shutdown. Terminating.",
			slog.String("event.type", "adaptor.cleanup.force_terminate"),
			slog.Any("queue.pending", c.queue.Names()),
		)

		if err := proc.Terminate(0); err != nil {
			c.logger.Error("Failed to terminate engine",
				slog.String("event.type", "adaptor.cleanup.terminate_error"),
				slog.String("error", err.Error()),
			)
		}
	}

	if proc != nil {
		waitCtx, cancel := context.WithTimeout(ctx, c.cfg.EngineEndTimeout)
		if err := proc.Wait(waitCtx); err != nil {
			c.logger.Warn("Engine output did not finish",
				slog.String("event.type", "adaptor.cleanup.wait_error"),
				slog.String("error", err.Error()),
			)
		}

		cancel()

		span.SetAttributes(attribute.Int("process.exit_code", proc.ExitCode()))
	}

	if srv != nil {
		c.shutdownServer(ctx, srv, serverDone)
	}

	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()

	if prev == StateFaulted {
		c.setState(StateFaulted)
	} else {
		c.setState(StateStopped)
	}

	return nil
}

func (c *Controller) shutdownServer(ctx context.Context, srv Server, done <-chan struct{}) {
	shutdownCtx, cancel := context.WithTimeout(ctx, c.cfg.ServerEndTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		c.logger.Error("IPC server shutdown failed",
			slog.String("event.type", "adaptor.cleanup.server_error"),
			slog.String("error", err.Error()),
		)
	}

	select {
	case <-done:
	case <-time.After(c.cfg.ServerEndTimeout):
		c.logger.Error("Failed to shutdown the Unreal Adaptor server.",
			slog.String("event.type", "adaptor.cleanup.server_join_timeout"),
		)
	}
}

// OnCancel kills the engine immediately. The engine has no cooperative
// cancel path for in-flight work.
func (c *Controller) OnCancel(ctx context.Context) error {
	_, span := observability.Tracer(tracerName).Start(ctx, "adaptor.cancel")
	defer span.End()

	c.logger.Info("Cancel requested", slog.String("event.type", "adaptor.cancel"))

	proc := c.process()
	if proc == nil || !proc.IsRunning() {
		c.logger.Info("Nothing to cancel because Unreal is not running",
			slog.String("event.type", "adaptor.cancel.noop"),
		)

		return nil
	}

	if err := proc.Terminate(0); err != nil {
		span.RecordError(err)
		return fmt.Errorf("cancel engine: %w", err)
	}

	return nil
}

func (c *Controller) handleLine(_ supervisor.Stream, line string) {
	c.classifier.HandleLine(line)
}

// checkFailure returns the staged engine failure, or nil while cleaning up.
func (c *Controller) checkFailure() error {
	if c.cleaningUp.Load() {
		return nil
	}

	if f := c.failure.Load(); f != nil {
		return f.err
	}

	return nil
}

func (c *Controller) faulted() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateFaulted {
		return c.faultErr
	}

	if c.stopped || c.state == StateCleaningUp {
		return fmt.Errorf("%w: session is %s", ErrInvalidState, c.state)
	}

	return nil
}

func (c *Controller) fault(err error) error {
	if errors.Is(err, ErrSessionStopped) {
		return err
	}

	c.logger.Error("Session faulted",
		slog.String("event.type", "adaptor.fault"),
		slog.String("error", err.Error()),
	)

	c.mu.Lock()
	if c.faultErr == nil {
		c.faultErr = err
	}

	// A fault seen after cleanup finished leaves the state Stopped.
	if c.stopped {
		c.mu.Unlock()
		return err
	}

	prev := c.state
	c.state = StateFaulted
	c.mu.Unlock()

	c.logStateChange(prev, StateFaulted)

	return err
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()

	c.logStateChange(prev, s)
}

func (c *Controller) stopping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.stoppingLocked()
}

func (c *Controller) logStateChange(prev, s State) {
	if prev != s {
		c.logger.Debug("State changed",
			slog.String("event.type", "adaptor.state"),
			slog.String("state.from", prev.String()),
			slog.String("state.to", s.String()),
		)
	}
}

func (c *Controller) process() Process {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.proc
}

func (c *Controller) engineRunning() bool {
	proc := c.process()
	return proc != nil && proc.IsRunning()
}

type classifierSink struct {
	c *Controller
}

func (s classifierSink) OnProgress(progress float64) {
	s.c.reporter.ReportProgress(progress)
}

func (s classifierSink) OnComplete(string) {
	s.c.rendering.Store(false)
	s.c.reporter.ReportProgress(100)
}

func (s classifierSink) OnError(line string) {
	s.c.failure.CompareAndSwap(nil, &stagedFailure{err: &SubprocessLoggedError{Line: line}})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.End()
}
