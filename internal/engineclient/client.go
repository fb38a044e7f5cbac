// Package engineclient is the engine-side half of the adaptor protocol. It
// polls the adaptor's IPC server for actions, executes them with the active
// handler and reports results as log lines the adaptor classifies.
package engineclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/enginefarm/unreal-adaptor/internal/action"
	"github.com/enginefarm/unreal-adaptor/internal/handler"
	"github.com/enginefarm/unreal-adaptor/internal/ipc"
)

// maxConsecutiveErrors ends the poll loop once the adaptor is unreachable
// for this many requests in a row.
const maxConsecutiveErrors = 30

// SocketPathFromEnv returns the adaptor socket path from the environment.
func SocketPathFromEnv() (string, error) {
	path := os.Getenv(ipc.SocketEnv)
	if path == "" {
		return "", fmt.Errorf("cannot connect to the adaptor because the environment variable %s does not exist", ipc.SocketEnv)
	}

	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("cannot connect to the adaptor because the socket at the path defined by "+
			"the environment variable %s does not exist. Got: %s", ipc.SocketEnv, path)
	}

	return path, nil
}

// Options configures a Client.
type Options struct {
	SocketPath string

	// Out receives the log lines the adaptor classifies. Defaults to stdout.
	Out io.Writer

	// Executors maps handler names to their executors. Handlers without an
	// executor behave like the abstract base handler.
	Executors map[string]handler.Executor

	// NewBackOff returns the delay policy between empty polls.
	NewBackOff func() backoff.BackOff

	Logger *slog.Logger
}

// Client runs the engine-side poll loop.
type Client struct {
	ipc        *ipc.Client
	out        io.Writer
	executors  map[string]handler.Executor
	newBackOff func() backoff.BackOff
	logger     *slog.Logger

	mu    sync.Mutex
	table *handler.Table
}

// New creates a client for the adaptor listening on opts.SocketPath.
func New(opts Options) (*Client, error) {
	if opts.SocketPath == "" {
		return nil, errors.New("socket path is required")
	}

	c := &Client{
		ipc:        ipc.NewClient(opts.SocketPath),
		out:        opts.Out,
		executors:  opts.Executors,
		newBackOff: opts.NewBackOff,
		logger:     opts.Logger,
	}

	if c.out == nil {
		c.out = os.Stdout
	}

	if c.newBackOff == nil {
		c.newBackOff = DefaultBackOff
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}

	c.logger = c.logger.With(slog.String("component", "engineclient"))
	c.table = handler.NewTable(handler.Select(handler.NameBase), nil)

	return c, nil
}

// IPC returns the underlying IPC client.
func (c *Client) IPC() *ipc.Client {
	return c.ipc
}

// DefaultBackOff polls quickly after activity and settles at one request
// per second while idle.
func DefaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = time.Second
	b.Multiplier = 1.5
	b.RandomizationFactor = 0.1

	return b
}

// Run polls for actions until a close action arrives, ctx is done or the
// adaptor stays unreachable.
func (c *Client) Run(ctx context.Context) error {
	b := c.newBackOff()
	failures := 0

	for {
		a, err := c.ipc.NextAction(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			failures++
			fmt.Fprintf(c.out, "ERROR: An error was raised when trying to connect to the server: %v\n", err)

			if failures >= maxConsecutiveErrors {
				return fmt.Errorf("adaptor unreachable after %d attempts: %w", failures, err)
			}

			if err := sleep(ctx, b.NextBackOff()); err != nil {
				return err
			}

			continue
		}

		failures = 0

		if a == nil {
			if err := sleep(ctx, b.NextBackOff()); err != nil {
				return err
			}

			continue
		}

		b.Reset()
		fmt.Fprintf(c.out, "Performing action: %s\n", a)

		if a.Name() == action.Close {
			fmt.Fprintln(c.out, "Quit the Editor: normal shutdown")
			return nil
		}

		c.perform(ctx, a)
	}
}

func (c *Client) perform(ctx context.Context, a *action.Action) {
	if a.Name() == action.SetHandler {
		c.setHandler(a.StringArg("handler"))
		return
	}

	c.mu.Lock()
	table := c.table
	c.mu.Unlock()

	if err := table.Dispatch(ctx, a); err != nil {
		c.logger.Debug("Action failed",
			slog.String("event.type", "engineclient.action.error"),
			slog.String("action.name", a.Name()),
			slog.String("error", err.Error()),
		)
		fmt.Fprintf(c.out, "%s%v\n", handler.ExceptionPrefix, err)
	}
}

func (c *Client) setHandler(name string) {
	v := handler.Select(name)
	table := handler.NewTable(v, c.executors[v.Name])

	c.mu.Lock()
	c.table = table
	c.mu.Unlock()

	c.logger.Debug("Handler selected",
		slog.String("event.type", "engineclient.handler"),
		slog.String("handler", v.Name),
	)
}

// Handler returns the name of the active handler.
func (c *Client) Handler() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.table.Variant().Name
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
