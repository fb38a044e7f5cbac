// Package ipc exposes the adaptor's action queue to the engine subprocess
// over HTTP on a unix domain socket.
//
// Endpoints:
//   - GET /action returns the next queued action, or 204 when the queue is empty
//   - GET /path_mapping?path=... maps a path with the session's path mapping rules
//   - GET /path_mapping_rules lists the session's path mapping rules
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/enginefarm/unreal-adaptor/internal/action"
	"github.com/enginefarm/unreal-adaptor/internal/pathmap"
)

// SocketEnv is the environment variable carrying the socket path to the
// engine subprocess.
const SocketEnv = "UNREAL_ADAPTOR_SOCKET_PATH"

const (
	socketName        = "adaptor.sock"
	readHeaderTimeout = 5 * time.Second
)

// Options configures a Server.
type Options struct {
	// SocketDir is the parent directory for the per-session socket
	// directory. Empty means the OS temp dir.
	SocketDir string

	// Rules are served to the engine through the path mapping endpoints.
	Rules pathmap.Rules

	Logger *slog.Logger
}

// Server serves one session's action queue.
type Server struct {
	queue  *action.Queue
	rules  pathmap.Rules
	dir    string
	logger *slog.Logger

	mu         sync.Mutex
	addr       string
	sessionDir string
	httpServer *http.Server
	closed     bool
}

// NewServer creates a server for queue. Nothing is bound until ServeForever.
func NewServer(queue *action.Queue, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		queue:  queue,
		rules:  opts.Rules,
		dir:    opts.SocketDir,
		logger: logger.With(slog.String("component", "ipc")),
	}
}

// ServeForever binds the socket and serves requests until Shutdown is
// called. It returns nil after a clean shutdown.
func (s *Server) ServeForever() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}

	ln, err := s.listen()
	if err != nil {
		s.mu.Unlock()
		return err
	}

	srv := &http.Server{
		Handler:           otelhttp.NewHandler(s.routes(), "ipc"),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	s.httpServer = srv
	addr := s.addr
	s.mu.Unlock()

	s.logger.Info("IPC server listening",
		slog.String("event.type", "ipc.listen"),
		slog.String("ipc.socket", addr),
	)

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve ipc: %w", err)
	}

	return nil
}

// listen must be called with s.mu held.
func (s *Server) listen() (net.Listener, error) {
	if s.dir != "" {
		if err := os.MkdirAll(s.dir, 0o700); err != nil {
			return nil, fmt.Errorf("create socket parent dir: %w", err)
		}
	}

	dir, err := os.MkdirTemp(s.dir, "unreal-adaptor-")
	if err != nil {
		return nil, fmt.Errorf("create socket dir: %w", err)
	}

	path := filepath.Join(dir, socketName)

	ln, err := net.Listen("unix", path)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("listen on %s: %w", path, err)
	}

	if err := os.Chmod(path, 0o600); err != nil {
		_ = ln.Close()
		_ = os.RemoveAll(dir)

		return nil, fmt.Errorf("chmod %s: %w", path, err)
	}

	s.sessionDir = dir
	s.addr = path

	return ln, nil
}

// Address returns the socket path, or "" until the server is bound.
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.addr
}

// Shutdown stops the server and removes its socket. It is safe to call more
// than once and before ServeForever; ctx bounds the wait for in-flight
// requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}

	s.closed = true
	srv := s.httpServer
	dir := s.sessionDir
	s.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}

	if dir != "" {
		if rmErr := os.RemoveAll(dir); rmErr != nil && err == nil {
			err = rmErr
		}
	}

	if err != nil {
		return fmt.Errorf("shutdown ipc server: %w", err)
	}

	return nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /action", s.handleAction)
	mux.HandleFunc("GET /path_mapping", s.handlePathMapping)
	mux.HandleFunc("GET /path_mapping_rules", s.handlePathMappingRules)

	return mux
}

func (s *Server) handleAction(w http.ResponseWriter, _ *http.Request) {
	a := s.queue.Dequeue()
	if a == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	body, err := json.Marshal(a)
	if err != nil {
		s.requeue(a, err)
		http.Error(w, "encode action", http.StatusInternalServerError)

		return
	}

	id := uuid.NewString()
	s.logger.Debug("Dispatching action",
		slog.String("event.type", "ipc.action.dispatch"),
		slog.String("action.id", id),
		slog.String("action.name", a.Name()),
	)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(actionIDHeader, id)
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(append(body, '\n')); err != nil {
		s.requeue(a, err)
	}
}

// requeue puts an action that never reached the engine back at the head of
// the queue.
func (s *Server) requeue(a *action.Action, err error) {
	s.queue.Enqueue(a, true)

	s.logger.Warn("Action not delivered, requeued",
		slog.String("event.type", "ipc.action.requeue"),
		slog.String("action.name", a.Name()),
		slog.String("error", err.Error()),
	)
}

func (s *Server) handlePathMapping(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		http.Error(w, "missing path query parameter", http.StatusBadRequest)
		return
	}

	mapped, _ := s.rules.Map(path)
	writeJSON(w, http.StatusOK, pathMappingResponse{Path: mapped})
}

func (s *Server) handlePathMappingRules(w http.ResponseWriter, _ *http.Request) {
	rules := s.rules
	if rules == nil {
		rules = pathmap.Rules{}
	}

	writeJSON(w, http.StatusOK, pathMappingRulesResponse{Rules: rules})
}

type pathMappingResponse struct {
	Path string `json:"path"`
}

type pathMappingRulesResponse struct {
	Rules pathmap.Rules `json:"path_mapping_rules"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
