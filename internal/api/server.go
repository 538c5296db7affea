// Package api serves the local bridge: a small HTTP API over the session
// so other tools can read state, trigger actions and follow changes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Ulysse-Dev-Serre/App-Maker/internal/events"
	"github.com/Ulysse-Dev-Serre/App-Maker/internal/logging"
	"github.com/Ulysse-Dev-Serre/App-Maker/internal/metrics"
	"github.com/Ulysse-Dev-Serre/App-Maker/internal/session"
	"github.com/Ulysse-Dev-Serre/App-Maker/pkg/client"
	"github.com/Ulysse-Dev-Serre/App-Maker/pkg/models"
	"github.com/Ulysse-Dev-Serre/App-Maker/pkg/protocol"
)

// Session is the part of *session.Coordinator the bridge uses.
type Session interface {
	Snapshot() session.State
	Tree() []*models.FileTreeNode
	Logs() []models.LogEntry
	Select(ctx context.Context, id string) error
	Generate(ctx context.Context, prompt, provider, model string) (string, error)
	Update(ctx context.Context, prompt, provider, model string) error
	Run(ctx context.Context) error
	Stop(ctx context.Context) error
	Fix(ctx context.Context, provider, model string) error
	Delete(ctx context.Context, id string) error
	Rename(ctx context.Context, id, name string) error
	RefreshProjects(ctx context.Context) ([]models.ProjectSummary, error)
	RefreshLogs(ctx context.Context) error
	SelectFile(path string) error
	SetPolling(enabled bool) error
	LLMOptions(ctx context.Context) (models.LLMOptions, error)
	DefaultModel(opts models.LLMOptions) (provider, model string)
	Subscribe() chan events.Event
	Unsubscribe(ch chan events.Event)
}

// Config configures a Server.
type Config struct {
	Session    Session
	ListenAddr string
	Logger     *zap.Logger
	Version    string
}

// Server is the bridge HTTP server.
type Server struct {
	session Session
	addr    string
	logger  *zap.Logger
	version string
}

// NewServer creates a bridge server.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		session: cfg.Session,
		addr:    cfg.ListenAddr,
		logger:  logger.Named("bridge"),
		version: cfg.Version,
	}
}

// Handler returns the router with logging, metrics and recovery.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.Recoverer,
		logging.Middleware,
		metrics.Middleware(routePattern),
	)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/events", s.handleEvents)

		r.Get("/tree", s.handleTree)
		r.Get("/files/*", s.handleFile)
		r.Post("/files/select", s.handleSelectFile)

		r.Get("/logs", s.handleLogs)
		r.Post("/logs/refresh", s.handleRefreshLogs)
		r.Get("/problem", s.handleProblem)
		r.Post("/polling", s.handlePolling)
		r.Get("/models", s.handleModels)

		r.Route("/projects", func(r chi.Router) {
			r.Get("/", s.handleProjects)
			r.Post("/select", s.handleSelect)
			r.Post("/generate", s.handleGenerate)
			r.Post("/update", s.handleUpdate)
			r.Post("/fix", s.handleFix)
			r.Put("/{id}/rename", s.handleRename)
			r.Delete("/{id}", s.handleDelete)
		})

		r.Post("/runner/run", s.handleRun)
		r.Post("/runner/stop", s.handleStop)
	})

	return r
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}

// Serve listens on the configured address until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener is Serve on an existing listener.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("bridge listening", zap.String("addr", ln.Addr().String()))

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down bridge")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write response", zap.Error(err))
	}
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	s.sendJSON(w, code, protocol.BridgeError{Error: message, Code: code})
}

// sendErr maps session and client errors to HTTP statuses.
func (s *Server) sendErr(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		logging.WithContext(r.Context()).Warn("request failed", zap.Error(err))
	}
	s.sendError(w, code, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNoActiveProject), errors.Is(err, session.ErrNoProblem):
		return http.StatusConflict
	case errors.Is(err, session.ErrEmptyPrompt):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrUnknownFile):
		return http.StatusNotFound
	case errors.Is(err, session.ErrClosed), errors.Is(err, client.ErrOffline):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	if apiErr, ok := client.AsAPIError(err); ok {
		if apiErr.StatusCode == http.StatusNotFound {
			return http.StatusNotFound
		}
		if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			return http.StatusUnprocessableEntity
		}
	}
	return http.StatusBadGateway
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// decodeOptionalBody is decodeBody for requests whose body may be absent
// or empty, chunked ones included.
func decodeOptionalBody(r *http.Request, v any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	err := decodeBody(r, v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
