package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/nao1215/linkforensics/internal/capture"
	"github.com/nao1215/linkforensics/internal/metrics"
	"github.com/nao1215/linkforensics/internal/model"
	"github.com/nao1215/linkforensics/internal/session"
)

// Server defaults.
const (
	// DefaultMaxBodySize bounds event payloads. Snapshots have their own limit.
	DefaultMaxBodySize = 64 << 10

	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 10 * time.Second

	// readHeaderTimeout protects against slow-header clients.
	readHeaderTimeout = 10 * time.Second
)

// Capturer assembles a record. capture.Assembler implements it.
type Capturer interface {
	Capture(ctx context.Context, linkID, resourceAuditID string, opts ...capture.CaptureOption) *model.ForensicRecord
}

// Records answers record queries. database.Store implements it.
type Records interface {
	Get(ctx context.Context, accessID string) (*model.ForensicRecord, error)
	ListByAudit(ctx context.Context, auditID string) ([]*model.ForensicRecord, error)
	ListByLink(ctx context.Context, linkID string) ([]*model.ForensicRecord, error)
	Stats(ctx context.Context, auditID string) (*model.Stats, error)
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics counts requests and serves /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithMaxBodySize bounds event payloads.
func WithMaxBodySize(n int64) Option {
	return func(s *Server) {
		s.maxBodySize = n
	}
}

// WithClock replaces time.Now for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// Server is the HTTP API.
type Server struct {
	capturer    Capturer
	records     Records
	sessions    *session.Registry
	metrics     *metrics.Metrics
	logger      *slog.Logger
	validate    *validator.Validate
	maxBodySize int64
	now         func() time.Time
}

// New creates a Server.
func New(capturer Capturer, records Records, sessions *session.Registry, opts ...Option) *Server {
	s := &Server{
		capturer:    capturer,
		records:     records,
		sessions:    sessions,
		logger:      slog.Default(),
		validate:    newValidator(),
		maxBodySize: DefaultMaxBodySize,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/links/{linkID}/access", s.handleCapture)
		r.Get("/links/{linkID}/records", s.handleLinkRecords)

		r.Route("/access/{accessID}", func(r chi.Router) {
			r.Get("/", s.handleGetRecord)
			r.Post("/events", s.handleFocusEvent)
			r.Post("/visibility", s.handleVisibility)
			r.Post("/download", s.handleDownload)
			r.Post("/unload", s.handleUnload)
		})

		r.Get("/audits/{auditID}/records", s.handleAuditRecords)
		r.Get("/audits/{auditID}/stats", s.handleStats)
	})

	return r
}

// ListenAndServe serves on addr until ctx ends, then shuts down gracefully.
// The session registry is run alongside and flushes every tracker on exit.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx ends.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	registryDone := make(chan struct{})
	go func() {
		s.sessions.Run(runCtx)
		close(registryDone)
	}()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http api listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		stop()
		<-registryDone
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultShutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	<-registryDone
	if err != nil {
		return fmt.Errorf("failed to shut down http api: %w", err)
	}
	return nil
}
