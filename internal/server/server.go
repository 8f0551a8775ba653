package server

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/admitly/admissions/internal/frappe"
	"github.com/admitly/admissions/pkg/form"
	"github.com/admitly/admissions/pkg/leads"
	"github.com/admitly/admissions/pkg/middleware"
	"github.com/admitly/admissions/pkg/options"
)

// CatalogLoader resolves the option catalog. It never fails; see
// metadata.Loader.
type CatalogLoader interface {
	Load(ctx context.Context) options.Catalog
}

// CRM is the submission and listing collaborator.
type CRM interface {
	Submit(ctx context.Context, doctype string, payload map[string]any) (frappe.Receipt, error)
	Leads(ctx context.Context, q leads.Query) (leads.Result, error)
}

// SessionConfig bounds form session I/O.
type SessionConfig struct {
	// ReadTimeout is how long a session may stay silent (pongs count).
	ReadTimeout time.Duration

	// WriteTimeout bounds each write.
	WriteTimeout time.Duration

	// PingInterval is how often the server pings; must be below ReadTimeout.
	PingInterval time.Duration

	// InboxSize is the number of client messages queued per session.
	InboxSize int

	// SubmitTimeout bounds a CRM submission.
	SubmitTimeout time.Duration
}

// DefaultSessionConfig returns the session defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		ReadTimeout:   60 * time.Second,
		WriteTimeout:  10 * time.Second,
		PingInterval:  25 * time.Second,
		InboxSize:     32,
		SubmitTimeout: 30 * time.Second,
	}
}

func (c SessionConfig) withDefaults() SessionConfig {
	d := DefaultSessionConfig()
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.InboxSize <= 0 {
		c.InboxSize = d.InboxSize
	}
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = d.SubmitTimeout
	}
	return c
}

// Server serves the forms API and form sessions.
type Server struct {
	forms    *form.Registry
	loader   CatalogLoader
	crm      CRM
	metrics  *middleware.Metrics
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	limits   leads.Limits
	session  SessionConfig
	origins  []string
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[*FormSession]struct{}
	closing  bool
	wg       sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithCRM sets the CRM collaborator. Without one, submit and leads answer
// with an upstream error.
func WithCRM(c CRM) Option {
	return func(s *Server) {
		s.crm = c
	}
}

// WithMetrics enables Prometheus collection.
func WithMetrics(m *middleware.Metrics, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		if g != nil {
			s.gatherer = g
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithLeadsLimits bounds the leads page size.
func WithLeadsLimits(l leads.Limits) Option {
	return func(s *Server) {
		s.limits = l
	}
}

// WithSessionConfig overrides session timeouts.
func WithSessionConfig(c SessionConfig) Option {
	return func(s *Server) {
		s.session = c
	}
}

// WithAllowedOrigins lists origins allowed to open form sessions. Empty
// means same-origin only.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

// New creates a server for the forms in reg.
func New(reg *form.Registry, loader CatalogLoader, opts ...Option) *Server {
	s := &Server{
		forms:    reg,
		loader:   loader,
		gatherer: prometheus.DefaultGatherer,
		logger:   slog.Default().With("component", "server"),
		limits:   leads.DefaultLimits,
		session:  DefaultSessionConfig(),
		sessions: make(map[*FormSession]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.recoverer)
	r.Use(middleware.OpenTelemetry(middleware.WithFilter(traced)))
	if s.metrics != nil {
		r.Use(s.metrics.Handler)
	}
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/metadata", s.handleMetadata)
		r.Get("/forms", s.handleForms)
		r.Get("/forms/{form}/hydrate", s.handleHydrate)
		r.Post("/forms/{form}/submit", s.handleSubmit)
		r.Get("/leads", s.handleLeads)
	})
	r.Get("/ws/forms/{form}", s.handleSession)
	return r
}

func traced(r *http.Request) bool {
	return r.URL.Path != "/healthz" && r.URL.Path != "/metrics"
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully and
// closes open form sessions.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln, shutdownTimeout)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down", "timeout", shutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	s.CloseSessions()
	s.wg.Wait()
	return err
}

// CloseSessions closes every open form session. Sessions opened afterwards
// are refused.
func (s *Server) CloseSessions() {
	s.mu.Lock()
	s.closing = true
	open := make([]*FormSession, 0, len(s.sessions))
	for fs := range s.sessions {
		open = append(open, fs)
	}
	s.mu.Unlock()
	for _, fs := range open {
		fs.Close()
	}
}

// SessionCount returns the number of open form sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// track registers fs and counts it in wg. It reports false once
// CloseSessions has run.
func (s *Server) track(fs *FormSession) bool {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return false
	}
	s.sessions[fs] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.ActiveSessions.Inc()
	}
	return true
}

func (s *Server) untrack(fs *FormSession) {
	s.mu.Lock()
	_, ok := s.sessions[fs]
	delete(s.sessions, fs)
	s.mu.Unlock()
	if ok && s.metrics != nil {
		s.metrics.ActiveSessions.Dec()
	}
}

// checkOrigin allows same-origin requests, requests without an Origin
// header, and the configured allowlist.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.origins {
		if origin == allowed {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return r.Host != "" && u.Host == r.Host
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error("handler panic",
					"panic", rec,
					"path", r.URL.Path,
					"request_id", chimw.GetReqID(r.Context()),
				)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		if !traced(r) {
			return
		}
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", chimw.GetReqID(r.Context()),
		)
	})
}
