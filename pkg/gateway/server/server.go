package server

import (
	"log/slog"
	"net/http"

	"github.com/vango-go/interview-live/pkg/core/interview"
	"github.com/vango-go/interview-live/pkg/core/storage"
	"github.com/vango-go/interview-live/pkg/gateway/config"
	"github.com/vango-go/interview-live/pkg/gateway/handlers"
	"github.com/vango-go/interview-live/pkg/gateway/lifecycle"
	"github.com/vango-go/interview-live/pkg/gateway/live/bridge"
	"github.com/vango-go/interview-live/pkg/gateway/metrics"
	"github.com/vango-go/interview-live/pkg/gateway/mw"
)

// Dependencies are the long-lived collaborators the routes share.
type Dependencies struct {
	Manager      *interview.Manager
	Applications storage.ApplicationReader
	Screenings   storage.ScreeningWriter
	// Pending is optional; nil disables parking failed writes.
	Pending   handlers.PendingStore
	Lifecycle *lifecycle.Lifecycle
	Tracker   *bridge.Tracker
	// Metrics is created when nil and server.metrics_enabled is set.
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

type Server struct {
	cfg    config.Config
	deps   Dependencies
	logger *slog.Logger
	mux    *http.ServeMux
}

func New(cfg config.Config, deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Lifecycle == nil {
		deps.Lifecycle = &lifecycle.Lifecycle{}
	}
	if deps.Tracker == nil {
		deps.Tracker = bridge.NewTracker()
	}
	if deps.Metrics == nil && cfg.Server.MetricsEnabled {
		deps.Metrics = metrics.New("interview")
		deps.Metrics.WatchGauge("live_connections_active", "Open websocket connections", deps.Tracker.Count)
		if deps.Manager != nil {
			deps.Metrics.WatchGauge("sessions_registered", "Sessions held by the manager", deps.Manager.Count)
		}
	}

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		mux:    http.NewServeMux(),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/", handlers.NotFoundHandler{})
	s.mux.Handle("GET /healthz", handlers.HealthHandler{})
	s.mux.Handle("GET /readyz", handlers.ReadyHandler{
		Config:    s.cfg,
		Lifecycle: s.deps.Lifecycle,
		Manager:   s.deps.Manager,
		Tracker:   s.deps.Tracker,
	})

	interviews := handlers.InterviewsHandler{
		Config:       s.cfg,
		Manager:      s.deps.Manager,
		Applications: s.deps.Applications,
		Screenings:   s.deps.Screenings,
		Pending:      s.deps.Pending,
		Lifecycle:    s.deps.Lifecycle,
		Metrics:      s.deps.Metrics,
		Logger:       s.logger,
	}
	s.mux.HandleFunc("POST /v1/interviews", interviews.Create)
	s.mux.HandleFunc("POST /v1/interviews/{id}/finalize", interviews.Finalize)

	s.mux.Handle("GET /v1/interviews/{id}/live", handlers.LiveHandler{
		Config:    s.cfg,
		Manager:   s.deps.Manager,
		Tracker:   s.deps.Tracker,
		Lifecycle: s.deps.Lifecycle,
		Metrics:   s.deps.Metrics,
		Logger:    s.logger,
	})

	if s.deps.Metrics != nil {
		s.mux.Handle("GET /metrics", s.deps.Metrics.Handler())
	}
}

func (s *Server) Lifecycle() *lifecycle.Lifecycle { return s.deps.Lifecycle }

func (s *Server) Tracker() *bridge.Tracker { return s.deps.Tracker }

func (s *Server) Metrics() *metrics.Metrics { return s.deps.Metrics }

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	if s.deps.Metrics != nil {
		h = mw.Metrics(s.deps.Metrics, h)
	}
	h = mw.CORS(s.cfg.Server.CORSAllowedOrigins, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// HTTPServer wires the handler chain into an *http.Server with the configured
// timeouts. WriteTimeout stays unset so websocket connections are not cut.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.Server.ReadTimeout,
	}
}
