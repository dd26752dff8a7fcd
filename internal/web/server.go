// Package web provides the HTTP query API over the incident store.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/user/pingwatch/internal/model"
)

// Store is the incident store surface exposed over HTTP.
type Store interface {
	GetRecentIncidents(ctx context.Context, limit int) []model.Incident
	GetIncidentsByHost(ctx context.Context, host string, limit int) []model.Incident
	GetUnresolvedIncidents(ctx context.Context) []model.Incident
	GetLatestIncident(ctx context.Context) *model.Incident
	GetIncident(ctx context.Context, id int64) *model.Incident
	GetIncidentsBetween(ctx context.Context, since, until time.Time) []model.Incident
	MarkIncidentResolved(ctx context.Context, id int64) (bool, error)
	ClearAllIncidents(ctx context.Context) (int64, error)
	GetStatistics(ctx context.Context) model.Statistics
}

// Server is the web server.
type Server struct {
	store    Store
	logger   *zap.Logger
	gatherer prometheus.Gatherer
	port     int

	mu  sync.Mutex
	srv *http.Server
}

// NewServer creates a new web server. A nil gatherer serves the default
// Prometheus registry.
func NewServer(store Store, logger *zap.Logger, gatherer prometheus.Gatherer, port int) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		store:    store,
		logger:   logger,
		gatherer: gatherer,
		port:     port,
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	h := NewHandlers(s.store, s.logger)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(cors.AllowAll().Handler)

	r.Get("/api/health", h.Health)
	r.Get("/api/statistics", h.Statistics)
	r.Get("/api/report", h.DownloadReport)

	r.Route("/api/incidents", func(r chi.Router) {
		r.Get("/", h.ListIncidents)
		r.Delete("/", h.ClearIncidents)
		r.Get("/latest", h.LatestIncident)
		r.Get("/unresolved", h.UnresolvedIncidents)
		r.Get("/host/{host}", h.IncidentsByHost)
		r.Get("/{id}", h.GetIncident)
		r.Put("/{id}/resolve", h.ResolveIncident)
		r.Post("/{id}/resolve", h.ResolveIncident)
	})

	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return r
}

// Start listens on the configured port and blocks until Stop is called.
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	s.logger.Info("web_server_starting", zap.Int("port", s.port))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web server failed: %w", err)
	}

	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	s.logger.Info("web_server_stopping")
	return srv.Shutdown(ctx)
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.Info("request_completed",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
