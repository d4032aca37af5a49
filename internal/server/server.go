// Package server exposes the Aeris HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/ogulcanaydogan/aeris/internal/observability"
	"github.com/ogulcanaydogan/aeris/pkg/account"
	"github.com/ogulcanaydogan/aeris/pkg/alerting"
	"github.com/ogulcanaydogan/aeris/pkg/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// requestTimeout bounds every handler except the cycle trigger.
const requestTimeout = 30 * time.Second

// Options carries the optional collaborators of a Server.
type Options struct {
	Metrics  *observability.Metrics
	Gatherer prometheus.Gatherer
	Clock    clockwork.Clock
}

// Server provides the account, alert and health endpoints.
type Server struct {
	accounts *account.Service
	alerts   *alerting.Aggregator
	store    storage.Storage
	metrics  *observability.Metrics
	gatherer prometheus.Gatherer
	clock    clockwork.Clock
	router   chi.Router
	logger   *slog.Logger
}

// NewServer creates an API server.
func NewServer(accounts *account.Service, alerts *alerting.Aggregator, store storage.Storage, opts Options, logger *slog.Logger) *Server {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		accounts: accounts,
		alerts:   alerts,
		store:    store,
		metrics:  opts.Metrics,
		gatherer: opts.Gatherer,
		clock:    opts.Clock,
		router:   chi.NewRouter(),
		logger:   logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	if s.metrics != nil {
		r.Use(metricsMiddleware(s.metrics))
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))

			r.Post("/register", s.handleRegister)
			r.Post("/login", s.handleLogin)

			r.Route("/users/{username}", func(r chi.Router) {
				r.Get("/", s.handleGetUser)
				r.Patch("/", s.handleUpdateUser)
				r.Get("/alerts/status", s.handleAlertStatus)
				r.Post("/alerts/test", s.handleTestAlert)
			})
		})

		// A cycle can outlive the request timeout and must not be cut short by
		// a disconnecting client.
		r.Post("/alerts/cycles", s.handleRunCycle)
	})
}

// Handler returns the HTTP handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// fail maps domain errors onto HTTP statuses.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, storage.ErrConflict), errors.Is(err, alerting.ErrCycleInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, account.ErrInvalidInput), errors.Is(err, alerting.ErrNotLinked):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, account.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, alerting.ErrDispatch):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
