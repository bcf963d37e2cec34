package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/softwarestrategies/dispatch/pkg/config"
	"github.com/softwarestrategies/dispatch/pkg/ingest"
	"github.com/softwarestrategies/dispatch/pkg/log"
	"github.com/softwarestrategies/dispatch/pkg/metrics"
	"github.com/softwarestrategies/dispatch/pkg/store"
	"github.com/softwarestrategies/dispatch/pkg/types"
)

// EventSubmitter publishes accepted submissions to the ingestion buffer
type EventSubmitter interface {
	SendEvent(ctx context.Context, msg *ingest.Message) error
}

// QueryStore is the read and cancel surface the API needs
type QueryStore interface {
	GetByID(ctx context.Context, id string) (*types.Event, error)
	GetByExternalJobID(ctx context.Context, externalJobID string) (*types.Event, error)
	ListByExternalJobID(ctx context.Context, externalJobID string) ([]*types.Event, error)
	CancelByID(ctx context.Context, id string) error
	CancelByExternalJobID(ctx context.Context, externalJobID string) (int64, error)
	Statistics(ctx context.Context) (*types.EventStatistics, error)
}

// ManualCleaner runs retention with an explicit window
type ManualCleaner interface {
	Run(ctx context.Context, days int) (int64, error)
}

// Server is the REST facade over submission, queries and admin operations
type Server struct {
	submitter EventSubmitter
	store     QueryStore
	cleaner   ManualCleaner
	health    *metrics.HealthChecker
	validate  *validator.Validate

	adminToken        string
	maxRetriesDefault int
	retentionDays     int

	httpServer *http.Server
	logger     zerolog.Logger
}

// NewServer builds the API server and its routes
func NewServer(cfg *config.Config, submitter EventSubmitter, st QueryStore, cleaner ManualCleaner, health *metrics.HealthChecker) *Server {
	s := &Server{
		submitter:         submitter,
		store:             st,
		cleaner:           cleaner,
		health:            health,
		validate:          validator.New(),
		adminToken:        cfg.Server.AdminToken,
		maxRetriesDefault: cfg.Scheduler.MaxRetriesDefault,
		retentionDays:     cfg.Cleanup.RetentionDays,
		logger:            log.WithComponent("api"),
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))
	r.Use(s.observe)

	r.Route("/api/v1/events", func(r chi.Router) {
		r.Post("/", s.handleSubmit)
		r.Post("/batch", s.handleSubmitBatch)
		r.Get("/statistics", s.handleStatistics)
		r.Post("/admin/cleanup", s.handleAdminCleanup)

		r.Get("/external/{externalJobID}", s.handleGetByExternal)
		r.Get("/external/{externalJobID}/all", s.handleListByExternal)
		r.Delete("/external/{externalJobID}", s.handleCancelByExternal)

		r.Get("/{id}", s.handleGetByID)
		r.Delete("/{id}", s.handleCancelByID)
	})

	r.Get("/healthz", s.health.Handler())
	r.Get("/readyz", s.health.ReadinessHandler())
	r.Get("/livez", metrics.LivenessHandler())
	r.Handle("/metrics", metrics.Handler())

	return r
}

// observe records per-route request metrics and an access log line
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		metrics.APIRequestsTotal.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()
		timer.ObserveDurationVec(metrics.APIRequestDuration, route)

		s.logger.Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", ww.Status()).
			Dur("duration", timer.Duration()).
			Msg("Request handled")
	})
}

// Start begins serving in the background
func (s *Server) Start() {
	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("API server started")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("API server failed")
		}
	}()
}

// Stop drains in-flight requests and closes the listener
func (s *Server) Stop(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.logger.Info().Msg("API server stopped")
	return err
}

// Handler exposes the router for tests
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorBody{Error: ErrorDetail{Code: code, Message: message}})
}

// writeStoreError maps store sentinels to the error envelope
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "event not found")
	case errors.Is(err, store.ErrInvalidState):
		writeError(w, http.StatusConflict, "INVALID_STATE", "event is not in a cancellable state")
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}
