// Package api exposes the submission surface and engine status over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"pricetracker/internal/fetcher"
	"pricetracker/internal/models"
	"pricetracker/internal/scheduler"
	"pricetracker/internal/store"
	"pricetracker/internal/tracker"
)

// Tracker is the submission path the server delegates to
type Tracker interface {
	Track(ctx context.Context, sub tracker.Submission) (*models.TrackedItem, error)
	List(ctx context.Context) ([]models.TrackedItem, error)
	Clear(ctx context.Context) (int64, error)
}

// SchedulerStatus reports the background loop's state
type SchedulerStatus interface {
	State() scheduler.State
	LastReport() (scheduler.CycleReport, bool)
	Interval() time.Duration
}

// Pinger checks backing store health
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the server needs. Gatherer may be nil to omit
// /metrics.
type Deps struct {
	Tracker   Tracker
	Scheduler SchedulerStatus
	Store     Pinger
	Gatherer  prometheus.Gatherer
	Logger    *slog.Logger
}

// Server routes HTTP requests
type Server struct {
	deps   Deps
	logger *slog.Logger
	router *chi.Mux
}

// NewServer creates a Server with all routes mounted
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		deps:   deps,
		logger: logger.With("component", "api"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(90 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)

	r.Route("/api/v1/items", func(r chi.Router) {
		r.Get("/", s.handleListItems)
		r.Post("/", s.handleCreateItem)
		r.Delete("/", s.handleClearItems)
	})

	r.Get("/api/v1/scheduler", s.handleScheduler)

	if s.deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestLogger logs one line per request through slog
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store != nil {
		if err := s.deps.Store.Ping(r.Context()); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// List items handler
func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.Tracker.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list items", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list items")
		return
	}
	if items == nil {
		items = []models.TrackedItem{}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

type createItemRequest struct {
	SourceURL    string           `json:"source_url"`
	NotifyTarget string           `json:"notify_target"`
	MinThreshold *decimal.Decimal `json:"min_threshold"`
	MaxThreshold *decimal.Decimal `json:"max_threshold"`
}

// Create item handler
func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item, err := s.deps.Tracker.Track(r.Context(), tracker.Submission{
		SourceURL:    req.SourceURL,
		NotifyTarget: req.NotifyTarget,
		MinThreshold: req.MinThreshold,
		MaxThreshold: req.MaxThreshold,
	})
	if err != nil {
		s.respondTrackError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, item)
}

func (s *Server) respondTrackError(w http.ResponseWriter, err error) {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		respondJSON(w, http.StatusBadRequest, map[string]string{
			"error": verr.Error(),
			"field": verr.Field,
		})
		return
	}

	if errors.Is(err, store.ErrDuplicate) {
		respondError(w, http.StatusConflict, err.Error())
		return
	}

	if kind := fetcher.KindOf(err); kind != "" {
		respondJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": "could not read a price from the page",
			"kind":  string(kind),
		})
		return
	}

	s.logger.Error("failed to create item", "error", err)
	respondError(w, http.StatusInternalServerError, "failed to create item")
}

// Clear items handler
func (s *Server) handleClearItems(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Tracker.Clear(r.Context())
	if err != nil {
		s.logger.Error("failed to clear items", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to clear items")
		return
	}

	respondJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

// Scheduler status handler
func (s *Server) handleScheduler(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scheduler == nil {
		respondError(w, http.StatusNotFound, "scheduler not configured")
		return
	}

	response := map[string]any{
		"state":    s.deps.Scheduler.State(),
		"interval": s.deps.Scheduler.Interval().String(),
	}
	if report, ok := s.deps.Scheduler.LastReport(); ok {
		response["last_cycle"] = report
	}

	respondJSON(w, http.StatusOK, response)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
