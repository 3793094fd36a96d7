package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/oklog/ulid/v2"

	"github.com/ps-vitor/xhs-relay/backend/internal/api/models"
	"github.com/ps-vitor/xhs-relay/backend/internal/config"
	"github.com/ps-vitor/xhs-relay/backend/internal/domain"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-Id"

// InFlighter is implemented by scrapers that gate concurrent runs.
type InFlighter interface {
	InFlight() (running, capacity int64)
}

type APIHandler struct {
	log      *slog.Logger
	app      config.AppConfig
	scraping *ScrapingHandler
	scraper  domain.Scraper
	started  time.Time
}

func NewAPIHandler(log *slog.Logger, app config.AppConfig, scraper domain.Scraper) *APIHandler {
	log = log.With("component", "http")

	return &APIHandler{
		log:      log,
		app:      app,
		scraping: NewScrapingHandler(log, scraper),
		scraper:  scraper,
		started:  time.Now(),
	}
}

// NewRouter builds the relay's router.
func NewRouter(log *slog.Logger, app config.AppConfig, scraper domain.Scraper) *mux.Router {
	r := mux.NewRouter()
	NewAPIHandler(log, app, scraper).RegisterRoutes(r)

	return r
}

func (h *APIHandler) RegisterRoutes(r *mux.Router) {
	r.Use(h.requestID, h.logRequests)

	r.HandleFunc("/api/scrape-search", h.scraping.HandleScrapeSearch).Methods(http.MethodPost)
	r.HandleFunc("/api/scrape-profile", h.scraping.HandleScrapeProfile).Methods(http.MethodPost)
	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)

	// mux does not run Use middleware for these two.
	r.NotFoundHandler = h.withMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{
			Logs:      []string{fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path)},
			Error:     "NotFound",
			RequestID: domain.RequestIDFromContext(r.Context()),
		})
	}))
	r.MethodNotAllowedHandler = h.withMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, models.ErrorResponse{
			Logs:      []string{fmt.Sprintf("method %s not allowed on %s", r.Method, r.URL.Path)},
			Error:     "MethodNotAllowed",
			RequestID: domain.RequestIDFromContext(r.Context()),
		})
	}))
}

func (h *APIHandler) withMiddleware(next http.Handler) http.Handler {
	return h.requestID(h.logRequests(next))
}

func (h *APIHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := models.HealthResponse{
		Status:    "ok",
		App:       h.app.Name,
		Env:       h.app.Env,
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.started).Round(time.Second).String(),
	}

	if g, ok := h.scraper.(InFlighter); ok {
		running, capacity := g.InFlight()
		resp.Checks = map[string]string{
			"scrapes_in_flight": fmt.Sprintf("%d/%d", running, capacity),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *APIHandler) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = ulid.Make().String()
		}

		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(domain.ContextWithRequestID(r.Context(), id)))
	})
}

func (h *APIHandler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		requestLogger(h.log, r).Info("Request handled",
			"status", rec.status,
			"duration", time.Since(start),
			"client_gone", errors.Is(r.Context().Err(), context.Canceled),
		)
	})
}

func requestLogger(log *slog.Logger, r *http.Request) *slog.Logger {
	return log.With(
		"request_id", domain.RequestIDFromContext(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
	)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
