// backend/internal/api/handlers/scraping.go

package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ps-vitor/xhs-relay/backend/internal/api/models"
	"github.com/ps-vitor/xhs-relay/backend/internal/domain"
)

// maxBodyBytes caps request bodies; real requests are a few hundred bytes.
const maxBodyBytes = 1 << 20

type ScrapingHandler struct {
	log            *slog.Logger
	scraperService domain.Scraper
}

func NewScrapingHandler(log *slog.Logger, svc domain.Scraper) *ScrapingHandler {
	return &ScrapingHandler{log: log, scraperService: svc}
}

func (h *ScrapingHandler) HandleScrapeSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.SearchRequest
	if err := decodeRequest(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(w, r, err)
		return
	}

	job := req.Job()
	requestLogger(h.log, r).Info("Received search request",
		"keyword", job.Keyword,
		"num_posts", job.NumPosts,
		"download_path", job.DownloadPath,
	)

	res, err := h.scraperService.Search(ctx, job)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.NewScrapeResponse(res))
}

func (h *ScrapingHandler) HandleScrapeProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.ProfileRequest
	if err := decodeRequest(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(w, r, err)
		return
	}

	job := req.Job()
	requestLogger(h.log, r).Info("Received profile request",
		"profile_urls", job.ProfileURLs,
		"download_path", job.DownloadPath,
	)

	res, err := h.scraperService.Profile(ctx, job)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.NewScrapeResponse(res))
}

func (h *ScrapingHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}

	log := requestLogger(h.log, r)
	if status >= http.StatusInternalServerError {
		log.Error("Scrape request failed", "status", status, "error", err)
	} else {
		log.Warn("Scrape request rejected", "status", status, "error", err)
	}

	writeJSON(w, status, models.NewErrorResponse(err, domain.RequestIDFromContext(r.Context())))
}

func statusFor(err error) int {
	switch domain.ErrorKind(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindBusy:
		return http.StatusServiceUnavailable
	case domain.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func decodeRequest(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	err := models.Decode(r.Body, v)

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return &domain.ValidationError{Err: errors.New("request body too large")}
	}

	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
