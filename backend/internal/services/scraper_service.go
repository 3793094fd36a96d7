// internal/services/scraper_service.go
package services

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/ps-vitor/xhs-relay/backend/internal/domain"
)

type Options struct {
	// MaxConcurrent bounds how many external programs run at once.
	MaxConcurrent int
	// QueueTimeout is how long a job waits for a free slot; 0 fails at once.
	QueueTimeout time.Duration
	// RateInterval is the minimum spacing between program starts; 0 disables it.
	RateInterval time.Duration
	RateBurst    int
}

// ScraperService gates jobs in front of a domain.Scraper: it bounds how many
// run at once, spaces out their starts, and logs each one.
type ScraperService struct {
	log          *slog.Logger
	scraper      domain.Scraper
	slots        *semaphore.Weighted
	limiter      *rate.Limiter
	queueTimeout time.Duration
	capacity     int64
	inFlight     atomic.Int64
}

// Compile-time verification that ScraperService implements domain.Scraper.
var _ domain.Scraper = (*ScraperService)(nil)

func NewScraperService(log *slog.Logger, scraper domain.Scraper, opts Options) *ScraperService {
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}

	limit := rate.Inf
	if opts.RateInterval > 0 {
		limit = rate.Every(opts.RateInterval)
	}
	if opts.RateBurst < 1 {
		opts.RateBurst = 1
	}

	return &ScraperService{
		log:          log.With("component", "scraper_service"),
		scraper:      scraper,
		slots:        semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		limiter:      rate.NewLimiter(limit, opts.RateBurst),
		queueTimeout: opts.QueueTimeout,
		capacity:     int64(opts.MaxConcurrent),
	}
}

func (s *ScraperService) Search(ctx context.Context, job domain.SearchJob) (*domain.ScrapeResult, error) {
	log := s.log.With("keyword", job.Keyword, "num_posts", job.NumPosts, "download_path", job.DownloadPath)

	return s.do(ctx, log, domain.JobSearch, func(ctx context.Context) (*domain.ScrapeResult, error) {
		return s.scraper.Search(ctx, job)
	})
}

func (s *ScraperService) Profile(ctx context.Context, job domain.ProfileJob) (*domain.ScrapeResult, error) {
	log := s.log.With("profile_urls", len(job.ProfileURLs), "download_path", job.DownloadPath)

	return s.do(ctx, log, domain.JobProfile, func(ctx context.Context) (*domain.ScrapeResult, error) {
		return s.scraper.Profile(ctx, job)
	})
}

// InFlight reports how many jobs hold a slot, and how many slots exist.
func (s *ScraperService) InFlight() (running, capacity int64) {
	return s.inFlight.Load(), s.capacity
}

func (s *ScraperService) do(
	ctx context.Context,
	log *slog.Logger,
	kind domain.JobKind,
	run func(context.Context) (*domain.ScrapeResult, error),
) (*domain.ScrapeResult, error) {
	jobID := domain.RequestIDFromContext(ctx)
	if jobID == "" {
		jobID = ulid.Make().String()
	}
	log = log.With("job_id", jobID, "kind", kind)

	if err := s.acquire(ctx); err != nil {
		log.Warn("Scrape rejected", "error", err)
		return nil, err
	}
	defer s.release()

	if err := s.limiter.Wait(ctx); err != nil {
		// Wait fails early when the next token lands past ctx's deadline.
		err = domain.ErrBusy
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		log.Warn("Scrape rejected by rate limiter", "error", err)

		return nil, err
	}

	log.Info("Scrape started")

	res, err := run(ctx)
	if err != nil {
		s.logFailure(log, err)
		return nil, err
	}

	res.JobID = jobID
	log.Info("Scrape finished",
		"duration", res.Duration,
		"exit_code", res.ExitCode,
		"log_lines", len(res.Logs),
	)
	if res.Stderr != "" {
		log.Debug("Scrape stderr", "stderr", res.Stderr)
	}

	return res, nil
}

func (s *ScraperService) acquire(ctx context.Context) error {
	if s.queueTimeout <= 0 {
		if !s.slots.TryAcquire(1) {
			return domain.ErrBusy
		}
		s.inFlight.Add(1)

		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.queueTimeout)
	defer cancel()

	if err := s.slots.Acquire(waitCtx, 1); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		return domain.ErrBusy
	}
	s.inFlight.Add(1)

	return nil
}

func (s *ScraperService) release() {
	s.inFlight.Add(-1)
	s.slots.Release(1)
}

func (s *ScraperService) logFailure(log *slog.Logger, err error) {
	var (
		perr *domain.ExternalProcessError
		terr *domain.TimeoutError
	)

	switch {
	case errors.As(err, &perr):
		log.Error("Error executing script", "exit_code", perr.ExitCode, "stderr", perr.Stderr, "error", err)
	case errors.As(err, &terr):
		log.Error("Script timed out", "timeout", terr.Timeout, "stderr", terr.Stderr)
	case errors.Is(err, context.Canceled):
		log.Info("Scrape cancelled by client")
	default:
		log.Error("Scrape failed", "error", err)
	}
}
