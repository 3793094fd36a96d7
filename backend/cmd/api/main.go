// backend/cmd/api/main.go
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ps-vitor/xhs-relay/backend/internal/api/handlers"
	"github.com/ps-vitor/xhs-relay/backend/internal/config"
	"github.com/ps-vitor/xhs-relay/backend/internal/scraping/runner"
	"github.com/ps-vitor/xhs-relay/backend/internal/scraping/services/xhs"
	"github.com/ps-vitor/xhs-relay/backend/internal/server"
	"github.com/ps-vitor/xhs-relay/backend/internal/services"
	"github.com/ps-vitor/xhs-relay/backend/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Error loading config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Name, cfg.App.Debug)

	search := cfg.Scraping.Search.Program()
	profile := cfg.Scraping.Profile.Program()

	for name, p := range map[string]xhs.Program{"search": search, "profile": profile} {
		if err := p.Check(); err != nil {
			log.Error("Scraper program unavailable", "program", name, "error", err)
			os.Exit(1)
		}
	}

	// Setup dependencies
	r := runner.NewExecRunner(log, cfg.Scraping.Timeout)
	scraperSvc := services.NewScraperService(log, xhs.NewService(r, search, profile), services.Options{
		MaxConcurrent: cfg.Scraping.MaxConcurrent,
		QueueTimeout:  cfg.Scraping.QueueTimeout,
		RateInterval:  cfg.Scraping.RateLimit.Interval,
		RateBurst:     cfg.Scraping.RateLimit.Burst,
	})

	srv := server.New(log, cfg.Addr(), handlers.NewRouter(log, cfg.App, scraperSvc), cfg.App.ShutdownTimeout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Starting relay",
		"env", cfg.App.Env,
		"timeout", cfg.Scraping.Timeout,
		"max_concurrent", cfg.Scraping.MaxConcurrent,
	)

	// Returns once shutdown has finished and every handler has returned.
	if err := srv.ListenAndServe(ctx); err != nil {
		log.Error("Server failed", "error", err)
		os.Exit(1)
	}

	log.Info("Server stopped")
}
