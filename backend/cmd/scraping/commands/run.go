package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ps-vitor/xhs-relay/backend/internal/api/models"
	apiservices "github.com/ps-vitor/xhs-relay/backend/internal/api/services"
	"github.com/ps-vitor/xhs-relay/backend/internal/config"
	"github.com/ps-vitor/xhs-relay/backend/internal/domain"
	"github.com/ps-vitor/xhs-relay/backend/internal/scraping/runner"
	"github.com/ps-vitor/xhs-relay/backend/internal/scraping/services/xhs"
	"github.com/ps-vitor/xhs-relay/backend/internal/services"
	"github.com/ps-vitor/xhs-relay/backend/pkg/logger"
)

type (
	localFunc  func(context.Context, domain.Scraper) (*domain.ScrapeResult, error)
	remoteFunc func(context.Context, *apiservices.RelayClient) (*models.ScrapeResponse, string, error)
)

// summary is what gets rendered after a job, whichever way it ran.
type summary struct {
	kind     domain.JobKind
	mode     string
	id       string
	logs     []string
	stderr   []string
	exitCode int
	duration time.Duration
	err      error
}

// run executes the job locally or against --remote, prints its log lines to
// stdout and a summary table to stderr.
func run(cmd *cobra.Command, kind domain.JobKind, local localFunc, remote remoteFunc) error {
	ctx := cmd.Context()

	var s summary
	if remoteURL != "" {
		s = runRemote(ctx, kind, remote)
	} else {
		var err error
		if s, err = runLocal(ctx, kind, local); err != nil {
			return err
		}
	}

	for _, line := range s.logs {
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
	for _, line := range s.stderr {
		fmt.Fprintln(cmd.ErrOrStderr(), line)
	}

	renderSummary(cmd.ErrOrStderr(), s)

	return s.err
}

func runLocal(ctx context.Context, kind domain.JobKind, fn localFunc) (summary, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return summary{}, fmt.Errorf("load config: %w", err)
	}

	// stdout carries the scraper's own log lines.
	log := logger.NewWithWriter(os.Stderr, cfg.App.Name, cfg.App.Debug)

	search := cfg.Scraping.Search.Program()
	profile := cfg.Scraping.Profile.Program()

	p := search
	if kind == domain.JobProfile {
		p = profile
	}
	if err := p.Check(); err != nil {
		return summary{}, fmt.Errorf("%s program: %w", kind, err)
	}

	svc := services.NewScraperService(log,
		xhs.NewService(runner.NewExecRunner(log, cfg.Scraping.Timeout), search, profile),
		services.Options{MaxConcurrent: 1},
	)

	start := time.Now()
	res, err := fn(ctx, svc)

	s := summary{kind: kind, mode: "local", exitCode: -1, duration: time.Since(start), err: err}
	if res != nil {
		s.id = res.JobID
		s.logs = res.Logs
		s.exitCode = res.ExitCode
		s.duration = res.Duration
	}
	if err != nil {
		s.stderr = models.NewErrorResponse(err, "").Stderr

		var perr *domain.ExternalProcessError
		if errors.As(err, &perr) {
			s.exitCode = perr.ExitCode
		}
	}

	return s, nil
}

func runRemote(ctx context.Context, kind domain.JobKind, fn remoteFunc) summary {
	client := apiservices.NewRelayClient(remoteURL, remoteTimeout)

	start := time.Now()
	res, requestID, err := fn(ctx, client)

	s := summary{kind: kind, mode: "remote " + remoteURL, id: requestID, duration: time.Since(start), err: err}
	if res != nil {
		s.logs = res.Logs
	}
	if err != nil {
		s.exitCode = -1
	}

	var apiErr *apiservices.APIError
	if errors.As(err, &apiErr) {
		s.stderr = apiErr.Stderr
	}

	return s
}

func renderSummary(w io.Writer, s summary) {
	status := "ok"
	if s.err != nil {
		status = domain.ErrorKind(s.err)

		var apiErr *apiservices.APIError
		if errors.As(s.err, &apiErr) && apiErr.Kind != "" {
			status = apiErr.Kind
		}
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Job", "Mode", "ID", "Status", "Exit", "Log lines", "Duration"})
	t.AppendRow(table.Row{
		s.kind,
		s.mode,
		s.id,
		status,
		s.exitCode,
		len(s.logs),
		s.duration.Round(time.Millisecond),
	})
	t.Render()
}
