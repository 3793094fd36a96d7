// backend/internal/scraping/services/xhs/service.go
package xhs

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ps-vitor/xhs-relay/backend/internal/domain"
	"github.com/ps-vitor/xhs-relay/backend/internal/scraping/runner"
)

// Program is how one external scraper is invoked: Command, then Script (if
// any), then Args, then the per-request positional arguments.
type Program struct {
	Command string
	Script  string
	Args    []string
	Dir     string
	Env     []string
}

// Check verifies the program can be started. Relative paths are checked
// against Dir, where the program will run.
func (p Program) Check() error {
	command := p.Command
	if strings.ContainsRune(command, '/') || strings.ContainsRune(command, filepath.Separator) {
		command = p.inDir(command)
	}

	if _, err := runner.Resolve(command); err != nil {
		return err
	}

	if p.Script == "" {
		return nil
	}

	return runner.CheckFile(p.inDir(p.Script))
}

func (p Program) inDir(path string) string {
	if filepath.IsAbs(path) || p.Dir == "" {
		return path
	}

	return filepath.Join(p.Dir, path)
}

func (p Program) command(positional ...string) runner.Command {
	args := make([]string, 0, 1+len(p.Args)+len(positional))
	if p.Script != "" {
		args = append(args, p.Script)
	}
	args = append(args, p.Args...)
	args = append(args, positional...)

	return runner.Command{
		Path: p.Command,
		Args: args,
		Dir:  p.Dir,
		Env:  p.Env,
	}
}

// Service bridges scrape jobs to the search and profile programs.
type Service struct {
	runner  runner.Runner
	search  Program
	profile Program
}

// Compile-time verification that Service implements domain.Scraper.
var _ domain.Scraper = (*Service)(nil)

func NewService(r runner.Runner, search, profile Program) *Service {
	return &Service{runner: r, search: search, profile: profile}
}

// RunSearch invokes the search program as `<program> <keyword> <numPosts> <downloadPath>`.
func (s *Service) RunSearch(ctx context.Context, keyword string, numPosts int, downloadPath string) (*domain.ScrapeResult, error) {
	cmd := s.search.command(keyword, strconv.Itoa(numPosts), downloadPath)

	return s.run(ctx, domain.JobSearch, cmd)
}

// RunProfile invokes the profile program as `<program> <downloadPath> <url>...`.
// With no URLs the program still runs, with downloadPath as its only argument.
func (s *Service) RunProfile(ctx context.Context, profileURLs []string, downloadPath string) (*domain.ScrapeResult, error) {
	positional := make([]string, 0, 1+len(profileURLs))
	positional = append(positional, downloadPath)
	positional = append(positional, profileURLs...)

	return s.run(ctx, domain.JobProfile, s.profile.command(positional...))
}

func (s *Service) Search(ctx context.Context, job domain.SearchJob) (*domain.ScrapeResult, error) {
	return s.RunSearch(ctx, job.Keyword, job.NumPosts, job.DownloadPath)
}

func (s *Service) Profile(ctx context.Context, job domain.ProfileJob) (*domain.ScrapeResult, error) {
	return s.RunProfile(ctx, job.ProfileURLs, job.DownloadPath)
}

func (s *Service) run(ctx context.Context, kind domain.JobKind, cmd runner.Command) (*domain.ScrapeResult, error) {
	res, err := s.runner.Run(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("%s scrape: %w", kind, err)
	}

	// TODO: parse posts from the files the scrapers write under downloadPath
	// once they emit a stable format.
	return &domain.ScrapeResult{
		Kind:     kind,
		Logs:     SplitLogs(res.Stdout),
		Stderr:   res.Stderr,
		ExitCode: res.ExitCode,
		Duration: res.Duration,
	}, nil
}

// SplitLogs splits program output into lines. It keeps empty segments, so
// empty output is [""] and a trailing newline yields a trailing "".
func SplitLogs(stdout string) []string {
	lines := strings.Split(stdout, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}

	return lines
}
