// backend/internal/domain/scraper.go
package domain

import (
	"context"
	"time"
)

// JobKind names which external program a job runs.
type JobKind string

const (
	JobSearch  JobKind = "search"
	JobProfile JobKind = "profile"
)

// SearchJob asks the search program for NumPosts posts matching Keyword.
type SearchJob struct {
	Keyword      string
	NumPosts     int
	DownloadPath string
}

// ProfileJob asks the profile program to scrape every URL in ProfileURLs.
// An empty ProfileURLs is valid and still runs the program.
type ProfileJob struct {
	ProfileURLs  []string
	DownloadPath string
}

// ScrapeResult is what a finished external program left behind.
type ScrapeResult struct {
	JobID    string
	Kind     JobKind
	Logs     []string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Scraper runs the external scraping programs.
type Scraper interface {
	Search(ctx context.Context, job SearchJob) (*ScrapeResult, error)
	Profile(ctx context.Context, job ProfileJob) (*ScrapeResult, error)
}
