package services

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ps-vitor/xhs-relay/backend/internal/api/models"
)

// APIError is a non-2xx answer from the relay.
type APIError struct {
	StatusCode int
	Kind       string
	Logs       []string
	Stderr     []string
	RequestID  string
}

func (e *APIError) Error() string {
	msg := strings.Join(e.Logs, "; ")
	if msg == "" {
		msg = "no details"
	}

	return fmt.Sprintf("relay returned %d %s: %s", e.StatusCode, e.Kind, msg)
}

// RelayClient talks to a running relay over HTTP.
type RelayClient struct {
	client *resty.Client
}

// NewRelayClient creates a client for the relay at baseURL. Scrapes can run
// for minutes, so timeout should be at least the server's scrape timeout.
func NewRelayClient(baseURL string, timeout time.Duration) *RelayClient {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &RelayClient{client: c}
}

// NewRelayClientFromEnv uses SCRAPER_URL, defaulting to the local relay.
func NewRelayClientFromEnv(timeout time.Duration) *RelayClient {
	scraperURL := os.Getenv("SCRAPER_URL")
	if scraperURL == "" {
		scraperURL = "http://localhost:5000"
	}

	return NewRelayClient(scraperURL, timeout)
}

func (c *RelayClient) Search(ctx context.Context, req models.SearchRequest) (*models.ScrapeResponse, string, error) {
	return c.scrape(ctx, "/api/scrape-search", req)
}

func (c *RelayClient) Profile(ctx context.Context, req models.ProfileRequest) (*models.ScrapeResponse, string, error) {
	return c.scrape(ctx, "/api/scrape-profile", req)
}

func (c *RelayClient) Health(ctx context.Context) (*models.HealthResponse, error) {
	var out models.HealthResponse

	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/health")
	if err != nil {
		return nil, fmt.Errorf("health: %w", err)
	}
	if resp.IsError() {
		return nil, &APIError{StatusCode: resp.StatusCode(), Kind: "HealthCheck"}
	}

	return &out, nil
}

// scrape posts body to path and returns the response with its request id.
func (c *RelayClient) scrape(ctx context.Context, path string, body any) (*models.ScrapeResponse, string, error) {
	var (
		out     models.ScrapeResponse
		failure models.ErrorResponse
	)

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&failure).
		Post(path)
	if err != nil {
		return nil, "", fmt.Errorf("post %s: %w", path, err)
	}

	requestID := resp.Header().Get("X-Request-Id")

	if resp.IsError() {
		return nil, requestID, &APIError{
			StatusCode: resp.StatusCode(),
			Kind:       failure.Error,
			Logs:       failure.Logs,
			Stderr:     failure.Stderr,
			RequestID:  requestID,
		}
	}

	return &out, requestID, nil
}
