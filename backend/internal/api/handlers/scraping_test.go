package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ps-vitor/xhs-relay/backend/internal/api/models"
	"github.com/ps-vitor/xhs-relay/backend/internal/config"
	"github.com/ps-vitor/xhs-relay/backend/internal/domain"
	"github.com/ps-vitor/xhs-relay/backend/internal/scraping/runner"
	"github.com/ps-vitor/xhs-relay/backend/internal/scraping/services/xhs"
	"github.com/ps-vitor/xhs-relay/backend/internal/services"
	"github.com/ps-vitor/xhs-relay/backend/pkg/logger"
)

type stubScraper struct {
	mu       sync.Mutex
	searches []domain.SearchJob
	profiles []domain.ProfileJob
	result   *domain.ScrapeResult
	err      error
}

func (s *stubScraper) Search(_ context.Context, job domain.SearchJob) (*domain.ScrapeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.searches = append(s.searches, job)

	return s.result, s.err
}

func (s *stubScraper) Profile(_ context.Context, job domain.ProfileJob) (*domain.ScrapeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.profiles = append(s.profiles, job)

	return s.result, s.err
}

var testApp = config.AppConfig{Name: "xhs-relay", Env: "test", Port: 5000}

func serve(t *testing.T, scraper domain.Scraper, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	router := NewRouter(logger.Nop(), testApp, scraper)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Logs)

	return resp
}

func TestScrapeSearch_OK(t *testing.T) {
	stub := &stubScraper{result: &domain.ScrapeResult{Logs: []string{"a", "b", "c"}}}

	rec := serve(t, stub, http.MethodPost, "/api/scrape-search",
		`{"keyword":"cat","numPosts":5,"downloadPath":"/tmp/cats"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	require.JSONEq(t, `{"logs":["a","b","c"],"posts":[]}`, rec.Body.String())
	require.Equal(t, []domain.SearchJob{{Keyword: "cat", NumPosts: 5, DownloadPath: "/tmp/cats"}}, stub.searches)
}

func TestScrapeProfile_OK(t *testing.T) {
	stub := &stubScraper{result: &domain.ScrapeResult{Logs: []string{""}}}

	rec := serve(t, stub, http.MethodPost, "/api/scrape-profile",
		`{"profileUrls":["https://x/u/1","https://x/u/2"],"downloadPath":"/d"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"logs":[""],"posts":[]}`, rec.Body.String())
	require.Equal(t, []domain.ProfileJob{{ProfileURLs: []string{"https://x/u/1", "https://x/u/2"}, DownloadPath: "/d"}}, stub.profiles)
}

func TestScrapeProfile_EmptyURLs(t *testing.T) {
	stub := &stubScraper{result: &domain.ScrapeResult{Logs: []string{"nothing to do"}}}

	rec := serve(t, stub, http.MethodPost, "/api/scrape-profile", `{"profileUrls":[],"downloadPath":"/d"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, stub.profiles, 1)
	require.Empty(t, stub.profiles[0].ProfileURLs)
}

func TestScrape_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
	}{
		{"search missing fields", "/api/scrape-search", `{"keyword":"cat"}`},
		{"search wrong type", "/api/scrape-search", `{"keyword":"cat","numPosts":"5","downloadPath":"/d"}`},
		{"search malformed", "/api/scrape-search", `{"keyword":`},
		{"search empty body", "/api/scrape-search", ``},
		{"profile missing urls", "/api/scrape-profile", `{"downloadPath":"/d"}`},
		{"profile urls not array", "/api/scrape-profile", `{"profileUrls":"https://x","downloadPath":"/d"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubScraper{result: &domain.ScrapeResult{}}

			rec := serve(t, stub, http.MethodPost, tt.path, tt.body)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Equal(t, domain.KindValidation, decodeError(t, rec).Error)
			require.Empty(t, stub.searches, "nothing may be spawned for an invalid request")
			require.Empty(t, stub.profiles)
		})
	}
}

func TestScrape_BodyTooLarge(t *testing.T) {
	stub := &stubScraper{result: &domain.ScrapeResult{}}
	body := `{"keyword":"` + strings.Repeat("x", maxBodyBytes) + `","numPosts":1,"downloadPath":"/d"}`

	rec := serve(t, stub, http.MethodPost, "/api/scrape-search", body)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, decodeError(t, rec).Logs[0], "too large")
}

func TestScrape_ProcessError(t *testing.T) {
	perr := &domain.ExternalProcessError{
		Program:  "python3",
		ExitCode: 1,
		Stderr:   "Traceback\nKeyError: 'cookie'\n",
		Err:      errors.New("exit status 1"),
	}
	stub := &stubScraper{err: fmt.Errorf("search scrape: %w", perr)}

	rec := serve(t, stub, http.MethodPost, "/api/scrape-search",
		`{"keyword":"cat","numPosts":5,"downloadPath":"/d"}`)

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	resp := decodeError(t, rec)
	require.Len(t, resp.Logs, 1)
	require.Contains(t, resp.Logs[0], "exit 1")
	require.Equal(t, domain.KindExternalProcess, resp.Error)
	require.Equal(t, []string{"Traceback", "KeyError: 'cookie'"}, resp.Stderr)
	require.Equal(t, rec.Header().Get(RequestIDHeader), resp.RequestID)
}

func TestScrape_Timeout(t *testing.T) {
	stub := &stubScraper{err: &domain.TimeoutError{Program: "python3", Timeout: time.Minute}}

	rec := serve(t, stub, http.MethodPost, "/api/scrape-profile", `{"profileUrls":["u"],"downloadPath":"/d"}`)

	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
	require.Equal(t, domain.KindTimeout, decodeError(t, rec).Error)
}

func TestScrape_Busy(t *testing.T) {
	stub := &stubScraper{err: domain.ErrBusy}

	rec := serve(t, stub, http.MethodPost, "/api/scrape-profile", `{"profileUrls":["u"],"downloadPath":"/d"}`)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "5", rec.Header().Get("Retry-After"))
	require.Equal(t, domain.KindBusy, decodeError(t, rec).Error)
}

func TestRequestIDIsEchoed(t *testing.T) {
	stub := &stubScraper{result: &domain.ScrapeResult{Logs: []string{"x"}}}
	router := NewRouter(logger.Nop(), testApp, stub)

	req := httptest.NewRequest(http.MethodPost, "/api/scrape-search",
		strings.NewReader(`{"keyword":"cat","numPosts":1,"downloadPath":"/d"}`))
	req.Header.Set(RequestIDHeader, "client-chosen-id")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, "client-chosen-id", rec.Header().Get(RequestIDHeader))
}

func TestRouting(t *testing.T) {
	stub := &stubScraper{result: &domain.ScrapeResult{}}

	rec := serve(t, stub, http.MethodGet, "/api/scrape-search", "")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	require.Equal(t, rec.Header().Get(RequestIDHeader), decodeError(t, rec).RequestID)

	rec = serve(t, stub, http.MethodPost, "/api/unknown", "{}")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	resp := decodeError(t, rec)
	require.Equal(t, "NotFound", resp.Error)
	require.Equal(t, rec.Header().Get(RequestIDHeader), resp.RequestID)
}

func TestUnmatchedRoutesAreLogged(t *testing.T) {
	var buf bytes.Buffer
	router := NewRouter(logger.NewWithWriter(&buf, "xhs-relay", false), testApp, &stubScraper{})

	req := httptest.NewRequest(http.MethodPost, "/api/unknown", strings.NewReader("{}"))
	req.Header.Set(RequestIDHeader, "lost-client")
	router.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "Request handled", entry["msg"])
	require.Equal(t, "lost-client", entry["request_id"])
	require.EqualValues(t, http.StatusNotFound, entry["status"])
}

func TestHealth(t *testing.T) {
	svc := services.NewScraperService(logger.Nop(), &stubScraper{}, services.Options{MaxConcurrent: 3})

	rec := serve(t, svc, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "ok", resp.Status)
	require.Equal(t, "xhs-relay", resp.App)
	require.Equal(t, "test", resp.Env)
	require.Equal(t, map[string]string{"scrapes_in_flight": "0/3"}, resp.Checks)
}

// TestEndToEnd drives the full stack against real /bin/sh scripts.
func TestEndToEnd(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("Test requires a POSIX shell")
	}

	dir := t.TempDir()
	echo := filepath.Join(dir, "echo_args.sh")
	fail := filepath.Join(dir, "fail.sh")
	require.NoError(t, os.WriteFile(echo, []byte("for a in \"$@\"; do printf '%s\\n' \"$a\"; done\n"), 0o644))
	require.NoError(t, os.WriteFile(fail, []byte("echo 'cookie file missing' >&2\nexit 2\n"), 0o644))

	run := runner.NewExecRunner(logger.Nop(), 5*time.Second)
	bridge := xhs.NewService(run,
		xhs.Program{Command: "/bin/sh", Script: echo},
		xhs.Program{Command: "/bin/sh", Script: fail},
	)
	svc := services.NewScraperService(logger.Nop(), bridge, services.Options{MaxConcurrent: 4, QueueTimeout: 5 * time.Second})

	server := httptest.NewServer(NewRouter(logger.Nop(), testApp, svc))
	defer server.Close()

	keyword := `"; touch pwned; echo "`
	body, err := json.Marshal(map[string]any{"keyword": keyword, "numPosts": 3, "downloadPath": dir})
	require.NoError(t, err)

	resp, err := http.Post(server.URL+"/api/scrape-search", "application/json", strings.NewReader(string(body)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ok models.ScrapeResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ok))
	require.Equal(t, []string{keyword, "3", dir, ""}, ok.Logs)
	require.Empty(t, ok.Posts)

	_, err = os.Stat(filepath.Join(dir, "pwned"))
	require.True(t, os.IsNotExist(err), "keyword must not be interpreted by a shell")

	resp2, err := http.Post(server.URL+"/api/scrape-profile", "application/json",
		strings.NewReader(`{"profileUrls":["u"],"downloadPath":"/d"}`))
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusInternalServerError, resp2.StatusCode)

	var failed models.ErrorResponse
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&failed))
	require.Equal(t, domain.KindExternalProcess, failed.Error)
	require.Equal(t, []string{"cookie file missing"}, failed.Stderr)
}

func TestEndToEnd_ConcurrentRequests(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("Test requires a POSIX shell")
	}

	dir := t.TempDir()
	echo := filepath.Join(dir, "echo_args.sh")
	require.NoError(t, os.WriteFile(echo, []byte("sleep 0.1\nfor a in \"$@\"; do printf '%s\\n' \"$a\"; done\n"), 0o644))

	p := xhs.Program{Command: "/bin/sh", Script: echo}
	bridge := xhs.NewService(runner.NewExecRunner(logger.Nop(), 5*time.Second), p, p)
	svc := services.NewScraperService(logger.Nop(), bridge, services.Options{MaxConcurrent: 8, QueueTimeout: 10 * time.Second})

	server := httptest.NewServer(NewRouter(logger.Nop(), testApp, svc))
	defer server.Close()

	const n = 8

	var wg sync.WaitGroup

	got := make([][]string, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			body := fmt.Sprintf(`{"keyword":"kw-%d","numPosts":%d,"downloadPath":"/d"}`, i, i)

			resp, err := http.Post(server.URL+"/api/scrape-search", "application/json", strings.NewReader(body))
			if err != nil {
				errs[i] = err
				return
			}
			defer resp.Body.Close()

			var out models.ScrapeResponse
			errs[i] = json.NewDecoder(resp.Body).Decode(&out)
			got[i] = out.Logs
		}(i)
	}

	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, []string{fmt.Sprintf("kw-%d", i), fmt.Sprint(i), "/d", ""}, got[i])
	}
}
