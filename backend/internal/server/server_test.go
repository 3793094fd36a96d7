package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ps-vitor/xhs-relay/backend/internal/api/handlers"
	"github.com/ps-vitor/xhs-relay/backend/internal/api/models"
	"github.com/ps-vitor/xhs-relay/backend/internal/config"
	"github.com/ps-vitor/xhs-relay/backend/internal/scraping/runner"
	"github.com/ps-vitor/xhs-relay/backend/internal/scraping/services/xhs"
	"github.com/ps-vitor/xhs-relay/backend/internal/services"
	"github.com/ps-vitor/xhs-relay/backend/pkg/logger"
)

// slowScript sleeps for $1 seconds, marking start and finish under $3.
const slowScript = `echo started > "$3/started"
sleep "$1"
echo finished > "$3/finished"
echo done
`

type relay struct {
	url      string
	dir      string
	stop     context.CancelFunc
	serveErr chan error
}

func startRelay(t *testing.T, grace time.Duration) *relay {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("Test requires a POSIX shell")
	}

	dir := t.TempDir()
	script := filepath.Join(dir, "slow.sh")
	require.NoError(t, os.WriteFile(script, []byte(slowScript), 0o644))

	p := xhs.Program{Command: "/bin/sh", Script: script}
	bridge := xhs.NewService(runner.NewExecRunner(logger.Nop(), time.Minute), p, p)
	svc := services.NewScraperService(logger.Nop(), bridge, services.Options{MaxConcurrent: 2})
	router := handlers.NewRouter(logger.Nop(), config.AppConfig{Name: "xhs-relay"}, svc)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	r := &relay{
		url:      "http://" + ln.Addr().String(),
		dir:      dir,
		stop:     cancel,
		serveErr: make(chan error, 1),
	}

	srv := New(logger.Nop(), ln.Addr().String(), router, grace)
	go func() {
		r.serveErr <- srv.Serve(ctx, ln)
	}()

	return r
}

type reply struct {
	resp *http.Response
	err  error
}

// search posts a search whose program sleeps for seconds, and waits until
// the program has started.
func (r *relay) search(t *testing.T, seconds string) <-chan reply {
	t.Helper()

	body, err := json.Marshal(map[string]any{"keyword": seconds, "numPosts": 1, "downloadPath": r.dir})
	require.NoError(t, err)

	out := make(chan reply, 1)
	go func() {
		resp, err := http.Post(r.url+"/api/scrape-search", "application/json", strings.NewReader(string(body)))
		out <- reply{resp: resp, err: err}
	}()

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(r.dir, "started"))
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	return out
}

func TestServe_ShutdownWaitsForInFlightScrape(t *testing.T) {
	r := startRelay(t, 10*time.Second)
	pending := r.search(t, "1")

	r.stop()

	got := <-pending
	require.NoError(t, got.err)
	defer got.resp.Body.Close()
	require.Equal(t, http.StatusOK, got.resp.StatusCode)

	var ok models.ScrapeResponse
	require.NoError(t, json.NewDecoder(got.resp.Body).Decode(&ok))
	require.Equal(t, []string{"done", ""}, ok.Logs)

	select {
	case err := <-r.serveErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after shutdown")
	}

	_, err := os.Stat(filepath.Join(r.dir, "finished"))
	require.NoError(t, err)
}

func TestServe_ShutdownCancelsScrapesAfterGrace(t *testing.T) {
	r := startRelay(t, 200*time.Millisecond)
	pending := r.search(t, "30")

	start := time.Now()
	r.stop()

	select {
	case err := <-r.serveErr:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after shutdown")
	}
	require.Less(t, time.Since(start), 10*time.Second)

	got := <-pending
	require.NoError(t, got.err)
	defer got.resp.Body.Close()
	require.Equal(t, http.StatusInternalServerError, got.resp.StatusCode)

	var failure models.ErrorResponse
	require.NoError(t, json.NewDecoder(got.resp.Body).Decode(&failure))
	require.Equal(t, "Canceled", failure.Error)

	// The program was killed, not left to run to completion.
	time.Sleep(300 * time.Millisecond)
	_, err := os.Stat(filepath.Join(r.dir, "finished"))
	require.True(t, os.IsNotExist(err))
}

func TestServe_RejectsNewConnectionsAfterShutdown(t *testing.T) {
	r := startRelay(t, time.Second)

	r.stop()
	require.NoError(t, <-r.serveErr)

	_, err := http.Get(r.url + "/health")
	require.Error(t, err)
}
