package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// drainTimeout is how long handlers get to return once their requests have
// been cancelled, so the runner can kill its process trees.
const drainTimeout = 10 * time.Second

// Server is the relay's HTTP server. On shutdown it stops accepting
// connections and waits for in-flight scrapes; scrapes still running after
// the grace period are cancelled, which kills their programs.
type Server struct {
	log   *slog.Logger
	srv   *http.Server
	grace time.Duration
}

func New(log *slog.Logger, addr string, handler http.Handler, grace time.Duration) *Server {
	return &Server{
		log: log.With("component", "server"),
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		grace: grace,
	}
}

// ListenAndServe listens on the configured address and serves until ctx is
// done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}

	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down. It returns only
// after every handler has returned.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	baseCtx, cancelRequests := context.WithCancel(context.Background())
	defer cancelRequests()

	s.srv.BaseContext = func(net.Listener) context.Context { return baseCtx }

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.srv.Serve(ln)
	}()

	s.log.Info("Server running", "addr", ln.Addr().String())

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	s.log.Info("Shutting down", "grace", s.grace)

	err := s.shutdown(s.grace)
	if errors.Is(err, context.DeadlineExceeded) {
		s.log.Warn("Grace period over, cancelling in-flight scrapes")
		cancelRequests()

		err = s.shutdown(drainTimeout)
	}
	if err != nil {
		s.log.Error("Shutdown incomplete, closing connections", "error", err)
		_ = s.srv.Close()
	}

	if serr := <-serveErr; serr != nil && !errors.Is(serr, http.ErrServerClosed) {
		return serr
	}

	return err
}

func (s *Server) shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return s.srv.Shutdown(ctx)
}
