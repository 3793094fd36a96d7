package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/ps-vitor/xhs-relay/backend/internal/domain"
)

const (
	// maxOutputSize caps how much of each stream is kept in memory.
	maxOutputSize = 10 * 1024 * 1024 // 10MB
	// defaultWaitDelay bounds how long Wait blocks on inherited pipes after a kill.
	defaultWaitDelay = 5 * time.Second
)

// Command is one invocation of an external program.
type Command struct {
	Path string
	Args []string
	Dir  string
	// Env is appended to the current environment.
	Env []string
}

// String renders the command for logs. It is never handed to a shell.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Path)
	for _, a := range c.Args {
		parts = append(parts, fmt.Sprintf("%q", a))
	}

	return strings.Join(parts, " ")
}

// Result is what a finished program wrote and how it exited.
type Result struct {
	Stdout    string
	Stderr    string
	ExitCode  int
	Duration  time.Duration
	Truncated bool
}

// Runner runs a Command to completion.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ExecRunner runs commands as child processes of this one.
type ExecRunner struct {
	log       *slog.Logger
	timeout   time.Duration
	waitDelay time.Duration
}

// Compile-time verification that ExecRunner implements Runner.
var _ Runner = (*ExecRunner)(nil)

// NewExecRunner creates a runner that kills any run lasting longer than
// timeout. A zero timeout disables the limit.
func NewExecRunner(log *slog.Logger, timeout time.Duration) *ExecRunner {
	return &ExecRunner{
		log:       log.With("component", "runner"),
		timeout:   timeout,
		waitDelay: defaultWaitDelay,
	}
}

// Run starts cmd and waits for it to exit.
//
// A non-zero exit or a failed start returns *domain.ExternalProcessError,
// an expired timeout returns *domain.TimeoutError, and a cancelled ctx
// returns the context error. The Result is returned alongside any error
// so callers can still see partial output.
func (r *ExecRunner) Run(ctx context.Context, c Command) (*Result, error) {
	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	stdout := newCappedBuffer(maxOutputSize)
	stderr := newCappedBuffer(maxOutputSize)

	//nolint:gosec // G204: running the configured scraper with caller data as argv is the point
	cmd := exec.CommandContext(runCtx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Cancel = func() error {
		return killTree(r.log, cmd.Process)
	}
	cmd.WaitDelay = r.waitDelay

	r.log.Debug("Starting external program", "command", c.String(), "dir", c.Dir)

	start := time.Now()
	err := cmd.Run()

	res := &Result{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Duration:  time.Since(start),
		Truncated: stdout.Truncated() || stderr.Truncated(),
	}

	if res.Truncated {
		r.log.Warn("External program output truncated", "command", c.Path, "limit_bytes", maxOutputSize)
	}

	if err == nil {
		return res, nil
	}

	res.ExitCode = -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		r.log.Info("External program cancelled", "command", c.Path, "error", ctxErr)

		return res, fmt.Errorf("run %s: %w", c.Path, ctxErr)
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		r.log.Warn("External program timed out", "command", c.Path, "timeout", r.timeout)

		return res, &domain.TimeoutError{
			Program: c.Path,
			Timeout: r.timeout,
			Stderr:  res.Stderr,
		}
	}

	return res, &domain.ExternalProcessError{
		Program:  c.Path,
		ExitCode: res.ExitCode,
		Stderr:   res.Stderr,
		Err:      err,
	}
}
