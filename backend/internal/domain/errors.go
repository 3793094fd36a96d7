// backend/internal/domain/errors.go
package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrBusy is returned when every scrape slot is taken.
var ErrBusy = errors.New("too many scrapes in progress, try again later")

// Error kinds reported to API clients.
const (
	KindValidation      = "ValidationError"
	KindExternalProcess = "ExternalProcessError"
	KindTimeout         = "TimeoutError"
	KindBusy            = "Busy"
	KindCanceled        = "Canceled"
	KindInternal        = "InternalError"
)

// ExternalProcessError means the external program could not be started or
// exited with a non-zero status.
type ExternalProcessError struct {
	Program  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExternalProcessError) Error() string {
	if e.ExitCode < 0 {
		return fmt.Sprintf("command failed: %s: %v", e.Program, e.Err)
	}

	return fmt.Sprintf("command failed: %s (exit %d): %v", e.Program, e.ExitCode, e.Err)
}

func (e *ExternalProcessError) Unwrap() error {
	return e.Err
}

// TimeoutError means the external program ran past its deadline and was killed.
type TimeoutError struct {
	Program string
	Timeout time.Duration
	Stderr  string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command timed out after %s: %s", e.Timeout, e.Program)
}

// FieldError describes one rejected request field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError means a request was rejected before anything was spawned.
type ValidationError struct {
	Fields []FieldError
	Err    error
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		if e.Err != nil {
			return fmt.Sprintf("invalid request: %v", e.Err)
		}

		return "invalid request"
	}

	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Reason)
	}

	return "invalid request: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ErrorKind classifies err for API responses.
func ErrorKind(err error) string {
	var (
		verr *ValidationError
		perr *ExternalProcessError
		terr *TimeoutError
	)

	switch {
	case errors.As(err, &verr):
		return KindValidation
	case errors.As(err, &terr):
		return KindTimeout
	case errors.As(err, &perr):
		return KindExternalProcess
	case errors.Is(err, ErrBusy):
		return KindBusy
	case errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindInternal
	}
}
