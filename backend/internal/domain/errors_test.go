package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExternalProcessError(t *testing.T) {
	root := errors.New("exit status 2")
	err := &ExternalProcessError{
		Program:  "python3",
		ExitCode: 2,
		Stderr:   "Traceback ...",
		Err:      root,
	}

	require.Equal(t, "command failed: python3 (exit 2): exit status 2", err.Error())
	require.ErrorIs(t, err, root)
}

func TestExternalProcessError_SpawnFailure(t *testing.T) {
	root := errors.New("executable file not found in $PATH")
	err := &ExternalProcessError{Program: "nope", ExitCode: -1, Err: root}

	require.Equal(t, "command failed: nope: executable file not found in $PATH", err.Error())
}

func TestTimeoutError(t *testing.T) {
	err := &TimeoutError{Program: "python3", Timeout: 3 * time.Second}

	require.Equal(t, "command timed out after 3s: python3", err.Error())
}

func TestValidationError(t *testing.T) {
	err := &ValidationError{Fields: []FieldError{
		{Field: "keyword", Reason: "is required"},
		{Field: "numPosts", Reason: "is required"},
	}}
	require.Equal(t, "invalid request: keyword is required; numPosts is required", err.Error())

	root := errors.New("unexpected EOF")
	err = &ValidationError{Err: root}
	require.Equal(t, "invalid request: unexpected EOF", err.Error())
	require.ErrorIs(t, err, root)
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"validation", &ValidationError{}, KindValidation},
		{"process", &ExternalProcessError{Err: errors.New("x")}, KindExternalProcess},
		{"wrapped process", fmt.Errorf("search: %w", &ExternalProcessError{Err: errors.New("x")}), KindExternalProcess},
		{"timeout", &TimeoutError{}, KindTimeout},
		{"busy", fmt.Errorf("acquire: %w", ErrBusy), KindBusy},
		{"canceled", context.Canceled, KindCanceled},
		{"other", errors.New("boom"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ErrorKind(tt.err))
		})
	}
}
