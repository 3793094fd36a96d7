// ./backend/internal/api/models/scrape.go

package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ps-vitor/xhs-relay/backend/internal/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func init() {
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// SearchRequest is the body of POST /api/scrape-search.
type SearchRequest struct {
	Keyword      string `json:"keyword" validate:"required"`
	NumPosts     *int   `json:"numPosts" validate:"required"`
	DownloadPath string `json:"downloadPath" validate:"required"`
}

// ProfileRequest is the body of POST /api/scrape-profile. ProfileURLs must be
// present but may be empty.
type ProfileRequest struct {
	ProfileURLs  []string `json:"profileUrls" validate:"required,dive,required"`
	DownloadPath string   `json:"downloadPath" validate:"required"`
}

// ScrapeResponse is returned when the external program exits cleanly.
// Posts is always empty.
type ScrapeResponse struct {
	Logs  []string          `json:"logs"`
	Posts []json.RawMessage `json:"posts"`
}

// ErrorResponse is returned for every failure. Logs holds the error message
// so clients written against the success shape still find a log line.
type ErrorResponse struct {
	Logs      []string            `json:"logs"`
	Error     string              `json:"error"`
	Stderr    []string            `json:"stderr,omitempty"`
	Fields    []domain.FieldError `json:"fields,omitempty"`
	RequestID string              `json:"requestId,omitempty"`
}

type HealthResponse struct {
	Status    string            `json:"status"`
	App       string            `json:"app"`
	Env       string            `json:"env"`
	Timestamp time.Time         `json:"timestamp"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]string `json:"checks,omitempty"`
}

func (r SearchRequest) Validate() error {
	return validateStruct(r)
}

func (r SearchRequest) Job() domain.SearchJob {
	job := domain.SearchJob{Keyword: r.Keyword, DownloadPath: r.DownloadPath}
	if r.NumPosts != nil {
		job.NumPosts = *r.NumPosts
	}

	return job
}

func (r ProfileRequest) Validate() error {
	return validateStruct(r)
}

func (r ProfileRequest) Job() domain.ProfileJob {
	return domain.ProfileJob{ProfileURLs: r.ProfileURLs, DownloadPath: r.DownloadPath}
}

// NewScrapeResponse builds the success body for res.
func NewScrapeResponse(res *domain.ScrapeResult) ScrapeResponse {
	logs := res.Logs
	if logs == nil {
		logs = []string{}
	}

	return ScrapeResponse{Logs: logs, Posts: []json.RawMessage{}}
}

// NewErrorResponse builds the failure body for err.
func NewErrorResponse(err error, requestID string) ErrorResponse {
	resp := ErrorResponse{
		Logs:      []string{err.Error()},
		Error:     domain.ErrorKind(err),
		RequestID: requestID,
	}

	var (
		perr *domain.ExternalProcessError
		terr *domain.TimeoutError
		verr *domain.ValidationError
	)

	switch {
	case errors.As(err, &perr):
		resp.Stderr = stderrLines(perr.Stderr)
	case errors.As(err, &terr):
		resp.Stderr = stderrLines(terr.Stderr)
	case errors.As(err, &verr):
		resp.Fields = verr.Fields
	}

	return resp
}

func stderrLines(stderr string) []string {
	stderr = strings.TrimRight(stderr, "\r\n")
	if stderr == "" {
		return nil
	}

	lines := strings.Split(stderr, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}

	return lines
}

// Decode reads one JSON object from r into v. Malformed JSON and values of
// the wrong type come back as *domain.ValidationError.
func Decode(r io.Reader, v any) error {
	if err := json.NewDecoder(r).Decode(v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return &domain.ValidationError{
				Fields: []domain.FieldError{{
					Field:  typeErr.Field,
					Reason: fmt.Sprintf("must be %s, got %s", jsonType(typeErr.Type), typeErr.Value),
				}},
				Err: err,
			}
		}

		if errors.Is(err, io.EOF) {
			return &domain.ValidationError{Err: errors.New("request body is empty")}
		}

		return &domain.ValidationError{Err: err}
	}

	return nil
}

func jsonType(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.String:
		return "a string"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "an integer"
	case reflect.Slice, reflect.Array:
		return "an array"
	case reflect.Struct, reflect.Map:
		return "an object"
	default:
		return t.String()
	}
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &domain.ValidationError{Err: err}
	}

	fields := make([]domain.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, domain.FieldError{
			Field:  fieldPath(fe),
			Reason: reason(fe),
		})
	}

	return &domain.ValidationError{Fields: fields, Err: err}
}

// fieldPath drops the struct name from the validator namespace, giving
// "profileUrls[1]" rather than "ProfileRequest.profileUrls[1]".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}

	return ns
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	default:
		return "failed " + fe.Tag() + " validation"
	}
}
