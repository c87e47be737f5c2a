// Package http provides the JSON API server and its handlers.
//
// This file implements a small builder for JSON responses and the mapping
// from domain errors to status codes and error bodies.

package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"struk/internal/auth"
	"struk/internal/core"
	"struk/internal/log"
)

// Error kinds reported in error bodies.
const (
	KindValidation       = "validation"
	KindNotFound         = "not_found"
	KindExtraction       = "extraction"
	KindStoreUnavailable = "store_unavailable"
	KindThrottled        = "throttled"
	KindUnauthorized     = "unauthorized"
	KindTooLarge         = "too_large"
	KindInternal         = "internal"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	body       any
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body. A nil body writes none.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.body)
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind              string  `json:"kind"`
	Message           string  `json:"message"`
	Field             string  `json:"field,omitempty"`
	RawText           *string `json:"rawText,omitempty"`
	RetryAfterSeconds int     `json:"retryAfterSeconds,omitempty"`
}

// ErrorResponse maps err to its status code and error body.
func ErrorResponse(err error) *JSONResponseBuilder {
	var (
		validation *core.ValidationError
		extraction *core.ExtractionError
		throttled  *core.ThrottledError
		tooLarge   *http.MaxBytesError
	)
	b := NewJSONResponse()
	detail := errorDetail{Message: err.Error()}

	switch {
	case errors.As(err, &validation):
		b.Status(http.StatusBadRequest)
		detail.Kind = KindValidation
		detail.Field = validation.Field
	case errors.Is(err, core.ErrValidation):
		b.Status(http.StatusBadRequest)
		detail.Kind = KindValidation
	case errors.Is(err, core.ErrNotFound):
		b.Status(http.StatusNotFound)
		detail.Kind = KindNotFound
	case errors.As(err, &extraction):
		b.Status(http.StatusUnprocessableEntity)
		detail.Kind = KindExtraction
		raw := extraction.RawText
		detail.RawText = &raw
	case errors.As(err, &throttled):
		secs := int(throttled.RetryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		b.Status(http.StatusTooManyRequests).Header("Retry-After", strconv.Itoa(secs))
		detail.Kind = KindThrottled
		detail.RetryAfterSeconds = secs
	case errors.Is(err, core.ErrStoreUnavailable):
		b.Status(http.StatusServiceUnavailable).Header("Retry-After", "1")
		detail.Kind = KindStoreUnavailable
		detail.Message = "receipt store is temporarily unavailable"
	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidToken):
		b.Status(http.StatusUnauthorized).Header("WWW-Authenticate", `Bearer realm="struk"`)
		detail.Kind = KindUnauthorized
	case errors.As(err, &tooLarge):
		b.Status(http.StatusRequestEntityTooLarge)
		detail.Kind = KindTooLarge
		detail.Message = "request body exceeds " + strconv.FormatInt(tooLarge.Limit, 10) + " bytes"
	default:
		b.Status(http.StatusInternalServerError)
		detail.Kind = KindInternal
		detail.Message = "internal error"
	}
	return b.Body(errorBody{Error: detail})
}

// writeError logs server-side failures and writes the mapped error body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	b := ErrorResponse(err)
	if b.statusCode >= http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldStatusCode, b.statusCode,
			log.FieldError, err)
	}
	b.Write(w)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	NewJSONResponse().Status(status).Body(v).Write(w)
}
