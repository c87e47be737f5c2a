package core

import (
	"errors"
	"fmt"
	"time"
)

// Error kinds surfaced at the boundary. Typed errors below match them with errors.Is.
var (
	ErrValidation       = errors.New("validation error")
	ErrNotFound         = errors.New("not found")
	ErrExtraction       = errors.New("extraction failure")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrThrottled        = errors.New("throttled")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// MissingField reports an absent required field.
func MissingField(field string) *ValidationError {
	return &ValidationError{Field: field, Message: "is required"}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ExtractionError carries the raw extractor output so a human can still read it.
type ExtractionError struct {
	Reason  string
	RawText string
	Cause   error
}

func (e *ExtractionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("extraction failed: %s: %v", e.Reason, e.Cause)
	}
	return "extraction failed: " + e.Reason
}

func (e *ExtractionError) Unwrap() error { return e.Cause }

func (e *ExtractionError) Is(target error) bool { return target == ErrExtraction }

// StoreError wraps a failed persistent-store call. It is retryable.
type StoreError struct {
	Op    string
	Cause error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Cause)
}

func (e *StoreError) Unwrap() error { return e.Cause }

func (e *StoreError) Is(target error) bool { return target == ErrStoreUnavailable }

// ThrottledError tells the caller when to retry.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("too many attempts, retry after %s", e.RetryAfter)
}

func (e *ThrottledError) Is(target error) bool { return target == ErrThrottled }

// NotFoundf builds an error matching ErrNotFound.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNotFound}, args...)...)
}
