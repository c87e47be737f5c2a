package gemini

import (
	"context"
	"errors"

	"struk/internal/ingest"
	"struk/internal/services"
)

// ErrNotConfigured is returned by Disabled for every call.
var ErrNotConfigured = errors.New("model not configured: set GEMINI_API_KEY")

// Disabled stands in for the model when no API key is configured. Drafts and
// insights fail as extraction errors while the rest of the API keeps working.
type Disabled struct{}

var (
	_ ingest.Extractor = Disabled{}
	_ services.Advisor = Disabled{}
)

func (Disabled) Extract(context.Context, string, string) (string, error) {
	return "", ErrNotConfigured
}

func (Disabled) Advise(context.Context, string) (string, error) {
	return "", ErrNotConfigured
}
