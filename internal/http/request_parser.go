// Package http provides the JSON API server and its handlers.
//
// This file implements utilities for parsing and validating request data.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"struk/internal/core"
)

// maxJSONBody caps JSON request bodies.
const maxJSONBody = 1 << 20

// ParseDateRange reads startDate and endDate. Both or neither must be given;
// neither yields a nil range.
func ParseDateRange(query url.Values) (*core.DateRange, error) {
	start := strings.TrimSpace(query.Get("startDate"))
	end := strings.TrimSpace(query.Get("endDate"))
	switch {
	case start == "" && end == "":
		return nil, nil
	case start == "":
		return nil, core.NewValidationError("startDate", "is required when endDate is given")
	case end == "":
		return nil, core.NewValidationError("endDate", "is required when startDate is given")
	}
	r, err := core.NewDateRange(start, end)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ParseNow reads an RFC 3339 "now" parameter, falling back to def.
func ParseNow(query url.Values, def time.Time) (time.Time, error) {
	v := strings.TrimSpace(query.Get("now"))
	if v == "" {
		return def, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, core.NewValidationError("now", "must be an RFC 3339 timestamp")
	}
	return t, nil
}

// DecodeJSON decodes exactly one JSON value from the request body into v.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		var (
			tooLarge   *http.MaxBytesError
			validation *core.ValidationError
		)
		switch {
		case errors.As(err, &tooLarge), errors.As(err, &validation):
			return err
		case errors.Is(err, io.EOF):
			return core.MissingField("body")
		default:
			return core.NewValidationError("body", fmt.Sprintf("is not valid JSON: %v", err))
		}
	}
	if dec.More() {
		return core.NewValidationError("body", "must contain a single JSON value")
	}
	return nil
}
