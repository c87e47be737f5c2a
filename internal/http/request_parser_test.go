package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"struk/internal/core"
)

func TestParseDateRange(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantNil   bool
		wantField string
	}{
		{"neither", "", true, ""},
		{"both", "startDate=2025-06-01&endDate=2025-06-30", false, ""},
		{"same day", "startDate=2025-06-01&endDate=2025-06-01", false, ""},
		{"only start", "startDate=2025-06-01", true, "endDate"},
		{"only end", "endDate=2025-06-30", true, "startDate"},
		{"bad start", "startDate=01/06/2025&endDate=2025-06-30", true, "startDate"},
		{"reversed", "startDate=2025-06-30&endDate=2025-06-01", true, "endDate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, _ := url.ParseQuery(tt.query)
			got, err := ParseDateRange(q)
			if tt.wantField != "" {
				var ve *core.ValidationError
				if !errors.As(err, &ve) || ve.Field != tt.wantField {
					t.Fatalf("err = %v, want validation error on %s", err, tt.wantField)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if (got == nil) != tt.wantNil {
				t.Fatalf("range = %v, wantNil %v", got, tt.wantNil)
			}
		})
	}
}

func TestParseNow(t *testing.T) {
	def := time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC)

	got, err := ParseNow(url.Values{}, def)
	if err != nil || !got.Equal(def) {
		t.Fatalf("default: got %v, %v", got, err)
	}

	got, err = ParseNow(url.Values{"now": {"2025-02-10T08:30:00+07:00"}}, def)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Month() != time.February || got.Day() != 10 {
		t.Errorf("got %v", got)
	}

	if _, err := ParseNow(url.Values{"now": {"2025-02-10"}}, def); !errors.Is(err, core.ErrValidation) {
		t.Errorf("date without time: err = %v, want validation error", err)
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}
	decode := func(body string) (payload, error) {
		var p payload
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		err := DecodeJSON(httptest.NewRecorder(), r, &p)
		return p, err
	}

	p, err := decode(`{"name":"struk"}`)
	if err != nil || p.Name != "struk" {
		t.Fatalf("got %+v, %v", p, err)
	}
	for _, body := range []string{"", `{"name":`, `{"name":"a"} {"name":"b"}`} {
		if _, err := decode(body); !errors.Is(err, core.ErrValidation) {
			t.Errorf("body %q: err = %v, want validation error", body, err)
		}
	}

	_, err = decode(`{"name":"` + strings.Repeat("x", maxJSONBody) + `"}`)
	var tooLarge *http.MaxBytesError
	if !errors.As(err, &tooLarge) {
		t.Errorf("oversized body: err = %v, want MaxBytesError", err)
	}
}
