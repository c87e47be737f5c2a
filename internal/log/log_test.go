package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func jsonLogger(buf *bytes.Buffer) *Logger {
	return New(Config{
		Level:     slog.LevelDebug,
		Component: "test",
		Handler:   slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	})
}

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var m map[string]any
	if err := json.Unmarshal(lines[len(lines)-1], &m); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	return m
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext returned nil")
	}

	var buf bytes.Buffer
	logger := jsonLogger(&buf)
	ctx := WithLogger(context.Background(), logger)
	FromContext(ctx).Info("hello")
	if lastLine(t, &buf)["msg"] != "hello" {
		t.Error("context logger not used")
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var buf bytes.Buffer
	h := Middleware(jsonLogger(&buf))(RequestIDMiddleware(func(*http.Request) string { return "req_1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			FromContext(r.Context()).InfoContext(r.Context(), "handled")
		})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got := lastLine(t, &buf)[FieldRequestID]; got != "req_1" {
		t.Errorf("request_id = %v", got)
	}
}

func TestStructuredLogger(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(jsonLogger(&buf))
	ctx := context.Background()

	sl.LogReceiptMutation(ctx, OpCreate, "u1", "r1", 31695)
	line := lastLine(t, &buf)
	if line["msg"] != "Receipt create committed" || line[FieldReceiptID] != "r1" || line[FieldAmountCents] != float64(31695) {
		t.Errorf("mutation line = %v", line)
	}

	r := httptest.NewRequest(http.MethodGet, "/api/v1/receipts?startDate=2025-07-01", nil)
	sl.LogHTTPEnd(ctx, r, http.StatusServiceUnavailable, 12, "198.51.100.1")
	line = lastLine(t, &buf)
	if line["level"] != "ERROR" || line[FieldStatusCode] != float64(503) || line[FieldSuccess] != false {
		t.Errorf("http end line = %v", line)
	}

	sl.LogError(ctx, "Store failed", errors.New("boom"), ComponentStorage, OpRead, nil)
	line = lastLine(t, &buf)
	if line[FieldError] != "boom" || line[FieldComponent] != ComponentStorage {
		t.Errorf("error line = %v", line)
	}
}

func TestLogFieldsToSlice(t *testing.T) {
	f := NewFields().WithOperation(OpList).WithCache("receipts:u1", true).WithError(nil)
	if len(f.ToSlice()) != 6 {
		t.Errorf("ToSlice() = %v", f.ToSlice())
	}
	if _, ok := f[FieldError]; ok {
		t.Error("nil error must not add a field")
	}
}

func TestContextUserIDIsStamped(t *testing.T) {
	var buf bytes.Buffer
	logger := jsonLogger(&buf).WithComponent(ComponentReceipts)
	ctx := ContextWithUserID(context.Background(), "u1")

	logger.InfoContext(ctx, "listed")
	line := lastLine(t, &buf)
	if line[FieldUserID] != "u1" || line[FieldComponent] != ComponentReceipts {
		t.Errorf("line = %v", line)
	}
	if bytes.Count(buf.Bytes(), []byte(`"component"`)) != 1 {
		t.Errorf("component repeated: %s", buf.String())
	}

	buf.Reset()
	logger.InfoContext(ctx, "explicit", FieldUserID, "u2")
	if got := lastLine(t, &buf)[FieldUserID]; got != "u2" {
		t.Errorf("user_id = %v", got)
	}
	if UserIDFromContext(context.Background()) != "" {
		t.Error("empty context has a user id")
	}
}
