package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"

	"struk/internal/core"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// fakeSheets serves the subset of the Sheets v4 REST API the client uses.
type fakeSheets struct {
	mu   sync.Mutex
	rows [][]any
}

var rowRange = regexp.MustCompile(`A(\d+):I\d+`)

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := r.URL.Path
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":append"):
		var vr gsheet.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&vr)
		f.rows = append(f.rows, vr.Values...)
		n := len(f.rows)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"updates": map[string]any{"updatedRange": "Receipts!A" + strconv.Itoa(n) + ":I" + strconv.Itoa(n)},
		})
	case r.Method == http.MethodPut && strings.Contains(path, "/values/"):
		m := rowRange.FindStringSubmatch(path)
		n, _ := strconv.Atoi(m[1])
		var vr gsheet.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&vr)
		f.rows[n-1] = vr.Values[0]
		_, _ = w.Write([]byte(`{}`))
	case r.Method == http.MethodGet && strings.Contains(path, "/values/"):
		_ = json.NewEncoder(w).Encode(map[string]any{"values": f.rows})
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":batchUpdate"):
		var req gsheet.BatchUpdateSpreadsheetRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		start := req.Requests[0].DeleteDimension.Range.StartIndex
		f.rows = append(f.rows[:start], f.rows[start+1:]...)
		_, _ = w.Write([]byte(`{}`))
	case r.Method == http.MethodGet:
		_, _ = w.Write([]byte(`{"sheets":[{"properties":{"sheetId":0,"title":"Receipts"}}]}`))
	default:
		http.Error(w, "unexpected "+r.Method+" "+path, http.StatusNotFound)
	}
}

func (f *fakeSheets) snapshot() [][]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]any(nil), f.rows...)
}

func newTestClient(t *testing.T) (*Client, *fakeSheets) {
	t.Helper()
	fake := &fakeSheets{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return NewWithService(svc, "sheet-1", ""), fake
}

func receipt(id string, cents int64) core.Receipt {
	return core.Receipt{
		ID:               id,
		TransactionDate:  "2025-06-03",
		TransactionTime:  "10:15",
		Items:            []core.Item{},
		FinalTotal:       core.MoneyPtr(cents),
		TenderType:       core.StringPtr("debit"),
		CategorySpending: core.StringPtr("Food"),
	}
}

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), " ", "Receipts")
	if err == nil || err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewSheetsService_MissingCredentials(t *testing.T) {
	for _, k := range []string{"GOOGLE_SERVICE_ACCOUNT_JSON", "GOOGLE_SERVICE_ACCOUNT_FILE", "GOOGLE_APPLICATION_CREDENTIALS"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	_, err := newSheetsService(context.Background())
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewSheetsService_UnreadableFile(t *testing.T) {
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", t.TempDir()+"/missing.json")
	_, err := newSheetsService(context.Background())
	if err == nil || !strings.Contains(err.Error(), "read service account file") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClient_NilService(t *testing.T) {
	c := &Client{spreadsheetID: "test"}
	if _, err := c.UpsertReceipt(context.Background(), "u1", receipt("r1", 100)); err == nil {
		t.Fatal("expected error with nil service")
	}
	if err := c.DeleteReceipt(context.Background(), "u1", "r1"); err == nil {
		t.Fatal("expected error with nil service")
	}
}

func TestClient_UpsertWritesHeaderThenReplaces(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	ref, err := c.UpsertReceipt(ctx, "u1", receipt("r1", 31695))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if ref != "Receipts!A2:I2" {
		t.Errorf("ref = %q", ref)
	}
	if _, err := c.UpsertReceipt(ctx, "u1", receipt("r2", 500)); err != nil {
		t.Fatalf("append second: %v", err)
	}

	ref, err = c.UpsertReceipt(ctx, "u1", receipt("r1", 1250))
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if ref != "Receipts!A2:I2" {
		t.Errorf("replace ref = %q", ref)
	}

	rows := fake.snapshot()
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "User ID" {
		t.Errorf("missing header: %v", rows[0])
	}
	if rows[1][1] != "r1" || rows[1][8] != "12.5" {
		t.Errorf("row not replaced: %v", rows[1])
	}
}

func TestClient_DeleteReceipt(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()
	for _, id := range []string{"r1", "r2"} {
		if _, err := c.UpsertReceipt(ctx, "u1", receipt(id, 100)); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}

	if err := c.DeleteReceipt(ctx, "u1", "r1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := c.DeleteReceipt(ctx, "u1", "missing"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}

	rows := fake.snapshot()
	if len(rows) != 2 || rows[1][1] != "r2" {
		t.Fatalf("unexpected rows: %v", rows)
	}
}

func TestFindRow(t *testing.T) {
	keys := [][]string{{"User ID", "Receipt ID"}, {"u1", "r1"}, {"u2"}, {"u2", "r1"}}
	if got := findRow(keys, "u2", "r1"); got != 4 {
		t.Errorf("findRow = %d, want 4", got)
	}
	if got := findRow(keys, "u3", "r1"); got != 0 {
		t.Errorf("findRow = %d, want 0", got)
	}
}
