package memory

import (
	"context"
	"fmt"
	"sync"

	"struk/internal/core"
	"struk/internal/sheets"
)

// Store is an in-process ReceiptMirror used when no spreadsheet is configured.
type Store struct {
	mu   sync.Mutex
	rows [][]string
}

var _ sheets.ReceiptMirror = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// UpsertReceipt replaces the row with the same user and receipt id or appends one.
func (s *Store) UpsertReceipt(_ context.Context, userID string, r core.Receipt) (string, error) {
	if userID == "" || r.ID == "" {
		return "", fmt.Errorf("mirror row needs user and receipt id")
	}
	row := sheets.Row(userID, r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.find(userID, r.ID); i >= 0 {
		s.rows[i] = row
		return fmt.Sprintf("mem:%d", i+1), nil
	}
	s.rows = append(s.rows, row)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// DeleteReceipt drops the row if present.
func (s *Store) DeleteReceipt(_ context.Context, userID, receiptID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.find(userID, receiptID); i >= 0 {
		s.rows = append(s.rows[:i], s.rows[i+1:]...)
	}
	return nil
}

// Rows returns a copy of the mirrored rows in insertion order.
func (s *Store) Rows() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.rows))
	for i, r := range s.rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}

func (s *Store) find(userID, receiptID string) int {
	for i, r := range s.rows {
		if r[0] == userID && r[1] == receiptID {
			return i
		}
	}
	return -1
}
