package storage

import (
	"context"
	"sync"
	"time"

	"struk/internal/core"
)

type memoryRow struct {
	raw       []byte
	version   int64
	updatedAt time.Time
}

// MemoryStore keeps encoded documents in a map. Useful for development and tests.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]memoryRow
	now  func() time.Time

	// failNext makes the next call fail with a StoreError. Test hook.
	failNext error
}

var _ DocumentStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]memoryRow), now: time.Now}
}

// FailNext makes the next store call fail with err wrapped as a StoreError.
func (s *MemoryStore) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

func (s *MemoryStore) takeFailure(op string) error {
	if s.failNext == nil {
		return nil
	}
	err := s.failNext
	s.failNext = nil
	return storeErr(op, err)
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) ReadUserDocument(_ context.Context, userID string) (*core.UserDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("read"); err != nil {
		return nil, err
	}
	return s.read(userID)
}

func (s *MemoryStore) read(userID string) (*core.UserDocument, error) {
	row, ok := s.rows[userID]
	if !ok {
		return nil, ErrDocumentAbsent
	}
	doc, err := decodeDocument(userID, row.raw, row.version, row.updatedAt)
	if err != nil {
		return nil, storeErr("read", err)
	}
	return doc, nil
}

func (s *MemoryStore) WriteUserDocument(_ context.Context, doc *core.UserDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("write"); err != nil {
		return err
	}
	bump(doc, s.now())
	return s.write(doc)
}

func (s *MemoryStore) write(doc *core.UserDocument) error {
	raw, err := encodeDocument(doc)
	if err != nil {
		return storeErr("write", err)
	}
	s.rows[doc.UserID] = memoryRow{raw: raw, version: doc.Version, updatedAt: doc.UpdatedAt}
	return nil
}

func (s *MemoryStore) UpdateUserDocument(_ context.Context, userID string, fn func(doc *core.UserDocument, exists bool) error) (*core.UserDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("update"); err != nil {
		return nil, err
	}

	doc, err := s.read(userID)
	exists := true
	if err == ErrDocumentAbsent {
		doc, exists = newDocument(userID), false
	} else if err != nil {
		return nil, err
	}
	if err := fn(doc, exists); err != nil {
		return nil, err
	}
	bump(doc, s.now())
	if err := s.write(doc); err != nil {
		return nil, err
	}
	return doc, nil
}
