package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"struk/internal/core"
)

// ErrDocumentAbsent is returned when a user has no stored document yet.
var ErrDocumentAbsent = errors.New("user document absent")

// DocumentStore persists one aggregate document per user.
type DocumentStore interface {
	// ReadUserDocument returns ErrDocumentAbsent when the user has no document.
	ReadUserDocument(ctx context.Context, userID string) (*core.UserDocument, error)

	// WriteUserDocument replaces the user's document.
	WriteUserDocument(ctx context.Context, doc *core.UserDocument) error

	// UpdateUserDocument runs fn over the current document inside a per-document
	// transaction and persists the result. exists is false for a fresh document.
	// An error from fn aborts the write and is returned unchanged.
	UpdateUserDocument(ctx context.Context, userID string, fn func(doc *core.UserDocument, exists bool) error) (*core.UserDocument, error)

	Ping(ctx context.Context) error
	Close() error
}

func newDocument(userID string) *core.UserDocument {
	return &core.UserDocument{UserID: userID, Receipts: []core.Receipt{}}
}

func encodeDocument(doc *core.UserDocument) ([]byte, error) {
	if doc.Receipts == nil {
		doc.Receipts = []core.Receipt{}
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document %s: %w", doc.UserID, err)
	}
	return b, nil
}

func decodeDocument(userID string, raw []byte, version int64, updatedAt time.Time) (*core.UserDocument, error) {
	doc := newDocument(userID)
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", userID, err)
	}
	doc.UserID = userID
	doc.Version = version
	doc.UpdatedAt = updatedAt
	if doc.Receipts == nil {
		doc.Receipts = []core.Receipt{}
	}
	return doc, nil
}

// bump advances the optimistic version and timestamp before a write.
func bump(doc *core.UserDocument, now time.Time) {
	doc.Version++
	doc.UpdatedAt = now.UTC()
}

func storeErr(op string, err error) error {
	return &core.StoreError{Op: op, Cause: err}
}
