package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"struk/internal/core"

	_ "modernc.org/sqlite"
)

const (
	sqliteSelectDocument = `SELECT document, version, updated_at FROM user_documents WHERE user_id = ?`
	sqliteUpsertDocument = `INSERT INTO user_documents (user_id, document, version, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(user_id) DO UPDATE SET
    document = excluded.document,
    version = excluded.version,
    updated_at = excluded.updated_at`
)

// SQLiteStore keeps user documents in a single sqlite table.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ DocumentStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens the database, applies migrations and returns the store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations first, on their own connection
	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// sqlite allows a single writer; one connection keeps transactions serialized
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	slog.Info("SQLite document store ready", "path", dbPath)
	return NewSQLiteStoreFromDB(db), nil
}

// NewSQLiteStoreFromDB wraps an already migrated database.
func NewSQLiteStoreFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storeErr("ping", err)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) ReadUserDocument(ctx context.Context, userID string) (*core.UserDocument, error) {
	return s.read(ctx, s.db, userID)
}

func (s *SQLiteStore) read(ctx context.Context, q queryer, userID string) (*core.UserDocument, error) {
	var (
		raw       string
		version   int64
		updatedAt string
	)
	err := q.QueryRowContext(ctx, sqliteSelectDocument, userID).Scan(&raw, &version, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDocumentAbsent
	}
	if err != nil {
		return nil, storeErr("read", err)
	}
	ts, _ := time.Parse(time.RFC3339Nano, updatedAt)
	doc, err := decodeDocument(userID, []byte(raw), version, ts)
	if err != nil {
		return nil, storeErr("read", err)
	}
	return doc, nil
}

func (s *SQLiteStore) WriteUserDocument(ctx context.Context, doc *core.UserDocument) error {
	bump(doc, s.now())
	return s.write(ctx, s.db, doc)
}

func (s *SQLiteStore) write(ctx context.Context, q queryer, doc *core.UserDocument) error {
	raw, err := encodeDocument(doc)
	if err != nil {
		return storeErr("write", err)
	}
	if _, err := q.ExecContext(ctx, sqliteUpsertDocument,
		doc.UserID, string(raw), doc.Version, doc.UpdatedAt.Format(time.RFC3339Nano)); err != nil {
		return storeErr("write", err)
	}

	slog.DebugContext(ctx, "User document saved to SQLite",
		"user_id", doc.UserID,
		"version", doc.Version,
		"receipts", len(doc.Receipts))
	return nil
}

func (s *SQLiteStore) UpdateUserDocument(ctx context.Context, userID string, fn func(doc *core.UserDocument, exists bool) error) (*core.UserDocument, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("begin", err)
	}
	defer tx.Rollback()

	doc, err := s.read(ctx, tx, userID)
	exists := true
	if errors.Is(err, ErrDocumentAbsent) {
		doc, exists = newDocument(userID), false
	} else if err != nil {
		return nil, err
	}

	if err := fn(doc, exists); err != nil {
		return nil, err
	}

	bump(doc, s.now())
	if err := s.write(ctx, tx, doc); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, storeErr("commit", err)
	}
	return doc, nil
}
