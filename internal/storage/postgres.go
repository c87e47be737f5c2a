package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"struk/internal/core"
)

const (
	pgSelectDocument          = `SELECT document, version, updated_at FROM user_documents WHERE user_id = $1`
	pgSelectDocumentForUpdate = pgSelectDocument + ` FOR UPDATE`
	pgUpsertDocument          = `INSERT INTO user_documents (user_id, document, version, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id) DO UPDATE SET
    document = EXCLUDED.document,
    version = EXCLUDED.version,
    updated_at = EXCLUDED.updated_at`
	// pgEnsureDocument creates an empty version 0 row so the following
	// FOR UPDATE always has a row to lock, also on a user's first write.
	pgEnsureDocument = `INSERT INTO user_documents (user_id, document, version, updated_at)
VALUES ($1, $2, 0, $3)
ON CONFLICT (user_id) DO NOTHING`
	pgUpdateDocument = `UPDATE user_documents SET document = $2, version = $3, updated_at = $4 WHERE user_id = $1`
)

// pgPool is the part of *pgxpool.Pool the store uses.
type pgPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore keeps user documents as JSONB rows. Updates insert a
// placeholder row when none exists and then lock it with SELECT ... FOR
// UPDATE, so writers on different instances serialize from the first write.
type PostgresStore struct {
	pool pgPool
	now  func() time.Time
}

var _ DocumentStore = (*PostgresStore)(nil)

// NewPostgresStore applies migrations and opens a connection pool.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if err := RunPostgresMigrations(dsn); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	slog.InfoContext(ctx, "Postgres document store ready")
	return newPostgresStore(pool), nil
}

func newPostgresStore(pool pgPool) *PostgresStore {
	return &PostgresStore{pool: pool, now: time.Now}
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return storeErr("ping", err)
	}
	return nil
}

type pgQueryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PostgresStore) ReadUserDocument(ctx context.Context, userID string) (*core.UserDocument, error) {
	return s.read(ctx, s.pool, pgSelectDocument, userID)
}

func (s *PostgresStore) read(ctx context.Context, q pgQueryer, query, userID string) (*core.UserDocument, error) {
	var (
		raw       []byte
		version   int64
		updatedAt time.Time
	)
	err := q.QueryRow(ctx, query, userID).Scan(&raw, &version, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDocumentAbsent
	}
	if err != nil {
		return nil, storeErr("read", err)
	}
	doc, err := decodeDocument(userID, raw, version, updatedAt)
	if err != nil {
		return nil, storeErr("read", err)
	}
	return doc, nil
}

func (s *PostgresStore) WriteUserDocument(ctx context.Context, doc *core.UserDocument) error {
	bump(doc, s.now())
	raw, err := encodeDocument(doc)
	if err != nil {
		return storeErr("write", err)
	}
	if _, err := s.pool.Exec(ctx, pgUpsertDocument, doc.UserID, raw, doc.Version, doc.UpdatedAt); err != nil {
		return storeErr("write", err)
	}
	return nil
}

func (s *PostgresStore) UpdateUserDocument(ctx context.Context, userID string, fn func(doc *core.UserDocument, exists bool) error) (*core.UserDocument, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, storeErr("begin", err)
	}
	defer tx.Rollback(ctx)

	empty, err := encodeDocument(newDocument(userID))
	if err != nil {
		return nil, storeErr("write", err)
	}
	tag, err := tx.Exec(ctx, pgEnsureDocument, userID, empty, s.now().UTC())
	if err != nil {
		return nil, storeErr("write", err)
	}
	exists := tag.RowsAffected() == 0

	doc, err := s.read(ctx, tx, pgSelectDocumentForUpdate, userID)
	if errors.Is(err, ErrDocumentAbsent) {
		return nil, storeErr("read", fmt.Errorf("document %s vanished inside transaction", userID))
	}
	if err != nil {
		return nil, err
	}

	if err := fn(doc, exists); err != nil {
		return nil, err
	}

	bump(doc, s.now())
	raw, err := encodeDocument(doc)
	if err != nil {
		return nil, storeErr("write", err)
	}
	if _, err := tx.Exec(ctx, pgUpdateDocument, doc.UserID, raw, doc.Version, doc.UpdatedAt); err != nil {
		return nil, storeErr("write", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, storeErr("commit", err)
	}
	return doc, nil
}
