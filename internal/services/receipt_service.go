package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"struk/internal/amqp"
	"struk/internal/cache"
	"struk/internal/core"
	"struk/internal/log"
	"struk/internal/storage"
)

// ReceiptStoreConfig tunes caching, store timeouts and the balance check.
type ReceiptStoreConfig struct {
	// CacheTTL is the lifetime of receipts:{userId} (default: 1h)
	CacheTTL time.Duration

	// StoreTimeout bounds every document store call (default: 5s)
	StoreTimeout time.Duration

	// Balance decides how finalTotal mismatches are handled
	Balance core.BalancePolicy
}

// DefaultReceiptStoreConfig returns sensible defaults
func DefaultReceiptStoreConfig() ReceiptStoreConfig {
	return ReceiptStoreConfig{
		CacheTTL:     time.Hour,
		StoreTimeout: 5 * time.Second,
		Balance:      core.DefaultBalancePolicy(),
	}
}

// receiptSnapshot is the cached view of a user's collection.
type receiptSnapshot struct {
	Exists   bool           `json:"exists"`
	Receipts []core.Receipt `json:"receipts"`
}

// ReceiptStore owns each user's receipt collection. Reads go through the
// cache, writes are serialized per user and invalidate the cache after the
// document store commits.
//
// Within one process a cache fill holds the user's read lock for both the
// store read and the cache set, so it cannot publish a snapshot older than
// a concurrent write. Across instances sharing a cache this ordering is not
// guaranteed and staleness is bounded by CacheTTL.
type ReceiptStore struct {
	docs   storage.DocumentStore
	cache  cache.Store
	events EventPublisher
	config ReceiptStoreConfig
	logger *log.Logger

	locks *userLocks
	fills singleflight.Group
	newID func() string
}

// NewReceiptStore wires the store. events may be nil.
func NewReceiptStore(docs storage.DocumentStore, c cache.Store, events EventPublisher, config ReceiptStoreConfig, logger *log.Logger) *ReceiptStore {
	if logger == nil {
		logger = log.Discard()
	}
	return &ReceiptStore{
		docs:   docs,
		cache:  c,
		events: events,
		config: config,
		logger: logger.WithComponent(log.ComponentReceipts),
		locks:  newUserLocks(),
		newID:  func() string { return uuid.NewString() },
	}
}

// List returns the user's receipts. Without a range the cached snapshot is
// used; a range always reads the document store and filters on
// transactionDate, inclusive. A user without a document has no receipts.
func (s *ReceiptStore) List(ctx context.Context, userID string, dateRange *core.DateRange) ([]core.Receipt, error) {
	if dateRange == nil {
		snap, err := s.snapshot(ctx, userID)
		if err != nil {
			return nil, err
		}
		return snap.Receipts, nil
	}

	doc, err := s.read(ctx, userID)
	if errors.Is(err, storage.ErrDocumentAbsent) {
		return []core.Receipt{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]core.Receipt, 0, len(doc.Receipts))
	for _, r := range doc.Receipts {
		if d, ok := r.Date(); ok && dateRange.Contains(d) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Get returns one receipt or an error matching core.ErrNotFound.
func (s *ReceiptStore) Get(ctx context.Context, userID, receiptID string) (core.Receipt, error) {
	snap, err := s.snapshot(ctx, userID)
	if err != nil {
		return core.Receipt{}, err
	}
	for _, r := range snap.Receipts {
		if r.ID == receiptID {
			return r, nil
		}
	}
	return core.Receipt{}, core.NotFoundf("receipt %s", receiptID)
}

// Exists reports whether the user has a stored document.
func (s *ReceiptStore) Exists(ctx context.Context, userID string) (bool, error) {
	snap, err := s.snapshot(ctx, userID)
	if err != nil {
		return false, err
	}
	return snap.Exists, nil
}

// Create validates the draft, assigns a fresh id and appends it.
func (s *ReceiptStore) Create(ctx context.Context, userID string, draft core.Receipt) (core.Receipt, error) {
	r, err := s.prepare(ctx, userID, draft)
	if err != nil {
		return core.Receipt{}, err
	}
	r.ID = s.newID()

	doc, err := s.mutate(ctx, userID, log.OpCreate, func(doc *core.UserDocument, _ bool) error {
		for doc.FindReceipt(r.ID) >= 0 {
			r.ID = s.newID()
		}
		doc.Receipts = append(doc.Receipts, r.Clone())
		return nil
	})
	if err != nil {
		return core.Receipt{}, err
	}

	s.logger.InfoContext(ctx, "Receipt created", log.NewFields().
		WithOperation(log.OpCreate).
		WithReceipt(userID, r.ID).
		ToSlice()...)
	publish(ctx, s.logger, s.events, amqp.NewReceiptEvent(amqp.ReceiptCreated, userID, r.ID, doc.Version))
	return r, nil
}

// Update replaces the receipt in place, keeping its id.
func (s *ReceiptStore) Update(ctx context.Context, userID, receiptID string, input core.Receipt) (core.Receipt, error) {
	r, err := s.prepare(ctx, userID, input)
	if err != nil {
		return core.Receipt{}, err
	}
	r.ID = receiptID

	doc, err := s.mutate(ctx, userID, log.OpUpdate, func(doc *core.UserDocument, exists bool) error {
		idx := doc.FindReceipt(receiptID)
		if !exists || idx < 0 {
			return core.NotFoundf("receipt %s", receiptID)
		}
		doc.Receipts[idx] = r.Clone()
		return nil
	})
	if err != nil {
		return core.Receipt{}, err
	}

	s.logger.InfoContext(ctx, "Receipt updated", log.NewFields().
		WithOperation(log.OpUpdate).
		WithReceipt(userID, receiptID).
		ToSlice()...)
	publish(ctx, s.logger, s.events, amqp.NewReceiptEvent(amqp.ReceiptUpdated, userID, receiptID, doc.Version))
	return r, nil
}

// Delete removes the receipt. It is NotFound when the user has no document
// or no receipt matches.
func (s *ReceiptStore) Delete(ctx context.Context, userID, receiptID string) error {
	doc, err := s.mutate(ctx, userID, log.OpDelete, func(doc *core.UserDocument, exists bool) error {
		idx := doc.FindReceipt(receiptID)
		if !exists || idx < 0 {
			return core.NotFoundf("receipt %s", receiptID)
		}
		doc.Receipts = append(doc.Receipts[:idx], doc.Receipts[idx+1:]...)
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Receipt deleted", log.NewFields().
		WithOperation(log.OpDelete).
		WithReceipt(userID, receiptID).
		ToSlice()...)
	publish(ctx, s.logger, s.events, amqp.NewReceiptEvent(amqp.ReceiptDeleted, userID, receiptID, doc.Version))
	return nil
}

// prepare validates a receipt and recomputes its item totals.
func (s *ReceiptStore) prepare(ctx context.Context, userID string, in core.Receipt) (core.Receipt, error) {
	r := in.Clone()
	if err := core.ValidateReceipt(&r); err != nil {
		return core.Receipt{}, err
	}
	r.RecomputeItemTotals()
	warning, err := s.config.Balance.Apply(&r)
	if err != nil {
		return core.Receipt{}, err
	}
	if warning != "" {
		s.logger.WarnContext(ctx, "Receipt total does not balance",
			log.FieldUserID, userID,
			log.FieldOperation, log.OpValidate,
			"warning", warning)
	}
	return r, nil
}

// mutate runs fn under the user's write lock and invalidates the cache
// once the document store has committed.
func (s *ReceiptStore) mutate(ctx context.Context, userID, op string, fn func(doc *core.UserDocument, exists bool) error) (*core.UserDocument, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	doc, err := s.docs.UpdateUserDocument(storeCtx, userID, fn)
	if err != nil {
		return nil, asStoreError(op, err)
	}
	s.invalidate(ctx, userID, cache.ReceiptsKey(userID))
	return doc, nil
}

// snapshot serves the cached collection, filling it on miss. Concurrent
// misses for one user share a single store read.
func (s *ReceiptStore) snapshot(ctx context.Context, userID string) (receiptSnapshot, error) {
	key := cache.ReceiptsKey(userID)
	if snap, ok := s.cachedSnapshot(ctx, key); ok {
		return snap, nil
	}

	v, err, _ := s.fills.Do(userID, func() (any, error) {
		return s.fill(context.WithoutCancel(ctx), userID, key)
	})
	if err != nil {
		return receiptSnapshot{}, err
	}
	return cloneSnapshot(v.(receiptSnapshot)), nil
}

func (s *ReceiptStore) fill(ctx context.Context, userID, key string) (receiptSnapshot, error) {
	unlock := s.locks.RLock(userID)
	defer unlock()

	doc, err := s.read(ctx, userID)
	snap := receiptSnapshot{Receipts: []core.Receipt{}}
	switch {
	case errors.Is(err, storage.ErrDocumentAbsent):
	case err != nil:
		return receiptSnapshot{}, err
	default:
		snap.Exists = true
		snap.Receipts = doc.Receipts
	}

	if err := cache.SetJSON(ctx, s.cache, key, snap, s.config.CacheTTL); err != nil {
		s.logger.WarnContext(ctx, "Failed to populate cache",
			log.FieldCacheKey, key,
			log.FieldError, err)
	}
	return snap, nil
}

func (s *ReceiptStore) cachedSnapshot(ctx context.Context, key string) (receiptSnapshot, bool) {
	snap, hit, err := cache.GetJSON[receiptSnapshot](ctx, s.cache, key)
	if err != nil {
		s.logger.WarnContext(ctx, "Cache read failed, falling back to store",
			log.FieldCacheKey, key,
			log.FieldError, err)
		return receiptSnapshot{}, false
	}
	s.logger.DebugContext(ctx, "Receipts cache lookup", log.NewFields().WithCache(key, hit).ToSlice()...)
	if hit && snap.Receipts == nil {
		snap.Receipts = []core.Receipt{}
	}
	return snap, hit
}

// read loads the document under the store timeout.
func (s *ReceiptStore) read(ctx context.Context, userID string) (*core.UserDocument, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	doc, err := s.docs.ReadUserDocument(storeCtx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrDocumentAbsent) {
			return nil, err
		}
		return nil, asStoreError(log.OpRead, err)
	}
	return doc, nil
}

// invalidate drops a cache key after a committed write. It must run even if
// the caller has gone away, and a failure only costs freshness until TTL.
func (s *ReceiptStore) invalidate(ctx context.Context, userID, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout())
	defer cancel()
	if err := s.cache.Delete(ctx, key); err != nil {
		s.logger.ErrorContext(ctx, "Cache invalidation failed",
			log.FieldOperation, log.OpInvalidate,
			log.FieldUserID, userID,
			log.FieldCacheKey, key,
			log.FieldError, err)
	}
}

func (s *ReceiptStore) storeTimeout() time.Duration {
	if s.config.StoreTimeout <= 0 {
		return 5 * time.Second
	}
	return s.config.StoreTimeout
}

func (s *ReceiptStore) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout())
}

// asStoreError keeps domain errors and store errors intact and turns
// timeouts into retryable store errors.
func asStoreError(op string, err error) error {
	var se *core.StoreError
	switch {
	case errors.As(err, &se):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return &core.StoreError{Op: op, Cause: err}
	default:
		return err
	}
}

func cloneSnapshot(s receiptSnapshot) receiptSnapshot {
	out := receiptSnapshot{Exists: s.Exists, Receipts: make([]core.Receipt, len(s.Receipts))}
	for i, r := range s.Receipts {
		out.Receipts[i] = r.Clone()
	}
	return out
}

// Close releases the document store.
func (s *ReceiptStore) Close() error {
	if err := s.docs.Close(); err != nil {
		return fmt.Errorf("close document store: %w", err)
	}
	return nil
}
