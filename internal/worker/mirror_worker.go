package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"struk/internal/amqp"
	"struk/internal/core"
	"struk/internal/log"
	"struk/internal/sheets"
	"struk/internal/storage"
)

// MirrorWorker keeps a sheet in step with the user documents. Events only say
// which receipt changed; the current state is always re-read from the store,
// so redelivered or reordered events converge to the same rows.
type MirrorWorker struct {
	docs    storage.DocumentStore
	mirror  sheets.ReceiptMirror
	timeout time.Duration
	logger  *log.Logger
}

func NewMirrorWorker(docs storage.DocumentStore, mirror sheets.ReceiptMirror, timeout time.Duration, logger *log.Logger) *MirrorWorker {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &MirrorWorker{
		docs:    docs,
		mirror:  mirror,
		timeout: timeout,
		logger:  logger.WithComponent(log.ComponentWorker),
	}
}

// HandleReceiptEvent processes a single receipt event from AMQP. A returned
// error requeues the message.
func (w *MirrorWorker) HandleReceiptEvent(ctx context.Context, evt *amqp.ReceiptEvent) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	fields := log.NewFields().
		WithOperation(log.OpSync).
		WithReceipt(evt.UserID, evt.ReceiptID)
	fields[log.FieldEventType] = string(evt.Type)

	w.logger.InfoContext(ctx, "Processing receipt event", fields.ToSlice()...)

	if evt.Type == amqp.ReceiptDeleted {
		if err := w.mirror.DeleteReceipt(ctx, evt.UserID, evt.ReceiptID); err != nil {
			w.logger.ErrorContext(ctx, "Failed to remove mirrored receipt", fields.WithError(err).ToSlice()...)
			return fmt.Errorf("delete mirrored receipt: %w", err)
		}
		return nil
	}

	receipt, found, err := w.current(ctx, evt.UserID, evt.ReceiptID)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to read user document", fields.WithError(err).ToSlice()...)
		return err
	}
	if !found {
		// Deleted after the event was published; the delete event may still be queued.
		if err := w.mirror.DeleteReceipt(ctx, evt.UserID, evt.ReceiptID); err != nil {
			return fmt.Errorf("delete mirrored receipt: %w", err)
		}
		w.logger.InfoContext(ctx, "Receipt no longer exists, mirror row removed", fields.ToSlice()...)
		return nil
	}

	ref, err := w.mirror.UpsertReceipt(ctx, evt.UserID, receipt)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to mirror receipt", fields.WithError(err).ToSlice()...)
		return fmt.Errorf("mirror receipt: %w", err)
	}
	w.logger.InfoContext(ctx, "Receipt mirrored", append(fields.ToSlice(), "row_ref", ref)...)
	return nil
}

// MirrorUser writes every receipt of a user to the mirror and returns how
// many rows were written.
func (w *MirrorWorker) MirrorUser(ctx context.Context, userID string) (int, error) {
	doc, err := w.docs.ReadUserDocument(ctx, userID)
	if errors.Is(err, storage.ErrDocumentAbsent) {
		return 0, core.NotFoundf("user %s", userID)
	}
	if err != nil {
		return 0, fmt.Errorf("read user document: %w", err)
	}
	for i, r := range doc.Receipts {
		if _, err := w.mirror.UpsertReceipt(ctx, userID, r); err != nil {
			return i, fmt.Errorf("mirror receipt %s: %w", r.ID, err)
		}
	}
	w.logger.InfoContext(ctx, "User receipts mirrored", log.FieldUserID, userID, log.FieldCount, len(doc.Receipts))
	return len(doc.Receipts), nil
}

func (w *MirrorWorker) current(ctx context.Context, userID, receiptID string) (core.Receipt, bool, error) {
	doc, err := w.docs.ReadUserDocument(ctx, userID)
	if errors.Is(err, storage.ErrDocumentAbsent) {
		return core.Receipt{}, false, nil
	}
	if err != nil {
		return core.Receipt{}, false, fmt.Errorf("read user document: %w", err)
	}
	i := doc.FindReceipt(receiptID)
	if i < 0 {
		return core.Receipt{}, false, nil
	}
	return doc.Receipts[i], true, nil
}
