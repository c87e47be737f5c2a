package services

import (
	"context"

	"struk/internal/amqp"
	"struk/internal/log"
)

// EventPublisher publishes committed receipt changes. *amqp.Client satisfies it.
type EventPublisher interface {
	PublishReceiptEvent(ctx context.Context, evt *amqp.ReceiptEvent) error
}

// publish sends evt best-effort. The mutation is already committed, so a
// failure is logged and dropped.
func publish(ctx context.Context, logger *log.Logger, events EventPublisher, evt *amqp.ReceiptEvent) {
	if events == nil {
		return
	}
	if err := events.PublishReceiptEvent(context.WithoutCancel(ctx), evt); err != nil {
		logger.WarnContext(ctx, "Failed to publish receipt event",
			log.FieldOperation, log.OpPublish,
			log.FieldEventType, string(evt.Type),
			log.FieldUserID, evt.UserID,
			log.FieldReceiptID, evt.ReceiptID,
			log.FieldError, err)
	}
}
