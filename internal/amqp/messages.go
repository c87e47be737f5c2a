package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType names a committed receipt mutation
type EventType string

const (
	ReceiptCreated EventType = "receipt.created"
	ReceiptUpdated EventType = "receipt.updated"
	ReceiptDeleted EventType = "receipt.deleted"
)

// ReceiptEvent is a lightweight notification of a committed receipt change.
// Consumers re-read the user's document for the current state.
type ReceiptEvent struct {
	Type      EventType `json:"type"`
	UserID    string    `json:"user_id"`
	ReceiptID string    `json:"receipt_id"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// NewReceiptEvent creates an event stamped with the current time
func NewReceiptEvent(t EventType, userID, receiptID string, version int64) *ReceiptEvent {
	return &ReceiptEvent{
		Type:      t,
		UserID:    userID,
		ReceiptID: receiptID,
		Version:   version,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ReceiptEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ReceiptEventFromJSON decodes and validates an event
func ReceiptEventFromJSON(data []byte) (*ReceiptEvent, error) {
	var msg ReceiptEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Type {
	case ReceiptCreated, ReceiptUpdated, ReceiptDeleted:
	default:
		return nil, fmt.Errorf("unknown event type %q", msg.Type)
	}
	if msg.UserID == "" || msg.ReceiptID == "" {
		return nil, fmt.Errorf("event %s missing user or receipt id", msg.Type)
	}
	return &msg, nil
}
