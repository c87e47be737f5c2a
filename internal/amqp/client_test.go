package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

func TestExponentialBackoff(t *testing.T) {
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, maxBackoff, maxBackoff}
	for attempt, w := range want {
		if got := exponentialBackoff(attempt); got != w {
			t.Errorf("exponentialBackoff(%d) = %v, want %v", attempt, got, w)
		}
	}
	if got := exponentialBackoff(40); got != maxBackoff {
		t.Errorf("exponentialBackoff(40) = %v", got)
	}
}

func TestIsConnectionError(t *testing.T) {
	for msg, want := range map[string]bool{
		"dial tcp 10.0.0.5:5672: connection refused": true,
		"read tcp: use of closed network connection": true,
		"unexpected EOF":                             true,
		"write: broken pipe":                         true,
		"receipt event has no user":                  false,
		"PRECONDITION_FAILED - inequivalent arg":     false,
	} {
		if got := isConnectionError(errors.New(msg)); got != want {
			t.Errorf("isConnectionError(%q) = %v, want %v", msg, got, want)
		}
	}
	if isConnectionError(nil) {
		t.Error("nil is not a connection error")
	}
	if !isConnectionError(fmt.Errorf("publish receipt.created: %w", amqp091.ErrClosed)) {
		t.Error("wrapped amqp091.ErrClosed should count as a connection error")
	}
}

// The breaker opens after maxFailures, half-opens after openTimeout and
// closes on the next success.
func TestClient_BreakerLifecycle(t *testing.T) {
	c := &Client{exchangeName: "struk.receipts", queueName: "struk.receipts.mirror"}

	for i := 0; i < maxFailures-1; i++ {
		c.recordFailure()
	}
	if c.isCircuitOpen() {
		t.Fatal("breaker opened before reaching maxFailures")
	}
	c.recordFailure()
	if !c.isCircuitOpen() {
		t.Fatal("breaker should be open after maxFailures")
	}

	err := c.PublishReceiptEvent(context.Background(), NewReceiptEvent(ReceiptCreated, "user-1", "r-1", 1))
	if err == nil || !strings.Contains(err.Error(), "circuit breaker is open") {
		t.Fatalf("publish with open breaker = %v", err)
	}

	c.mu.Lock()
	c.lastFailure = time.Now().Add(-openTimeout - time.Second)
	c.mu.Unlock()
	if c.isCircuitOpen() || atomic.LoadInt32(&c.state) != StateHalfOpen {
		t.Fatal("breaker should be half-open after the cool-down")
	}

	c.recordFailure()
	if atomic.LoadInt32(&c.state) != StateOpen {
		t.Fatal("a failure while half-open should reopen the breaker")
	}

	c.recordSuccess()
	if c.isCircuitOpen() || atomic.LoadInt64(&c.failureCount) != 0 {
		t.Fatal("success should close the breaker and reset failures")
	}
}

func TestClient_PublishCanceledContext(t *testing.T) {
	c := &Client{exchangeName: "struk.receipts", queueName: "struk.receipts.mirror"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.PublishReceiptEvent(ctx, NewReceiptEvent(ReceiptDeleted, "user-1", "r-1", 2))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("PublishReceiptEvent() = %v, want context.Canceled", err)
	}
}

func TestNewReceiptEvent(t *testing.T) {
	msg := NewReceiptEvent(ReceiptUpdated, "user-1", "r-9", 4)

	if msg.Type != ReceiptUpdated || msg.UserID != "user-1" || msg.ReceiptID != "r-9" {
		t.Errorf("NewReceiptEvent() = %+v", msg)
	}
	if msg.Version != 4 {
		t.Errorf("NewReceiptEvent() Version = %v, want 4", msg.Version)
	}
	if time.Since(msg.Timestamp) > time.Second {
		t.Error("NewReceiptEvent() Timestamp should be recent")
	}
}

func TestReceiptEvent_JSON(t *testing.T) {
	timestamp := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	msg := &ReceiptEvent{
		Type:      ReceiptDeleted,
		UserID:    "user-1",
		ReceiptID: "r-1",
		Version:   2,
		Timestamp: timestamp,
	}

	jsonBytes, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}

	parsed, err := ReceiptEventFromJSON(jsonBytes)
	if err != nil {
		t.Fatalf("ReceiptEventFromJSON() error = %v", err)
	}
	if parsed.Type != msg.Type || parsed.UserID != msg.UserID || parsed.ReceiptID != msg.ReceiptID {
		t.Errorf("Parsed = %+v, want %+v", parsed, msg)
	}
	if !parsed.Timestamp.Equal(msg.Timestamp) {
		t.Errorf("Parsed Timestamp = %v, want %v", parsed.Timestamp, msg.Timestamp)
	}
}

func TestReceiptEventFromJSON_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"type": 12}`},
		{"unknown type", `{"type":"receipt.archived","user_id":"u","receipt_id":"r"}`},
		{"missing user", `{"type":"receipt.created","receipt_id":"r"}`},
		{"missing receipt", `{"type":"receipt.created","user_id":"u"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReceiptEventFromJSON([]byte(tt.body)); err == nil {
				t.Error("ReceiptEventFromJSON() should fail")
			}
		})
	}
}

type fakeAck struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (f *fakeAck) Ack(bool) error { f.acked = true; return nil }

func (f *fakeAck) Nack(_, requeue bool) error {
	f.nacked = true
	f.requeue = requeue
	return nil
}

func TestProcess(t *testing.T) {
	valid, _ := NewReceiptEvent(ReceiptCreated, "user-1", "r-1", 1).ToJSON()
	ok := func(context.Context, *ReceiptEvent) error { return nil }
	failing := func(context.Context, *ReceiptEvent) error { return errors.New("sheet down") }

	t.Run("handled message is acked", func(t *testing.T) {
		ack := &fakeAck{}
		process(context.Background(), valid, ack, ok)
		if !ack.acked || ack.nacked {
			t.Errorf("ack = %+v, want acked", ack)
		}
	})

	t.Run("malformed message is dropped", func(t *testing.T) {
		ack := &fakeAck{}
		process(context.Background(), []byte("not json"), ack, ok)
		if !ack.nacked || ack.requeue {
			t.Errorf("ack = %+v, want nack without requeue", ack)
		}
	})

	t.Run("handler failure is requeued", func(t *testing.T) {
		ack := &fakeAck{}
		process(context.Background(), valid, ack, failing)
		if !ack.nacked || !ack.requeue {
			t.Errorf("ack = %+v, want nack with requeue", ack)
		}
	})
}
