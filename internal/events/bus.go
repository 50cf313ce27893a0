// Package events publishes session/execution lifecycle events to an optional NATS
// subject space for external observers. Nothing in the engine's critical path depends
// on a subscriber being present.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Event is the envelope published onto every subject.
type Event struct {
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// NewEvent builds an Event with the current time.
func NewEvent(eventType, source string, data map[string]interface{}) Event {
	return Event{
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// Bus publishes events fire-and-forget. A nil *Bus (or one built with an empty URL) is
// a safe no-op, matching the degrade-silently policy used throughout this service.
type Bus struct {
	conn   *nats.Conn
	log    *zap.Logger
	source string
}

// Connect dials NATS at url. An empty url disables the bus; Connect then returns a
// non-nil *Bus whose Publish calls are no-ops, so callers never need a nil check.
func Connect(url, source string, log *zap.Logger) (*Bus, error) {
	if url == "" {
		return &Bus{log: log, source: source}, nil
	}

	conn, err := nats.Connect(url, nats.Name(source), nats.MaxReconnects(-1))
	if err != nil {
		return nil, err
	}
	return &Bus{conn: conn, log: log, source: source}, nil
}

// Publish sends ev on subject. Errors are logged, never returned to the caller — this
// mirrors the teacher's fire-and-forget lifecycle-event publishing.
func (b *Bus) Publish(ctx context.Context, subject string, ev Event) {
	if b == nil || b.conn == nil {
		return
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		b.log.Error("failed to marshal event", zap.String("subject", subject), zap.Error(err))
		return
	}

	if err := b.conn.Publish(subject, payload); err != nil {
		b.log.Error("failed to publish event", zap.String("subject", subject), zap.Error(err))
		return
	}

	b.log.Debug("published event", zap.String("subject", subject), zap.String("type", ev.Type))
}

// Close drains and closes the underlying connection, if any.
func (b *Bus) Close() {
	if b == nil || b.conn == nil {
		return
	}
	_ = b.conn.Drain()
}
