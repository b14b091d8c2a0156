package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/apotek-admin/internal/db"
)

// EventStore defines the persistence operations required by the event bus.
type EventStore interface {
	InsertDomainEvent(ctx context.Context, arg db.InsertDomainEventParams) (db.DomainEvent, error)
}

// Notifier reacts to emitted events (cache invalidation, logging).
type Notifier interface {
	Notify(ctx context.Context, event db.DomainEvent) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, event db.DomainEvent) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, event db.DomainEvent) error {
	return f(ctx, event)
}

// Emitter is the publishing side of the bus used by services.
type Emitter interface {
	Emit(ctx context.Context, topic string, aggregateID string, payload any) (db.DomainEvent, error)
}

// Bus persists domain events and fans them out to notifiers.
type Bus struct {
	Store     EventStore
	Notifiers []Notifier
}

// Emit records the event and dispatches it to all configured notifiers.
// Notifier failures are joined into the returned error; the event is still
// returned since it has been persisted.
func (b *Bus) Emit(ctx context.Context, topic string, aggregateID string, payload any) (db.DomainEvent, error) {
	if b == nil || b.Store == nil {
		return db.DomainEvent{}, errors.New("events: store not configured")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return db.DomainEvent{}, errors.New("events: topic is required")
	}
	aggregateID = strings.TrimSpace(aggregateID)
	if aggregateID == "" {
		return db.DomainEvent{}, errors.New("events: aggregate id is required")
	}
	encoded, err := encodePayload(payload)
	if err != nil {
		return db.DomainEvent{}, fmt.Errorf("events: encode payload: %w", err)
	}
	ev, err := b.Store.InsertDomainEvent(ctx, db.InsertDomainEventParams{
		Topic:       topic,
		AggregateID: aggregateID,
		Payload:     encoded,
	})
	if err != nil {
		return db.DomainEvent{}, fmt.Errorf("events: persist event: %w", err)
	}
	var joined error
	for _, notifier := range b.Notifiers {
		if notifier == nil {
			continue
		}
		if notifyErr := notifier.Notify(ctx, ev); notifyErr != nil {
			joined = errors.Join(joined, fmt.Errorf("events: notifier: %w", notifyErr))
		}
	}
	return ev, joined
}

func encodePayload(payload any) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	switch v := payload.(type) {
	case []byte:
		return validRaw(v)
	case json.RawMessage:
		return validRaw(v)
	case string:
		if strings.TrimSpace(v) == "" {
			return []byte("{}"), nil
		}
		return validRaw([]byte(v))
	default:
		return json.Marshal(v)
	}
}

func validRaw(v []byte) ([]byte, error) {
	if len(v) == 0 {
		return []byte("{}"), nil
	}
	if !json.Valid(v) {
		return nil, errors.New("payload is not valid json")
	}
	return append([]byte(nil), v...), nil
}
