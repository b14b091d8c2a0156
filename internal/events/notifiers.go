package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/apotek-admin/internal/db"
)

// LogNotifier writes every event to the structured log.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, event db.DomainEvent) error {
	evt := n.Logger.Info()
	if event.Topic == TopicStockExpiring || event.Topic == TopicStockLow {
		evt = n.Logger.Warn()
	}
	evt.Str("topic", event.Topic).
		Str("aggregate_id", event.AggregateID).
		RawJSON("payload", safeJSON(event.Payload)).
		Msg("domain_event")
	return nil
}

func safeJSON(payload []byte) []byte {
	if len(payload) == 0 || !json.Valid(payload) {
		return []byte("{}")
	}
	return payload
}

// CacheInvalidator deletes cached read models affected by a topic.
type CacheInvalidator struct {
	R    *redis.Client
	Keys map[string][]string
}

// Notify implements Notifier.
func (c CacheInvalidator) Notify(ctx context.Context, event db.DomainEvent) error {
	if c.R == nil {
		return nil
	}
	keys := c.Keys[event.Topic]
	if len(keys) == 0 {
		return nil
	}
	return c.R.Del(ctx, keys...).Err()
}
