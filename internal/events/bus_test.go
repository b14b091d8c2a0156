package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/apotek-admin/internal/db"
	"github.com/noah-isme/apotek-admin/internal/events"
)

type stubStore struct {
	lastParams db.InsertDomainEventParams
	stored     []db.DomainEvent
}

func (s *stubStore) InsertDomainEvent(_ context.Context, arg db.InsertDomainEventParams) (db.DomainEvent, error) {
	s.lastParams = arg
	ev := db.DomainEvent{
		ID:          pgtype.UUID{Bytes: uuid.New(), Valid: true},
		Topic:       arg.Topic,
		AggregateID: arg.AggregateID,
		Payload:     arg.Payload,
		OccurredAt:  pgtype.Timestamptz{Time: time.Now(), Valid: true},
	}
	s.stored = append(s.stored, ev)
	return ev, nil
}

func (s *stubStore) ListDomainEventsByTopic(_ context.Context, arg db.ListDomainEventsByTopicParams) ([]db.DomainEvent, error) {
	out := []db.DomainEvent{}
	for _, ev := range s.stored {
		if ev.Topic == arg.Topic {
			out = append(out, ev)
		}
	}
	return out, nil
}

type captureNotifier struct {
	events []db.DomainEvent
}

func (c *captureNotifier) Notify(_ context.Context, event db.DomainEvent) error {
	c.events = append(c.events, event)
	return nil
}

func TestEmitPersistsEvent(t *testing.T) {
	store := &stubStore{}
	notifier := &captureNotifier{}
	bus := events.Bus{
		Store:     store,
		Notifiers: []events.Notifier{notifier},
	}

	payload := map[string]any{"saleId": 42, "finalAmount": "110.00"}
	event, err := bus.Emit(context.Background(), events.TopicSaleCreated, "42", payload)
	require.NoError(t, err)
	require.Equal(t, events.TopicSaleCreated, store.lastParams.Topic)
	require.Equal(t, "42", store.lastParams.AggregateID)
	require.JSONEq(t, `{"saleId":42,"finalAmount":"110.00"}`, string(store.lastParams.Payload))
	require.Len(t, notifier.events, 1)
	require.Equal(t, event.ID, notifier.events[0].ID)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(event.Payload, &decoded))
	require.Equal(t, "110.00", decoded["finalAmount"])
}

func TestEmitValidatesInput(t *testing.T) {
	bus := events.Bus{Store: &stubStore{}}
	_, err := bus.Emit(context.Background(), " ", "1", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicStockLow, "", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicStockLow, "1", "{not json")
	require.Error(t, err)
}

func TestEmitJoinsNotifierErrors(t *testing.T) {
	failing := events.NotifierFunc(func(context.Context, db.DomainEvent) error { return errors.New("down") })
	bus := events.Bus{Store: &stubStore{}, Notifiers: []events.Notifier{failing}}
	event, err := bus.Emit(context.Background(), events.TopicStockExpiring, "7", nil)
	require.Error(t, err)
	require.Equal(t, "{}", string(event.Payload))
}

func TestCacheInvalidatorDeletesTopicKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, mr.Set("catalog:snapshot", "{}"))
	require.NoError(t, mr.Set("reports:dashboard", "{}"))
	require.NoError(t, mr.Set("unrelated", "1"))

	inv := events.CacheInvalidator{R: client, Keys: map[string][]string{
		events.TopicSaleCreated: {"catalog:snapshot", "reports:dashboard"},
	}}
	require.NoError(t, inv.Notify(context.Background(), db.DomainEvent{Topic: events.TopicSaleCreated}))
	require.False(t, mr.Exists("catalog:snapshot"))
	require.False(t, mr.Exists("reports:dashboard"))
	require.True(t, mr.Exists("unrelated"))

	require.NoError(t, inv.Notify(context.Background(), db.DomainEvent{Topic: events.TopicStockLow}))
}

func TestHandlerListsEventsByTopic(t *testing.T) {
	store := &stubStore{}
	bus := events.Bus{Store: store}
	_, err := bus.Emit(context.Background(), events.TopicStockExpiring, "3", map[string]any{"count": 2})
	require.NoError(t, err)

	h := &events.Handler{Q: store}
	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events?topic=stock.expiring", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data []struct {
			AggregateID string         `json:"aggregate_id"`
			Payload     map[string]any `json:"payload"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.Equal(t, "3", body.Data[0].AggregateID)
	require.EqualValues(t, 2, body.Data[0].Payload["count"])

	rec = httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events?topic=order.paid", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
