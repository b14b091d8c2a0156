package inventory_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgtype"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/apotek-admin/internal/db"
	"github.com/noah-isme/apotek-admin/internal/events"
	"github.com/noah-isme/apotek-admin/internal/inventory"
	"github.com/noah-isme/apotek-admin/internal/lock"
)

var today = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type stubQueries struct {
	expiringArg db.ListExpiringStockItemsParams
	threshold   int32
	expiring    []db.StockItemRow
	low         []db.StockItemRow
	err         error
}

func (s *stubQueries) ListExpiringStockItems(_ context.Context, arg db.ListExpiringStockItemsParams) ([]db.StockItemRow, error) {
	s.expiringArg = arg
	return s.expiring, s.err
}

func (s *stubQueries) ListLowStockItems(_ context.Context, threshold int32) ([]db.StockItemRow, error) {
	s.threshold = threshold
	return s.low, s.err
}

type emitted struct {
	topic       string
	aggregateID string
	payload     any
}

type captureEmitter struct {
	calls []emitted
}

func (c *captureEmitter) Emit(_ context.Context, topic, aggregateID string, payload any) (db.DomainEvent, error) {
	c.calls = append(c.calls, emitted{topic: topic, aggregateID: aggregateID, payload: payload})
	return db.DomainEvent{Topic: topic, AggregateID: aggregateID}, nil
}

func newChecker(t *testing.T, q *stubQueries) (*inventory.Checker, *captureEmitter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	emitter := &captureEmitter{}
	return &inventory.Checker{
		Q:      q,
		Events: emitter,
		Locker: lock.Locker{R: rdb},
		Logger: zerolog.Nop(),
		Now:    func() time.Time { return today },
	}, emitter, mr
}

func TestCheckExpiringEmitsEvent(t *testing.T) {
	q := &stubQueries{expiring: []db.StockItemRow{{
		ID:             7,
		ProductName:    "Amoxicillin",
		BatchNumber:    "AMX-01",
		Quantity:       5,
		ExpirationDate: pgtype.Date{Time: time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC), Valid: true},
	}}}
	checker, emitter, mr := newChecker(t, q)

	res, err := checker.CheckExpiring(context.Background())
	require.NoError(t, err)
	require.Equal(t, inventory.Result{Check: "expiring", Items: 1}, res)

	require.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), q.expiringArg.FromDate.Time)
	require.Equal(t, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), q.expiringArg.ToDate.Time)

	require.Len(t, emitter.calls, 1)
	require.Equal(t, events.TopicStockExpiring, emitter.calls[0].topic)
	require.Equal(t, "2024-03-01", emitter.calls[0].aggregateID)
	raw, err := json.Marshal(emitter.calls[0].payload)
	require.NoError(t, err)
	require.JSONEq(t, `{"count":1,"items":[{"stock_item_id":7,"product_name":"Amoxicillin","batch_number":"AMX-01","quantity":5,"expiration_date":"2024-03-20"}]}`, string(raw))

	require.False(t, mr.Exists("lock:job:expiring"))
}

func TestCheckLowStockUsesThreshold(t *testing.T) {
	q := &stubQueries{}
	checker, emitter, _ := newChecker(t, q)
	checker.LowStockThreshold = 15

	res, err := checker.CheckLowStock(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, res.Items)
	require.EqualValues(t, 15, q.threshold)
	require.Empty(t, emitter.calls)
}

func TestCheckSkippedWhileLockHeld(t *testing.T) {
	q := &stubQueries{low: []db.StockItemRow{{ID: 1, Quantity: 2}}}
	checker, emitter, mr := newChecker(t, q)
	require.NoError(t, mr.Set("lock:job:low_stock", "other-worker"))

	res, err := checker.CheckLowStock(context.Background())
	require.NoError(t, err)
	require.True(t, res.Skipped)
	require.Empty(t, emitter.calls)
	require.Zero(t, q.threshold)
}

func TestCheckPropagatesQueryError(t *testing.T) {
	q := &stubQueries{err: errors.New("db down")}
	checker, _, _ := newChecker(t, q)

	err := checker.HandleExpiring(context.Background(), asynq.NewTask(inventory.TypeExpiringCheck, nil))
	require.ErrorContains(t, err, "db down")
}

func TestRegisterRoutesTasks(t *testing.T) {
	q := &stubQueries{low: []db.StockItemRow{{ID: 3, Quantity: 1}}}
	checker, emitter, _ := newChecker(t, q)
	mux := asynq.NewServeMux()
	checker.Register(mux)

	require.NoError(t, mux.ProcessTask(context.Background(), asynq.NewTask(inventory.TypeLowStockCheck, nil)))
	require.Len(t, emitter.calls, 1)
	require.Equal(t, events.TopicStockLow, emitter.calls[0].topic)
}
