package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/noah-isme/apotek-admin/internal/db"
	"github.com/noah-isme/apotek-admin/internal/events"
	"github.com/noah-isme/apotek-admin/internal/lock"
	"github.com/noah-isme/apotek-admin/internal/obs"
)

// Task type names.
const (
	TypeExpiringCheck = "inventory:expiring_check"
	TypeLowStockCheck = "inventory:low_stock_check"
)

// Querier lists stock that needs attention.
type Querier interface {
	ListExpiringStockItems(ctx context.Context, arg db.ListExpiringStockItemsParams) ([]db.StockItemRow, error)
	ListLowStockItems(ctx context.Context, threshold int32) ([]db.StockItemRow, error)
}

// Checker runs the periodic stock checks. Each check holds a Redis lock so
// that only one worker instance performs it at a time.
type Checker struct {
	Q                 Querier
	Events            events.Emitter
	Locker            lock.Locker
	LockTTL           time.Duration
	ExpiringDays      int
	LowStockThreshold int
	Logger            zerolog.Logger
	Now               func() time.Time
}

// Result describes one check run.
type Result struct {
	Check   string
	Items   int
	Skipped bool
}

type flaggedItem struct {
	StockItemID    int64  `json:"stock_item_id"`
	ProductName    string `json:"product_name"`
	BatchNumber    string `json:"batch_number"`
	Quantity       int32  `json:"quantity"`
	ExpirationDate string `json:"expiration_date,omitempty"`
}

func (c *Checker) now() time.Time {
	if c != nil && c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Checker) today() time.Time {
	y, m, d := c.now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CheckExpiring flags batches expiring within ExpiringDays.
func (c *Checker) CheckExpiring(ctx context.Context) (Result, error) {
	days := c.ExpiringDays
	if days < 1 {
		days = 30
	}
	return c.run(ctx, "expiring", events.TopicStockExpiring, func(ctx context.Context) ([]db.StockItemRow, error) {
		today := c.today()
		return c.Q.ListExpiringStockItems(ctx, db.ListExpiringStockItemsParams{
			FromDate: pgtype.Date{Time: today, Valid: true},
			ToDate:   pgtype.Date{Time: today.AddDate(0, 0, days), Valid: true},
		})
	})
}

// CheckLowStock flags batches at or below LowStockThreshold units.
func (c *Checker) CheckLowStock(ctx context.Context) (Result, error) {
	threshold := c.LowStockThreshold
	if threshold < 1 {
		threshold = 10
	}
	return c.run(ctx, "low_stock", events.TopicStockLow, func(ctx context.Context) ([]db.StockItemRow, error) {
		return c.Q.ListLowStockItems(ctx, int32(threshold))
	})
}

func (c *Checker) run(ctx context.Context, check, topic string, list func(context.Context) ([]db.StockItemRow, error)) (Result, error) {
	if c == nil || c.Q == nil {
		return Result{}, errors.New("inventory checker not configured")
	}
	result := Result{Check: check}
	ttl := c.LockTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	err := c.Locker.TryWithLock(ctx, lock.JobKey(check), ttl, func(ctx context.Context) error {
		rows, err := list(ctx)
		if err != nil {
			return fmt.Errorf("list %s stock: %w", check, err)
		}
		result.Items = len(rows)
		if len(rows) == 0 || c.Events == nil {
			return nil
		}
		items := make([]flaggedItem, 0, len(rows))
		for _, row := range rows {
			item := flaggedItem{
				StockItemID: row.ID,
				ProductName: row.ProductName,
				BatchNumber: row.BatchNumber,
				Quantity:    row.Quantity,
			}
			if row.ExpirationDate.Valid {
				item.ExpirationDate = row.ExpirationDate.Time.Format("2006-01-02")
			}
			items = append(items, item)
		}
		_, err = c.Events.Emit(ctx, topic, c.today().Format("2006-01-02"), map[string]any{
			"count": len(items),
			"items": items,
		})
		return err
	})
	switch {
	case errors.Is(err, lock.ErrNotAcquired):
		result.Skipped = true
		obs.IncInventoryCheck(check, "skipped")
		c.Logger.Info().Str("check", check).Msg("inventory_check_skipped")
		return result, nil
	case err != nil:
		obs.IncInventoryCheck(check, "error")
		c.Logger.Error().Err(err).Str("check", check).Msg("inventory_check_failed")
		return result, err
	}
	obs.IncInventoryCheck(check, "ok")
	c.Logger.Info().Str("check", check).Int("items", result.Items).Msg("inventory_check_completed")
	return result, nil
}

// HandleExpiring is the asynq handler for TypeExpiringCheck.
func (c *Checker) HandleExpiring(ctx context.Context, _ *asynq.Task) error {
	_, err := c.CheckExpiring(ctx)
	return err
}

// HandleLowStock is the asynq handler for TypeLowStockCheck.
func (c *Checker) HandleLowStock(ctx context.Context, _ *asynq.Task) error {
	_, err := c.CheckLowStock(ctx)
	return err
}

// Register mounts the check handlers on mux.
func (c *Checker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeExpiringCheck, c.HandleExpiring)
	mux.HandleFunc(TypeLowStockCheck, c.HandleLowStock)
}

// Schedule registers both checks on the scheduler with the given cron spec.
func Schedule(s *asynq.Scheduler, cronspec string) error {
	if cronspec == "" {
		cronspec = "0 9 * * *"
	}
	for _, typ := range []string{TypeExpiringCheck, TypeLowStockCheck} {
		if _, err := s.Register(cronspec, asynq.NewTask(typ, nil), asynq.Unique(time.Hour)); err != nil {
			return fmt.Errorf("schedule %s: %w", typ, err)
		}
	}
	return nil
}
