package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/apotek-admin/internal/catalog"
	"github.com/noah-isme/apotek-admin/internal/config"
	"github.com/noah-isme/apotek-admin/internal/db"
	"github.com/noah-isme/apotek-admin/internal/draft"
	"github.com/noah-isme/apotek-admin/internal/events"
	"github.com/noah-isme/apotek-admin/internal/inventory"
	"github.com/noah-isme/apotek-admin/internal/lock"
	"github.com/noah-isme/apotek-admin/internal/obs"
	"github.com/noah-isme/apotek-admin/internal/reports"
	"github.com/noah-isme/apotek-admin/internal/sales"
)

// Dependencies holds the connections shared by the API and the worker.
type Dependencies struct {
	Config *config.Config
	Logger zerolog.Logger
	Pool   *pgxpool.Pool
	Store  *db.Store
	Redis  *redis.Client
	Locker lock.Locker
}

// Open connects to PostgreSQL and Redis, applying migrations first when
// MIGRATIONS_AUTO is set.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger, application string) (*Dependencies, error) {
	if cfg.MigrationsAuto {
		if err := db.MigrateUp(cfg.DatabaseURL); err != nil {
			return nil, err
		}
		logger.Info().Msg("migrations applied")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{Logger: &logger, SlowQuery: cfg.Obs.SlowQuery}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = application

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if cfg.Obs.MetricsEnabled {
		if err := redisotel.InstrumentMetrics(rdb); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		pool.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Dependencies{
		Config: cfg,
		Logger: logger,
		Pool:   pool,
		Store:  db.NewStore(pool),
		Redis:  rdb,
		Locker: lock.Locker{R: rdb, RetryBackoff: cfg.LockRetryBackoff},
	}, nil
}

// Close releases the pool and the Redis client.
func (d *Dependencies) Close() {
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close redis")
		}
	}
	if d.Pool != nil {
		d.Pool.Close()
	}
}

// PingDB implements health.Checker.
func (d *Dependencies) PingDB(ctx context.Context, timeout time.Duration) error {
	if d.Pool == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return d.Pool.Ping(ctx)
}

// PingRedis implements health.Checker.
func (d *Dependencies) PingRedis(ctx context.Context, timeout time.Duration) error {
	if d.Redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return d.Redis.Ping(ctx).Err()
}

// NewLimiterStore wires a rate limiter store backed by Redis.
func NewLimiterStore(rdb *redis.Client) (limiter.Store, error) {
	return limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: "ratelimit"})
}

// AsynqRedisOpt derives the asynq connection from the Redis URL.
func AsynqRedisOpt(cfg *config.Config) (asynq.RedisConnOpt, error) {
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url for asynq: %w", err)
	}
	return opt, nil
}

// Services are the domain services built on top of Dependencies.
type Services struct {
	Events    *events.Bus
	Catalog   *catalog.Service
	Drafts    *draft.Service
	Sales     *sales.Service
	Reports   *reports.Service
	Inventory *inventory.Checker
}

// NewEventBus persists events and fans them out to the log and the cache
// invalidator. A sale changes stock, so it drops the order form catalog and
// the cached reports.
func NewEventBus(d *Dependencies) *events.Bus {
	stockReports := []string{reports.DashboardKey, reports.InventorySummaryKey, reports.InventoryValueKey}
	return &events.Bus{
		Store: d.Store,
		Notifiers: []events.Notifier{
			events.LogNotifier{Logger: d.Logger},
			events.CacheInvalidator{R: d.Redis, Keys: map[string][]string{
				events.TopicSaleCreated:   append([]string{catalog.SnapshotKey}, stockReports...),
				events.TopicStockExpiring: {reports.InventorySummaryKey},
				events.TopicStockLow:      {reports.InventorySummaryKey},
			}},
		},
	}
}

// NewServices builds every domain service.
func NewServices(d *Dependencies) (*Services, error) {
	cfg := d.Config
	bus := NewEventBus(d)

	catalogSvc, err := catalog.NewService(catalog.ServiceConfig{
		Queries:           d.Store.Queries,
		Cache:             catalog.NewCache(d.Redis, cfg.CatalogCacheTTL),
		DefaultLimit:      cfg.CatalogDefaultLimit,
		MaxLimit:          cfg.CatalogMaxLimit,
		LowStockThreshold: cfg.LowStockThreshold,
		ExpiringDays:      cfg.ExpiringWithinDays,
	})
	if err != nil {
		return nil, err
	}

	drafts := &draft.Service{
		R:       d.Redis,
		Catalog: catalogSvc,
		Locker:  d.Locker,
		TTL:     cfg.DraftTTL,
		LockTTL: cfg.LockTTL,
	}

	return &Services{
		Events:  bus,
		Catalog: catalogSvc,
		Drafts:  drafts,
		Sales: &sales.Service{
			Tx:     sales.StoreTx(d.Store),
			Q:      d.Store.Queries,
			Drafts: drafts,
			Events: bus,
		},
		Reports: &reports.Service{
			Q:                 d.Store.Queries,
			R:                 d.Redis,
			TTL:               cfg.ReportsCacheTTL,
			InventoryValueTTL: cfg.InventoryValueTTL,
			LowStockThreshold: cfg.LowStockThreshold,
			ExpiringDays:      cfg.ExpiringWithinDays,
		},
		Inventory: &inventory.Checker{
			Q:                 d.Store.Queries,
			Events:            bus,
			Locker:            d.Locker,
			LockTTL:           time.Minute,
			ExpiringDays:      cfg.ExpiringWithinDays,
			LowStockThreshold: cfg.LowStockThreshold,
			Logger:            d.Logger.With().Str("component", "inventory").Logger(),
		},
	}, nil
}
