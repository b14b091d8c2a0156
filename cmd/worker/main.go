package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/apotek-admin/internal/app"
	"github.com/noah-isme/apotek-admin/internal/config"
	"github.com/noah-isme/apotek-admin/internal/inventory"
	"github.com/noah-isme/apotek-admin/internal/obs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Obs.MetricsEnabled {
		obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)
	}
	if cfg.Obs.TracingEnabled {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   "apotek-worker",
			Endpoint:      cfg.Obs.OTLPEndpoint,
			Exporter:      cfg.Obs.TracingExporter,
			SamplingRatio: cfg.Obs.SamplingRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	bootCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	deps, err := app.Open(bootCtx, cfg, logger, "apotek-worker")
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise dependencies")
	}
	defer deps.Close()

	svcs, err := app.NewServices(deps)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise services")
	}

	redisOpt, err := app.AsynqRedisOpt(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("asynq redis")
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Error().Err(err).Str("task", task.Type()).Msg("task failed")
		}),
	})
	mux := asynq.NewServeMux()
	svcs.Inventory.Register(mux)

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Location: time.UTC})
	if err := inventory.Schedule(scheduler, cfg.InventoryCheckCron); err != nil {
		logger.Fatal().Err(err).Msg("schedule inventory checks")
	}

	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start task server")
	}
	if err := scheduler.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start scheduler")
	}
	logger.Info().Str("cron", cfg.InventoryCheckCron).Msg("worker starting")

	<-ctx.Done()
	scheduler.Shutdown()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}
