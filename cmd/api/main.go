package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"

	"github.com/noah-isme/apotek-admin/internal/app"
	"github.com/noah-isme/apotek-admin/internal/catalog"
	"github.com/noah-isme/apotek-admin/internal/common"
	"github.com/noah-isme/apotek-admin/internal/config"
	"github.com/noah-isme/apotek-admin/internal/draft"
	"github.com/noah-isme/apotek-admin/internal/events"
	"github.com/noah-isme/apotek-admin/internal/health"
	"github.com/noah-isme/apotek-admin/internal/obs"
	"github.com/noah-isme/apotek-admin/internal/ratelimit"
	"github.com/noah-isme/apotek-admin/internal/reports"
	"github.com/noah-isme/apotek-admin/internal/sales"
	"github.com/noah-isme/apotek-admin/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Obs.MetricsEnabled {
		obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)
	}

	tracingEnabled := cfg.Obs.TracingEnabled
	if tracingEnabled {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   "apotek-api",
			Endpoint:      cfg.Obs.OTLPEndpoint,
			Exporter:      cfg.Obs.TracingExporter,
			SamplingRatio: cfg.Obs.SamplingRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	bootCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	deps, err := app.Open(bootCtx, cfg, logger, "apotek-api")
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise dependencies")
	}
	defer deps.Close()

	svcs, err := app.NewServices(deps)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise services")
	}

	limiterStore, err := app.NewLimiterStore(deps.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limiter store")
	}
	rateLimiter, err := ratelimit.New(limiterStore, cfg.RateLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse rate limit")
	}

	r := newRouter(cfg, logger, deps, svcs, rateLimiter, tracingEnabled)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server stopped")
}

func newRouter(cfg *config.Config, logger zerolog.Logger, deps *app.Dependencies, svcs *app.Services, rl *limiter.Limiter, tracingEnabled bool) http.Handler {
	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Service: svcs.Catalog})
	draftHandler := &draft.Handler{Svc: svcs.Drafts, Logger: logger.With().Str("component", "draft").Logger()}
	salesHandler := &sales.Handler{Svc: svcs.Sales, DefaultLimit: cfg.CatalogDefaultLimit, MaxLimit: cfg.CatalogMaxLimit}
	reportsHandler := &reports.Handler{Svc: svcs.Reports}
	eventsHandler := &events.Handler{Q: deps.Store.Queries}
	healthHandler := health.Handler{Checker: deps}
	idem := common.Idem{R: deps.Redis, TTL: cfg.IdempotencyTTL}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if cfg.Obs.MetricsEnabled {
		buckets := obs.ParseBucketsCSV(cfg.Obs.MetricsBucketsCSV)
		r.Use(obs.HTTPObs{Metrics: obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, buckets, nil)}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders: []string{"X-Total-Count", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		MaxAge:         300,
	}))
	r.Use(security.Headers{Enable: cfg.SecurityHeaders, HSTSMaxAge: cfg.HSTSMaxAge}.Middleware)

	if cfg.Obs.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(ratelimit.Handler{
			Limiter: rl,
			OnError: func(err error) { logger.Error().Err(err).Msg("rate limiter unavailable") },
		}.Middleware)
		v.Use(security.BodyLimit{Max: int64(cfg.MaxBodyBytes)}.Middleware)

		v.Get("/brands", catalogHandler.Brands)
		v.Post("/brands", catalogHandler.CreateBrand)
		v.Get("/categories", catalogHandler.Categories)
		v.Post("/categories", catalogHandler.CreateCategory)
		v.Get("/products", catalogHandler.Products)
		v.Post("/products", catalogHandler.CreateProduct)

		v.Route("/stock-items", func(s chi.Router) {
			s.Get("/", catalogHandler.StockItems)
			s.Post("/", catalogHandler.CreateStockItem)
			s.Get("/expiring", catalogHandler.Expiring)
			s.Get("/low-stock", catalogHandler.LowStock)
			s.Get("/{id}", catalogHandler.StockItem)
		})
		v.Get("/stock-catalog", catalogHandler.StockCatalog)

		v.Route("/sales", func(s chi.Router) {
			s.Get("/", salesHandler.List)
			s.With(idem.Middleware).Post("/", salesHandler.Create)
			s.Get("/report", salesHandler.Report)

			s.Route("/drafts", func(d chi.Router) {
				d.Post("/", draftHandler.Create)
				d.Route("/{id}", func(one chi.Router) {
					one.Get("/", draftHandler.Get)
					one.Delete("/", draftHandler.Discard)
					one.Post("/rows", draftHandler.AddRow)
					one.Patch("/rows/{rowId}", draftHandler.UpdateRow)
					one.Delete("/rows/{rowId}", draftHandler.RemoveRow)
					one.With(idem.Middleware).Post("/submit", salesHandler.SubmitDraft)
				})
			})

			s.Get("/{id}", salesHandler.Get)
		})

		v.Route("/reports", func(rp chi.Router) {
			rp.Get("/dashboard-data", reportsHandler.Dashboard)
			rp.Get("/inventory/summary", reportsHandler.InventorySummary)
			rp.Get("/inventory/value", reportsHandler.InventoryValue)
			rp.Get("/sales/summary", reportsHandler.SalesSummary)
		})

		v.Get("/events", eventsHandler.List)
	})

	return r
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}
