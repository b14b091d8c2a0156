package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	CatalogCacheTTL     time.Duration
	CatalogDefaultLimit int
	CatalogMaxLimit     int

	DraftTTL          time.Duration
	ReportsCacheTTL   time.Duration
	InventoryValueTTL time.Duration
	IdempotencyTTL    time.Duration

	LowStockThreshold  int
	ExpiringWithinDays int

	RateLimit        string
	MaxBodyBytes     int
	SecurityHeaders  bool
	HSTSMaxAge       int
	LockTTL          time.Duration
	LockRetryBackoff time.Duration

	WorkerConcurrency  int
	InventoryCheckCron string
	MigrationsAuto     bool
	DashboardURL       string

	Obs Observability
}

// Observability groups logging, metrics and tracing switches.
type Observability struct {
	LogFormat         string
	LogLevel          string
	MetricsNamespace  string
	MetricsEnabled    bool
	MetricsBucketsCSV string
	TracingEnabled    bool
	TracingExporter   string
	OTLPEndpoint      string
	SamplingRatio     float64
	SlowQuery         time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	return load(true)
}

// LoadClient is Load for tools that only talk to the HTTP API; DATABASE_URL
// and REDIS_URL are optional.
func LoadClient() (*Config, error) {
	return load(false)
}

func load(requireStores bool) (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		CatalogCacheTTL:     parseDuration(k.String("CATALOG_CACHE_TTL"), "60s"),
		CatalogDefaultLimit: parseInt(k.String("CATALOG_DEFAULT_LIMIT"), 20),
		CatalogMaxLimit:     parseInt(k.String("CATALOG_MAX_LIMIT"), 100),

		DraftTTL:          parseDuration(k.String("DRAFT_TTL"), "12h"),
		ReportsCacheTTL:   parseDuration(k.String("REPORTS_CACHE_TTL"), "5m"),
		InventoryValueTTL: parseDuration(k.String("INVENTORY_VALUE_TTL"), "1h"),
		IdempotencyTTL:    parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),

		LowStockThreshold:  parseInt(k.String("LOW_STOCK_THRESHOLD"), 10),
		ExpiringWithinDays: parseInt(k.String("EXPIRING_WITHIN_DAYS"), 30),

		RateLimit:        valueOrDefault(k.String("RATE_LIMIT"), "100-M"),
		MaxBodyBytes:     parseInt(k.String("MAX_BODY_BYTES"), 1<<20),
		SecurityHeaders:  parseBoolDefault(k.String("SECURITY_HEADERS_ENABLED"), true),
		HSTSMaxAge:       parseInt(k.String("HSTS_MAX_AGE"), 31536000),
		LockTTL:          parseDuration(k.String("LOCK_TTL"), "10s"),
		LockRetryBackoff: parseDuration(k.String("LOCK_RETRY_BACKOFF"), "50ms"),

		WorkerConcurrency:  parseInt(k.String("WORKER_CONCURRENCY"), 4),
		InventoryCheckCron: valueOrDefault(k.String("INVENTORY_CHECK_CRON"), "0 9 * * *"),
		MigrationsAuto:     parseBool(k.String("MIGRATIONS_AUTO")),
		DashboardURL:       valueOrDefault(k.String("DASHBOARD_URL"), "http://localhost:8080/api/v1/reports/dashboard-data/"),

		Obs: Observability{
			LogFormat:         valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:          valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			MetricsNamespace:  valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "apotek"),
			MetricsEnabled:    parseBoolDefault(k.String("OBS_ENABLE_PROMETHEUS"), true),
			MetricsBucketsCSV: k.String("OBS_METRICS_BUCKETS_MS"),
			TracingEnabled:    parseBoolDefault(k.String("OBS_ENABLE_TRACING"), false),
			TracingExporter:   valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
			OTLPEndpoint:      strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
			SamplingRatio:     parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1.0),
			SlowQuery:         parseDuration(k.String("OBS_SLOW_QUERY"), "250ms"),
		},
	}

	if cfg.CatalogMaxLimit < cfg.CatalogDefaultLimit {
		cfg.CatalogMaxLimit = cfg.CatalogDefaultLimit
	}

	if !requireStores {
		return cfg, nil
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
