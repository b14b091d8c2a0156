package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"DATABASE_URL":        "postgres://localhost/apotek",
		"REDIS_URL":           "redis://localhost:6379/0",
		"DRAFT_TTL":           "",
		"LOW_STOCK_THRESHOLD": "",
		"PORT":                "",
	})
	require.NoError(t, err)
	require.Equal(t, 12*time.Hour, cfg.DraftTTL)
	require.Equal(t, time.Hour, cfg.InventoryValueTTL)
	require.Equal(t, 10, cfg.LowStockThreshold)
	require.Equal(t, 30, cfg.ExpiringWithinDays)
	require.Equal(t, "0 9 * * *", cfg.InventoryCheckCron)
	require.Equal(t, ":8080", cfg.HTTPAddr())
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"DATABASE_URL":          "postgres://localhost/apotek",
		"REDIS_URL":             "redis://localhost:6379/0",
		"PORT":                  ":9090",
		"CATALOG_DEFAULT_LIMIT": "50",
		"CATALOG_MAX_LIMIT":     "10",
		"CORS_ALLOWED_ORIGINS":  "http://a.test, http://b.test",
		"MIGRATIONS_AUTO":       "true",
	})
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddr())
	require.Equal(t, 50, cfg.CatalogMaxLimit)
	require.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSAllowedOrigins)
	require.True(t, cfg.MigrationsAuto)
}

func TestLoadRequiresDatabase(t *testing.T) {
	_, err := LoadForTests(map[string]string{
		"DATABASE_URL": "",
		"REDIS_URL":    "redis://localhost:6379/0",
	})
	require.Error(t, err)
}

func TestLoadClientSkipsStores(t *testing.T) {
	original, had := os.LookupEnv("DATABASE_URL")
	require.NoError(t, os.Unsetenv("DATABASE_URL"))
	t.Cleanup(func() {
		if had {
			_ = os.Setenv("DATABASE_URL", original)
		}
	})
	t.Setenv("DASHBOARD_URL", "http://api.test/api/v1/reports/dashboard-data/")

	cfg, err := LoadClient()
	require.NoError(t, err)
	require.Equal(t, "http://api.test/api/v1/reports/dashboard-data/", cfg.DashboardURL)
}
