package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"os"
	"time"

	"github.com/noah-isme/apotek-admin/internal/config"
	"github.com/noah-isme/apotek-admin/internal/obs"
	"github.com/noah-isme/apotek-admin/internal/reports"
)

// dashboard fetches the dashboard document once and prints it. A non-2xx
// answer exits with status 1 and nothing is printed.
func main() {
	var (
		url     = flag.String("url", "", "dashboard data endpoint; defaults to DASHBOARD_URL")
		timeout = flag.Duration("timeout", 10*time.Second, "request timeout")
	)
	flag.Parse()

	cfg, err := config.LoadClient()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("component", "dashboard").Logger()

	target := *url
	if target == "" {
		target = cfg.DashboardURL
	}

	doc, err := reports.NewClient(target, *timeout).Fetch(context.Background())
	if err != nil {
		var statusErr *reports.StatusError
		if errors.As(err, &statusErr) {
			logger.Error().Int("status", statusErr.StatusCode).Str("body", statusErr.Body).Msg("dashboard request failed")
		} else {
			logger.Error().Err(err).Msg("dashboard request failed")
		}
		os.Exit(1)
	}

	logger.Info().
		Str("revenue_today", doc.KPI.RevenueToday).
		Int64("sales_today", doc.KPI.SalesToday).
		Str("revenue_this_month", doc.KPI.RevenueThisMonth).
		Int64("new_customers_this_month", doc.KPI.NewCustomersThisMonth).
		Msg("dashboard fetched")

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		logger.Error().Err(err).Msg("encode dashboard")
		os.Exit(1)
	}
}
