package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/apotek-admin/internal/db"
	"github.com/noah-isme/apotek-admin/internal/obs"
)

// Cache keys dropped by the event invalidator when sales or stock change.
const (
	DashboardKey        = "reports:dashboard"
	InventorySummaryKey = "reports:inventory:summary"
	InventoryValueKey   = "reports:inventory:value"
	salesSummaryPrefix  = "reports:sales:"
)

const (
	topProductsLimit = 5
	topProductsDays  = 30
	monthlyWindow    = 6
	othersLabel      = "Others"
	monthLabelLayout = "Jan 2006"
)

// Querier defines the database access required for reports.
type Querier interface {
	SalesTotals(ctx context.Context, arg db.SalesTotalsParams) (db.SalesTotalsRow, error)
	CountCustomersSince(ctx context.Context, since pgtype.Timestamptz) (int64, error)
	MonthlyRevenue(ctx context.Context, arg db.MonthlyRevenueParams) ([]db.MonthlyRevenueRow, error)
	SaleItemsRevenueSince(ctx context.Context, since pgtype.Timestamptz) (decimal.Decimal, error)
	TopProductsByRevenue(ctx context.Context, arg db.TopProductsParams) ([]db.TopProductsByRevenueRow, error)
	TopProductsByQuantity(ctx context.Context, arg db.TopProductsParams) ([]db.TopProductsByQuantityRow, error)
	InventorySummary(ctx context.Context, arg db.InventorySummaryParams) (db.InventorySummaryRow, error)
	InventoryValue(ctx context.Context) (db.InventoryValueRow, error)
}

// Service builds report documents with Redis caching.
type Service struct {
	Q                 Querier
	R                 *redis.Client
	TTL               time.Duration
	InventoryValueTTL time.Duration
	LowStockThreshold int
	ExpiringDays      int
	Now               func() time.Time
}

// KPI holds the dashboard counters. Money is rendered as decimal strings.
type KPI struct {
	RevenueToday          string `json:"revenue_today"`
	RevenueThisMonth      string `json:"revenue_this_month"`
	SalesToday            int64  `json:"sales_today"`
	NewCustomersThisMonth int64  `json:"new_customers_this_month"`
}

// MoneySeries is a labelled chart series of amounts.
type MoneySeries struct {
	Labels []string `json:"labels"`
	Values []string `json:"values"`
}

// RevenueShare is the top products by revenue chart with its grand total.
type RevenueShare struct {
	Labels []string `json:"labels"`
	Values []string `json:"values"`
	Total  string   `json:"total"`
}

// CountSeries is a labelled chart series of counts.
type CountSeries struct {
	Labels []string `json:"labels"`
	Values []int64  `json:"values"`
}

// Charts groups the dashboard chart data.
type Charts struct {
	MonthlySales        MoneySeries  `json:"monthly_sales"`
	TopProductsRevenue  RevenueShare `json:"top_products_revenue"`
	TopProductsQuantity CountSeries  `json:"top_products_quantity"`
}

// Dashboard is the document served at /reports/dashboard-data/.
type Dashboard struct {
	KPI    KPI    `json:"kpi"`
	Charts Charts `json:"charts"`
}

// InventorySummary reports stock counts.
type InventorySummary struct {
	TotalProducts int64 `json:"total_products"`
	TotalQuantity int64 `json:"total_quantity"`
	LowStockItems int64 `json:"low_stock_items"`
	ExpiringItems int64 `json:"expiring_items"`
}

// InventoryValue reports stock value at cost and at selling price.
type InventoryValue struct {
	TotalCostValue    string `json:"total_cost_value"`
	TotalSellingValue string `json:"total_selling_value"`
	PotentialProfit   string `json:"potential_profit"`
}

// SalesSummary reports sales over the trailing days.
type SalesSummary struct {
	Days             int    `json:"days"`
	TotalSales       int64  `json:"total_sales"`
	TotalRevenue     string `json:"total_revenue"`
	AverageSaleValue string `json:"average_sale_value"`
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// inZone returns t with the IANA zone name Postgres should bucket months in.
// The process-local zone has no portable name, so it falls back to UTC.
func inZone(t time.Time) (time.Time, string) {
	name := t.Location().String()
	if name == "" || name == "Local" {
		return t.UTC(), "UTC"
	}
	return t, name
}

func ts(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// Dashboard assembles KPI counters and chart series.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	if s == nil || s.Q == nil {
		return Dashboard{}, fmt.Errorf("reports service not configured")
	}
	var out Dashboard
	if s.load(ctx, "dashboard", DashboardKey, &out) {
		return out, nil
	}

	now, zone := inZone(s.now())
	today := startOfDay(now)
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
	windowStart := monthStart.AddDate(0, -(monthlyWindow - 1), 0)
	topSince := today.AddDate(0, 0, -topProductsDays)

	todayTotals, err := s.Q.SalesTotals(ctx, db.SalesTotalsParams{FromTime: ts(today), ToTime: ts(today.AddDate(0, 0, 1))})
	if err != nil {
		return Dashboard{}, fmt.Errorf("sales today: %w", err)
	}
	monthTotals, err := s.Q.SalesTotals(ctx, db.SalesTotalsParams{FromTime: ts(monthStart)})
	if err != nil {
		return Dashboard{}, fmt.Errorf("sales this month: %w", err)
	}
	customers, err := s.Q.CountCustomersSince(ctx, ts(monthStart))
	if err != nil {
		return Dashboard{}, fmt.Errorf("customers this month: %w", err)
	}
	out.KPI = KPI{
		RevenueToday:          money(todayTotals.TotalRevenue),
		RevenueThisMonth:      money(monthTotals.TotalRevenue),
		SalesToday:            todayTotals.TotalSales,
		NewCustomersThisMonth: customers,
	}

	monthly, err := s.Q.MonthlyRevenue(ctx, db.MonthlyRevenueParams{Since: ts(windowStart), TimeZone: zone})
	if err != nil {
		return Dashboard{}, fmt.Errorf("monthly revenue: %w", err)
	}
	out.Charts.MonthlySales = MoneySeries{Labels: []string{}, Values: []string{}}
	for _, row := range monthly {
		out.Charts.MonthlySales.Labels = append(out.Charts.MonthlySales.Labels, row.Month.Time.Format(monthLabelLayout))
		out.Charts.MonthlySales.Values = append(out.Charts.MonthlySales.Values, money(row.TotalRevenue))
	}

	total, err := s.Q.SaleItemsRevenueSince(ctx, ts(topSince))
	if err != nil {
		return Dashboard{}, fmt.Errorf("revenue last 30 days: %w", err)
	}
	topRevenue, err := s.Q.TopProductsByRevenue(ctx, db.TopProductsParams{Since: ts(topSince), LimitValue: topProductsLimit})
	if err != nil {
		return Dashboard{}, fmt.Errorf("top products by revenue: %w", err)
	}
	share := RevenueShare{Labels: []string{}, Values: []string{}, Total: money(total)}
	topSum := decimal.Zero
	for _, row := range topRevenue {
		share.Labels = append(share.Labels, row.Name)
		share.Values = append(share.Values, money(row.TotalRevenue))
		topSum = topSum.Add(row.TotalRevenue)
	}
	if others := total.Sub(topSum); others.IsPositive() {
		share.Labels = append(share.Labels, othersLabel)
		share.Values = append(share.Values, money(others))
	}
	out.Charts.TopProductsRevenue = share

	topQty, err := s.Q.TopProductsByQuantity(ctx, db.TopProductsParams{Since: ts(topSince), LimitValue: topProductsLimit})
	if err != nil {
		return Dashboard{}, fmt.Errorf("top products by quantity: %w", err)
	}
	out.Charts.TopProductsQuantity = CountSeries{Labels: []string{}, Values: []int64{}}
	for _, row := range topQty {
		out.Charts.TopProductsQuantity.Labels = append(out.Charts.TopProductsQuantity.Labels, row.Name)
		out.Charts.TopProductsQuantity.Values = append(out.Charts.TopProductsQuantity.Values, row.TotalQuantity)
	}

	s.store(ctx, DashboardKey, out, s.TTL)
	return out, nil
}

// InventorySummary counts stock items, units, low stock and soon-to-expire batches.
func (s *Service) InventorySummary(ctx context.Context) (InventorySummary, error) {
	if s == nil || s.Q == nil {
		return InventorySummary{}, fmt.Errorf("reports service not configured")
	}
	var out InventorySummary
	if s.load(ctx, "inventory_summary", InventorySummaryKey, &out) {
		return out, nil
	}
	threshold := s.LowStockThreshold
	if threshold < 1 {
		threshold = 10
	}
	days := s.ExpiringDays
	if days < 1 {
		days = 30
	}
	today := startOfDay(s.now())
	row, err := s.Q.InventorySummary(ctx, db.InventorySummaryParams{
		Threshold: int32(threshold),
		FromDate:  pgtype.Date{Time: today, Valid: true},
		ToDate:    pgtype.Date{Time: today.AddDate(0, 0, days), Valid: true},
	})
	if err != nil {
		return InventorySummary{}, fmt.Errorf("inventory summary: %w", err)
	}
	out = InventorySummary{
		TotalProducts: row.TotalProducts,
		TotalQuantity: row.TotalQuantity,
		LowStockItems: row.LowStockItems,
		ExpiringItems: row.ExpiringItems,
	}
	s.store(ctx, InventorySummaryKey, out, s.TTL)
	return out, nil
}

// InventoryValue values the stock on hand, cached for InventoryValueTTL.
func (s *Service) InventoryValue(ctx context.Context) (InventoryValue, error) {
	if s == nil || s.Q == nil {
		return InventoryValue{}, fmt.Errorf("reports service not configured")
	}
	var out InventoryValue
	if s.load(ctx, "inventory_value", InventoryValueKey, &out) {
		return out, nil
	}
	row, err := s.Q.InventoryValue(ctx)
	if err != nil {
		return InventoryValue{}, fmt.Errorf("inventory value: %w", err)
	}
	out = InventoryValue{
		TotalCostValue:    money(row.TotalCostValue),
		TotalSellingValue: money(row.TotalSellingValue),
		PotentialProfit:   money(row.TotalSellingValue.Sub(row.TotalCostValue)),
	}
	ttl := s.InventoryValueTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	s.store(ctx, InventoryValueKey, out, ttl)
	return out, nil
}

// SalesSummary reports sales since today minus days.
func (s *Service) SalesSummary(ctx context.Context, days int) (SalesSummary, error) {
	if s == nil || s.Q == nil {
		return SalesSummary{}, fmt.Errorf("reports service not configured")
	}
	if days < 1 {
		days = 30
	}
	key := salesSummaryPrefix + strconv.Itoa(days)
	var out SalesSummary
	if s.load(ctx, "sales_summary", key, &out) {
		return out, nil
	}
	since := startOfDay(s.now()).AddDate(0, 0, -days)
	row, err := s.Q.SalesTotals(ctx, db.SalesTotalsParams{FromTime: ts(since)})
	if err != nil {
		return SalesSummary{}, fmt.Errorf("sales summary: %w", err)
	}
	avg := decimal.Zero
	if row.TotalSales > 0 {
		avg = row.TotalRevenue.Div(decimal.NewFromInt(row.TotalSales)).Round(2)
	}
	out = SalesSummary{
		Days:             days,
		TotalSales:       row.TotalSales,
		TotalRevenue:     money(row.TotalRevenue),
		AverageSaleValue: money(avg),
	}
	s.store(ctx, key, out, s.TTL)
	return out, nil
}

// Invalidate drops every cached report. Sales summaries are keyed by window and
// are left to expire.
func (s *Service) Invalidate(ctx context.Context) error {
	if s == nil || s.R == nil {
		return nil
	}
	return s.R.Del(ctx, DashboardKey, InventorySummaryKey, InventoryValueKey).Err()
}

func (s *Service) load(ctx context.Context, report, key string, dst any) bool {
	if s.R == nil {
		return false
	}
	data, err := s.R.Get(ctx, key).Bytes()
	if err != nil {
		obs.IncReportCache(report, "miss")
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		obs.IncReportCache(report, "miss")
		return false
	}
	obs.IncReportCache(report, "hit")
	return true
}

func (s *Service) store(ctx context.Context, key string, value any, ttl time.Duration) {
	if s.R == nil || ttl <= 0 {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = s.R.Set(ctx, key, data, ttl).Err()
}
