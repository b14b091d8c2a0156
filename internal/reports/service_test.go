package reports_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/apotek-admin/internal/db"
	"github.com/noah-isme/apotek-admin/internal/reports"
)

var now = time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type stubQueries struct {
	totalsCalls   int
	monthlySince  time.Time
	monthlyZone   string
	topSince      time.Time
	summaryParams db.InventorySummaryParams
	valueCalls    int
	topRevenue    []db.TopProductsByRevenueRow
	itemsRevenue  decimal.Decimal
}

func (s *stubQueries) SalesTotals(_ context.Context, arg db.SalesTotalsParams) (db.SalesTotalsRow, error) {
	s.totalsCalls++
	if arg.ToTime.Valid {
		return db.SalesTotalsRow{TotalSales: 2, TotalRevenue: dec("150.5")}, nil
	}
	return db.SalesTotalsRow{TotalSales: 9, TotalRevenue: dec("1200")}, nil
}

func (s *stubQueries) CountCustomersSince(context.Context, pgtype.Timestamptz) (int64, error) {
	return 4, nil
}

func (s *stubQueries) MonthlyRevenue(_ context.Context, arg db.MonthlyRevenueParams) ([]db.MonthlyRevenueRow, error) {
	s.monthlySince = arg.Since.Time
	s.monthlyZone = arg.TimeZone
	return []db.MonthlyRevenueRow{
		{Month: pgtype.Timestamp{Time: time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC), Valid: true}, TotalRevenue: dec("300")},
		{Month: pgtype.Timestamp{Time: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Valid: true}, TotalRevenue: dec("1200")},
	}, nil
}

func (s *stubQueries) SaleItemsRevenueSince(_ context.Context, since pgtype.Timestamptz) (decimal.Decimal, error) {
	s.topSince = since.Time
	return s.itemsRevenue, nil
}

func (s *stubQueries) TopProductsByRevenue(context.Context, db.TopProductsParams) ([]db.TopProductsByRevenueRow, error) {
	return s.topRevenue, nil
}

func (s *stubQueries) TopProductsByQuantity(_ context.Context, arg db.TopProductsParams) ([]db.TopProductsByQuantityRow, error) {
	return []db.TopProductsByQuantityRow{{Name: "Paracetamol", TotalQuantity: 40}, {Name: "Vitamin C", TotalQuantity: 12}}, nil
}

func (s *stubQueries) InventorySummary(_ context.Context, arg db.InventorySummaryParams) (db.InventorySummaryRow, error) {
	s.summaryParams = arg
	return db.InventorySummaryRow{TotalProducts: 100, TotalQuantity: 5000, LowStockItems: 3, ExpiringItems: 7}, nil
}

func (s *stubQueries) InventoryValue(context.Context) (db.InventoryValueRow, error) {
	s.valueCalls++
	return db.InventoryValueRow{TotalCostValue: dec("1000.5"), TotalSellingValue: dec("1500")}, nil
}

func newStub() *stubQueries {
	return &stubQueries{
		itemsRevenue: dec("1000"),
		topRevenue: []db.TopProductsByRevenueRow{
			{Name: "Paracetamol", TotalRevenue: dec("500")},
			{Name: "Amoxicillin", TotalRevenue: dec("300")},
		},
	}
}

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

func TestDashboardDocument(t *testing.T) {
	q := newStub()
	svc := &reports.Service{Q: q, Now: func() time.Time { return now }}

	out, err := svc.Dashboard(context.Background())
	require.NoError(t, err)
	require.Equal(t, reports.KPI{
		RevenueToday:          "150.50",
		RevenueThisMonth:      "1200.00",
		SalesToday:            2,
		NewCustomersThisMonth: 4,
	}, out.KPI)

	require.Equal(t, time.Date(2023, 10, 1, 0, 0, 0, 0, time.UTC), q.monthlySince)
	require.Equal(t, "UTC", q.monthlyZone)
	require.Equal(t, []string{"Dec 2023", "Mar 2024"}, out.Charts.MonthlySales.Labels)
	require.Equal(t, []string{"300.00", "1200.00"}, out.Charts.MonthlySales.Values)

	require.Equal(t, time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC), q.topSince)
	require.Equal(t, []string{"Paracetamol", "Amoxicillin", "Others"}, out.Charts.TopProductsRevenue.Labels)
	require.Equal(t, []string{"500.00", "300.00", "200.00"}, out.Charts.TopProductsRevenue.Values)
	require.Equal(t, "1000.00", out.Charts.TopProductsRevenue.Total)

	require.Equal(t, []int64{40, 12}, out.Charts.TopProductsQuantity.Values)
}

func TestDashboardBucketsMonthsInServiceZone(t *testing.T) {
	jakarta := time.FixedZone("Asia/Jakarta", 7*60*60)
	q := newStub()
	svc := &reports.Service{Q: q, Now: func() time.Time {
		return time.Date(2024, 3, 1, 6, 0, 0, 0, jakarta)
	}}

	out, err := svc.Dashboard(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Asia/Jakarta", q.monthlyZone)
	require.True(t, q.monthlySince.Equal(time.Date(2023, 10, 1, 0, 0, 0, 0, jakarta)))
	require.Equal(t, []string{"Dec 2023", "Mar 2024"}, out.Charts.MonthlySales.Labels)
}

func TestDashboardOmitsOthersWhenTopFiveCoverRevenue(t *testing.T) {
	q := newStub()
	q.itemsRevenue = dec("800")
	svc := &reports.Service{Q: q, Now: func() time.Time { return now }}

	out, err := svc.Dashboard(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"Paracetamol", "Amoxicillin"}, out.Charts.TopProductsRevenue.Labels)
	require.Equal(t, "800.00", out.Charts.TopProductsRevenue.Total)
}

func TestDashboardCachedUntilInvalidated(t *testing.T) {
	rdb, mr := newRedis(t)
	q := newStub()
	svc := &reports.Service{Q: q, R: rdb, TTL: time.Minute, Now: func() time.Time { return now }}

	_, err := svc.Dashboard(context.Background())
	require.NoError(t, err)
	_, err = svc.Dashboard(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, q.totalsCalls)
	require.True(t, mr.Exists(reports.DashboardKey))

	require.NoError(t, svc.Invalidate(context.Background()))
	require.False(t, mr.Exists(reports.DashboardKey))
	_, err = svc.Dashboard(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, q.totalsCalls)
}

func TestInventoryReports(t *testing.T) {
	rdb, mr := newRedis(t)
	q := newStub()
	svc := &reports.Service{Q: q, R: rdb, TTL: time.Minute, InventoryValueTTL: time.Hour, Now: func() time.Time { return now }}

	summary, err := svc.InventorySummary(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 7, summary.ExpiringItems)
	require.EqualValues(t, 10, q.summaryParams.Threshold)
	require.Equal(t, time.Date(2024, 4, 14, 0, 0, 0, 0, time.UTC), q.summaryParams.ToDate.Time)

	value, err := svc.InventoryValue(context.Background())
	require.NoError(t, err)
	require.Equal(t, reports.InventoryValue{TotalCostValue: "1000.50", TotalSellingValue: "1500.00", PotentialProfit: "499.50"}, value)
	_, err = svc.InventoryValue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, q.valueCalls)
	require.Equal(t, time.Hour, mr.TTL(reports.InventoryValueKey))
}

func TestSalesSummary(t *testing.T) {
	svc := &reports.Service{Q: newStub(), Now: func() time.Time { return now }}
	out, err := svc.SalesSummary(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, reports.SalesSummary{Days: 7, TotalSales: 9, TotalRevenue: "1200.00", AverageSaleValue: "133.33"}, out)
}

func TestHandlers(t *testing.T) {
	h := &reports.Handler{Svc: &reports.Service{Q: newStub(), Now: func() time.Time { return now }}}

	rec := httptest.NewRecorder()
	h.Dashboard(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reports/dashboard-data/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var doc map[string]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	require.Equal(t, "150.50", doc["kpi"]["revenue_today"])
	require.EqualValues(t, 2, doc["kpi"]["sales_today"])
	require.Contains(t, doc["charts"], "top_products_quantity")

	rec = httptest.NewRecorder()
	h.SalesSummary(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reports/sales/summary/?days=abc", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.InventoryValue(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reports/inventory/value/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"potential_profit":"499.50"`)
}

func TestClientFetch(t *testing.T) {
	h := &reports.Handler{Svc: &reports.Service{Q: newStub(), Now: func() time.Time { return now }}}
	srv := httptest.NewServer(http.HandlerFunc(h.Dashboard))
	t.Cleanup(srv.Close)

	client := reports.NewClient(srv.URL, time.Second)
	doc, err := client.Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, "1200.00", doc.KPI.RevenueThisMonth)
	require.Len(t, doc.Charts.MonthlySales.Labels, 2)
}

func TestClientTreatsNon2xxAsFailure(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	_, err := reports.NewClient(srv.URL, time.Second).Fetch(context.Background())
	var statusErr *reports.StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	require.Equal(t, 1, calls)
}
