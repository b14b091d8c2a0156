package draft_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/apotek-admin/internal/draft"
	"github.com/noah-isme/apotek-admin/internal/lineitem"
	"github.com/noah-isme/apotek-admin/internal/lock"
)

type staticCatalog struct {
	raw   []byte
	calls int
}

func (s *staticCatalog) Snapshot(context.Context) (lineitem.Catalog, []byte, error) {
	s.calls++
	cat, err := lineitem.ParseCatalog(s.raw)
	return cat, s.raw, err
}

const catalogJSON = `{
	"A": {"quantity": 5, "selling_price": "100.00", "discount_percentage": "10"},
	"B": {"quantity": 1, "selling_price": "20.00", "discount_percentage": "50"},
	"C": {"quantity": 10, "selling_price": "50.00", "discount_percentage": "0"}
}`

func newService(t *testing.T) (*draft.Service, *miniredis.Miniredis, *staticCatalog) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	src := &staticCatalog{raw: []byte(catalogJSON)}
	svc := &draft.Service{
		R:       client,
		Catalog: src,
		Locker:  lock.Locker{R: client, RetryBackoff: 5 * time.Millisecond},
		TTL:     time.Hour,
		Now:     func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC) },
	}
	return svc, mr, src
}

func TestCreateAndRecalculate(t *testing.T) {
	svc, mr, _ := newService(t)
	ctx := context.Background()

	d, err := svc.Create(ctx, []draft.RowInput{{ID: "r1", ItemID: "A", Quantity: 3}})
	require.NoError(t, err)
	require.True(t, mr.Exists("sales:draft:"+d.ID))
	require.Equal(t, time.Hour, mr.TTL("sales:draft:"+d.ID))

	view := draft.Render(d)
	require.Len(t, view.Rows, 1)
	require.Equal(t, "90.00", view.Rows[0].UnitPrice)
	require.Equal(t, "10.00", view.Rows[0].DiscountPercentage)
	require.Equal(t, "270.00", view.Rows[0].LineTotal)
	require.Equal(t, "300.00", view.Aggregate.GrossTotal)
	require.Equal(t, "30.00", view.Aggregate.DiscountAmount)
	require.Equal(t, "270.00", view.Aggregate.FinalAmount)

	d, err = svc.UpdateRow(ctx, d.ID, "r1", draft.RowPatch{ItemID: ptr("C")})
	require.NoError(t, err)
	row, ok := d.Form.Row("r1")
	require.True(t, ok)
	require.Equal(t, 3, row.Quantity)
	require.True(t, decimal.RequireFromString("150").Equal(*row.LineTotal))

	loaded, err := svc.Get(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, draft.Render(d).Aggregate, draft.Render(loaded).Aggregate)
}

func TestRowLifecycleMatchesAggregateExample(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	d, err := svc.Create(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, draft.Render(d).Rows)
	require.Equal(t, "0.00", draft.Render(d).Aggregate.FinalAmount)

	d, first, err := svc.AddRow(ctx, d.ID, draft.RowInput{})
	require.NoError(t, err)
	view := draft.Render(d)
	require.Len(t, view.Rows, 1)
	require.Equal(t, "", view.Rows[0].UnitPrice)
	require.Equal(t, "", view.Rows[0].LineTotal)

	d, err = svc.UpdateRow(ctx, d.ID, first, draft.RowPatch{ItemID: ptr("C")})
	require.NoError(t, err)
	row, _ := d.Form.Row(first)
	require.Equal(t, 1, row.Quantity)

	d, err = svc.UpdateRow(ctx, d.ID, first, draft.RowPatch{Quantity: intPtr(2)})
	require.NoError(t, err)

	d, second, err := svc.AddRow(ctx, d.ID, draft.RowInput{ItemID: "B"})
	require.NoError(t, err)
	row, _ = d.Form.Row(second)
	require.Equal(t, 1, row.Quantity)

	view = draft.Render(d)
	require.Equal(t, "120.00", view.Aggregate.GrossTotal)
	require.Equal(t, "10.00", view.Aggregate.DiscountAmount)
	require.Equal(t, "110.00", view.Aggregate.FinalAmount)

	d, err = svc.RemoveRow(ctx, d.ID, second)
	require.NoError(t, err)
	require.Equal(t, "100.00", draft.Render(d).Aggregate.FinalAmount)

	_, err = svc.RemoveRow(ctx, d.ID, second)
	require.ErrorIs(t, err, lineitem.ErrRowNotFound)
}

func TestDraftPinsCatalogAtCreation(t *testing.T) {
	svc, _, src := newService(t)
	ctx := context.Background()

	d, err := svc.Create(ctx, []draft.RowInput{{ID: "r1", ItemID: "A", Quantity: 1}})
	require.NoError(t, err)

	src.raw = []byte(`{"A": {"quantity": 5, "selling_price": "999.00", "discount_percentage": "0"}}`)
	d, err = svc.UpdateRow(ctx, d.ID, "r1", draft.RowPatch{Quantity: intPtr(2)})
	require.NoError(t, err)
	require.Equal(t, "180.00", draft.Render(d).Rows[0].LineTotal)
	require.Equal(t, 1, src.calls)
}

func TestOverStockAndUnknownItemsAreSoft(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	d, err := svc.Create(ctx, []draft.RowInput{{ID: "r1", ItemID: "B", Quantity: 3}, {ID: "r2", ItemID: "ZZZ", Quantity: 2}})
	require.NoError(t, err)
	view := draft.Render(d)
	require.True(t, view.Rows[0].OverStock)
	require.Equal(t, "30.00", view.Rows[0].LineTotal)
	require.Len(t, view.Warnings, 1)
	require.Equal(t, "r1", view.Warnings[0].RowID)
	require.Equal(t, "OVER_STOCK", view.Warnings[0].Code)

	require.Equal(t, "ZZZ", view.Rows[1].ItemID)
	require.Equal(t, "", view.Rows[1].UnitPrice)
	require.Equal(t, "", view.Rows[1].LineTotal)
	require.Equal(t, "60.00", view.Aggregate.GrossTotal)
}

func TestMissingDraft(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.Get(context.Background(), "nope")
	require.ErrorIs(t, err, draft.ErrNotFound)
	_, err = svc.UpdateRow(context.Background(), "nope", "r1", draft.RowPatch{Quantity: intPtr(1)})
	require.ErrorIs(t, err, draft.ErrNotFound)
}

func TestServiceWithoutLockerIsNotConfigured(t *testing.T) {
	svc, _, _ := newService(t)
	svc.Locker = lock.Locker{}
	_, err := svc.UpdateRow(context.Background(), "any", "r1", draft.RowPatch{Quantity: intPtr(1)})
	require.EqualError(t, err, "draft service not configured")
	_, err = svc.Create(context.Background(), nil)
	require.EqualError(t, err, "draft service not configured")
}

func TestConcurrentMutationsAreSerialised(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	d, err := svc.Create(ctx, nil)
	require.NoError(t, err)

	const n = 8
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, _, err := svc.AddRow(ctx, d.ID, draft.RowInput{ItemID: "C", Quantity: 1})
			errs <- err
		}()
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-errs)
	}
	loaded, err := svc.Get(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Form.Rows(), n)
	require.Equal(t, "400.00", draft.Render(loaded).Aggregate.FinalAmount)
}

func TestHandlers(t *testing.T) {
	svc, _, _ := newService(t)
	h := &draft.Handler{Svc: svc, Logger: zerolog.Nop()}
	r := chi.NewRouter()
	r.Post("/api/v1/sales/drafts", h.Create)
	r.Get("/api/v1/sales/drafts/{id}", h.Get)
	r.Post("/api/v1/sales/drafts/{id}/rows", h.AddRow)
	r.Patch("/api/v1/sales/drafts/{id}/rows/{rowId}", h.UpdateRow)
	r.Delete("/api/v1/sales/drafts/{id}/rows/{rowId}", h.RemoveRow)
	r.Delete("/api/v1/sales/drafts/{id}", h.Discard)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sales/drafts", strings.NewReader(`{"rows":[{"id":"r1","item_id":"A","quantity":3}]}`)))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Data draft.View `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, "270.00", created.Data.Aggregate.FinalAmount)
	base := "/api/v1/sales/drafts/" + created.Data.ID

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, base+"/rows/r1", strings.NewReader(`{"quantity":6}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"over_stock":true`)
	require.Contains(t, rec.Body.String(), `"line_total":"540.00"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, base+"/rows/r1", strings.NewReader(`{"quantity":-1}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, base+"/rows/missing", strings.NewReader(`{"quantity":1}`)))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "ROW_NOT_FOUND")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, base+"/rows", nil))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, base+"/rows", strings.NewReader(`{"id":"r1"}`)))
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, base+"/rows/r1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"final_amount":"0.00"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, base, nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, base, nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func ptr(s string) *string { return &s }

func intPtr(n int) *int { return &n }
