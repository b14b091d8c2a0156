package common

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type errorEnvelope struct {
	Error ErrorBody `json:"error"`
}

func TestWriteErrorAppError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, BadRequest("quantity", "quantity must be positive", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "BAD_REQUEST", body.Error.Code)
	require.Equal(t, map[string]any{"field": "quantity"}, body.Error.Details)
}

func TestWriteErrorHidesInternalErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, errors.New("connection refused"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "connection refused")
}

type sampleRequest struct {
	Name  string `json:"name" validate:"required"`
	Items []struct {
		Quantity int `json:"quantity" validate:"gte=1"`
	} `json:"items" validate:"required,min=1,dive"`
}

func TestDecodeAndValidate(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"","items":[{"quantity":0}]}`))
	var dst sampleRequest
	err := DecodeAndValidate(req, &dst)
	require.Error(t, err)

	var appErr *AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, "VALIDATION_ERROR", appErr.Code)
	fields := appErr.Details.(map[string]any)["fields"].(map[string]string)
	require.Equal(t, "required", fields["name"])
	require.Equal(t, "gte", fields["items[0].quantity"])

	bad := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":`))
	err = DecodeAndValidate(bad, &dst)
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, "BAD_REQUEST", appErr.Code)
}

func TestIdempotencyMiddlewareRejectsReplay(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	calls := 0
	handler := Idem{R: client, TTL: time.Minute}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	first := httptest.NewRequest(http.MethodPost, "/api/v1/sales", nil)
	first.Header.Set("Idempotency-Key", "abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	require.Equal(t, http.StatusCreated, rec.Code)

	second := httptest.NewRequest(http.MethodPost, "/api/v1/sales", nil)
	second.Header.Set("Idempotency-Key", "abc")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, second)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "IDEMPOTENT_REPLAY")

	noKey := httptest.NewRequest(http.MethodPost, "/api/v1/sales", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, noKey)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, 2, calls)
}

func TestIdempotencyReleasesKeyOnFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	status := http.StatusConflict
	handler := Idem{R: client, TTL: time.Minute}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		JSONError(w, status, "INSUFFICIENT_STOCK", "not enough stock", nil)
	}))
	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sales", nil)
		req.Header.Set("Idempotency-Key", "retry-me")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	rec := send()
	require.Contains(t, rec.Body.String(), "INSUFFICIENT_STOCK")
	require.Empty(t, mr.Keys())

	status = http.StatusCreated
	rec = send()
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, mr.Keys(), 1)
	require.Equal(t, time.Minute, mr.TTL(mr.Keys()[0]))

	rec = send()
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "IDEMPOTENT_REPLAY")
}

func TestParsePageClampsLimit(t *testing.T) {
	page, err := ParsePage(url.Values{"page": {"3"}, "limit": {"500"}}, 20, 100)
	require.NoError(t, err)
	require.Equal(t, PageParams{Page: 3, Limit: 100}, page)
	require.Equal(t, 200, page.Offset())

	page, err = ParsePage(url.Values{}, 0, 100)
	require.NoError(t, err)
	require.Equal(t, PageParams{Page: 1, Limit: 20}, page)

	_, err = ParsePage(url.Values{"page": {"zero"}}, 20, 100)
	var appErr *AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, "page must be a positive integer", appErr.Message)
	require.Equal(t, map[string]any{"field": "page"}, appErr.Details)
}

func TestQueryIntRange(t *testing.T) {
	v, err := QueryInt(url.Values{}, "days", 30, 1, 3650)
	require.NoError(t, err)
	require.Equal(t, 30, v)

	v, err = QueryInt(url.Values{"days": {" 7 "}}, "days", 30, 1, 3650)
	require.NoError(t, err)
	require.Equal(t, 7, v)

	_, err = QueryInt(url.Values{"days": {"4000"}}, "days", 30, 1, 3650)
	require.EqualError(t, err, "days must be between 1 and 3650")
}

func TestListEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	List(rec, []string{"a"}, PageParams{Page: 2, Limit: 1}, 5)
	require.Equal(t, "5", rec.Header().Get("X-Total-Count"))
	require.JSONEq(t, `{"data":["a"],"pagination":{"page":2,"per_page":1,"total_items":5}}`, rec.Body.String())
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.1.1:4000"
	require.Equal(t, "10.1.1.1", ClientIP(req))

	req.Header.Set("X-Real-IP", "192.0.2.7")
	require.Equal(t, "192.0.2.7", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "unknown, 198.51.100.2")
	require.Equal(t, "192.0.2.7", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 198.51.100.2")
	require.Equal(t, "203.0.113.9", ClientIP(req))
}
