package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/noah-isme/apotek-admin/internal/common"
)

// Checker probes the stores the console depends on.
type Checker interface {
	PingDB(ctx context.Context, timeout time.Duration) error
	PingRedis(ctx context.Context, timeout time.Duration) error
}

var ready atomic.Bool

func init() {
	ready.Store(true)
}

// SetReady toggles readiness. The API clears it once shutdown starts.
func SetReady(v bool) {
	ready.Store(v)
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checker      Checker
	DBTimeout    time.Duration
	RedisTimeout time.Duration
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency probes.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !ready.Load() {
		common.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting_down"})
		return
	}
	if h.Checker == nil {
		common.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "dependencies unavailable"})
		return
	}
	ctx := r.Context()
	status := map[string]string{"db": "ok", "redis": "ok"}
	code := http.StatusOK
	if err := h.Checker.PingDB(ctx, orDefault(h.DBTimeout, 500*time.Millisecond)); err != nil {
		status["db"] = err.Error()
		code = http.StatusServiceUnavailable
	}
	if err := h.Checker.PingRedis(ctx, orDefault(h.RedisTimeout, 300*time.Millisecond)); err != nil {
		status["redis"] = err.Error()
		code = http.StatusServiceUnavailable
	}
	common.JSON(w, code, status)
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
