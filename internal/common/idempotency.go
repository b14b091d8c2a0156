package common

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const defaultIdemTTL = 24 * time.Hour

// Idem guards sale creation and draft submission with the Idempotency-Key
// header. A key is held for TTL once a request carrying it succeeds. A failed
// attempt releases the key, so a sale rejected for stock can be retried with
// the same key after the form is corrected.
type Idem struct {
	R   *redis.Client
	TTL time.Duration
}

func (i Idem) ttl() time.Duration {
	if i.TTL <= 0 {
		return defaultIdemTTL
	}
	return i.TTL
}

func hashKey(method, path, key string) string {
	sum := sha256.Sum256([]byte(method + " " + path + " " + key))
	return "idem:" + hex.EncodeToString(sum[:])
}

type idemWriter struct {
	http.ResponseWriter
	status int
}

func (w *idemWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *idemWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(p)
}

// Middleware answers 409 IDEMPOTENT_REPLAY while a key is in flight or held.
// Requests without the header pass through.
func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
		if header == "" || i.R == nil {
			next.ServeHTTP(w, r)
			return
		}
		key := hashKey(r.Method, r.URL.Path, header)
		ok, err := i.R.SetNX(r.Context(), key, "pending", i.ttl()).Result()
		if err != nil {
			JSONError(w, http.StatusServiceUnavailable, "IDEMPOTENCY_UNAVAILABLE", "idempotency store unavailable", nil)
			return
		}
		if !ok {
			JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "duplicate request", nil)
			return
		}

		rec := &idemWriter{ResponseWriter: w}
		completed := false
		defer func() {
			ctx := context.Background()
			if !completed || rec.status >= http.StatusBadRequest {
				_ = i.R.Del(ctx, key).Err()
				return
			}
			_ = i.R.Set(ctx, key, "done", i.ttl()).Err()
		}()
		next.ServeHTTP(rec, r)
		completed = true
	})
}
