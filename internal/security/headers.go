package security

import (
	"net/http"
	"strconv"
)

// Headers attaches standard security headers to API responses.
type Headers struct {
	Enable     bool
	HSTSMaxAge int
}

// Middleware implements chi middleware. HSTS is only sent over TLS.
func (h Headers) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.Enable {
			next.ServeHTTP(w, r)
			return
		}
		headers := w.Header()
		headers.Set("X-Content-Type-Options", "nosniff")
		headers.Set("X-Frame-Options", "DENY")
		headers.Set("Referrer-Policy", "no-referrer")
		headers.Set("Cache-Control", "no-store")
		if r.TLS != nil && h.HSTSMaxAge > 0 {
			headers.Set("Strict-Transport-Security", "max-age="+strconv.Itoa(h.HSTSMaxAge))
		}
		next.ServeHTTP(w, r)
	})
}
