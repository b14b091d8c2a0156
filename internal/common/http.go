package common

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP returns the caller's address for rate limiting and request logs.
// The first valid X-Forwarded-For hop wins, then X-Real-IP, then RemoteAddr.
// Header values that are not IP addresses are ignored.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	forwarded, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
	for _, candidate := range []string{forwarded, r.Header.Get("X-Real-IP")} {
		if addr, err := netip.ParseAddr(strings.TrimSpace(candidate)); err == nil {
			return addr.Unmap().String()
		}
	}
	remote := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(remote); err == nil {
		return host
	}
	return remote
}
