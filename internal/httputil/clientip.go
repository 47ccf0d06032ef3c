package httputil

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP derives the visitor's address, preferring CDN-provided
// headers over the socket address so per-IP limits apply to real
// visitors, not the proxy in front of them. The same derivation must be
// used everywhere an IP keys a limit, or the buckets won't line up.
func ClientIP(r *http.Request) string {
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("True-Client-IP"); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
