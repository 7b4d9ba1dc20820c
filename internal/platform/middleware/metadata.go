package middleware

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"iris/pkg/requestcontext"
)

// ClientMetadata extracts the client IP and a compact User-Agent summary and
// adds them to the context. Audit records stamp both.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIPFromRequest(r)
		ua := summarizeUserAgent(r.Header.Get("User-Agent"))
		next.ServeHTTP(w, r.WithContext(requestcontext.WithClientMetadata(r.Context(), ip, ua)))
	})
}

// summarizeUserAgent reduces a raw User-Agent header to "browser/version (os)"
// so audit rows stay readable. Non-browser agents (curl, the CLI) pass
// through unchanged.
func summarizeUserAgent(raw string) string {
	if raw == "" {
		return ""
	}
	parsed := useragent.New(raw)
	name, version := parsed.Browser()
	if name == "" {
		return raw
	}
	summary := name
	if version != "" {
		summary += "/" + version
	}
	if os := parsed.OS(); os != "" {
		summary += " (" + os + ")"
	}
	return summary
}

// clientIPFromRequest extracts the real client IP, handling proxies and load
// balancers.
func clientIPFromRequest(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs; the first is the client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// RemoteAddr is "ip:port" ("[::1]:port" for IPv6).
	if addr := r.RemoteAddr; addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return addr[:idx]
		}
		return addr
	}

	return "unknown"
}
