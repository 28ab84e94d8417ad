package metadata

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"erasure/pkg/requestcontext"
)

// ClientMetadata extracts the client IP, User-Agent and a parsed device
// summary from the request and adds them to the context for handlers and the
// audit trail. Apply early in the chain.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIPFromRequest(r)
		ua := r.Header.Get("User-Agent")

		ctx := r.Context()
		ctx = requestcontext.WithClientMetadata(ctx, ip, ua)
		if ua != "" {
			ctx = requestcontext.WithDevice(ctx, deviceSummary(ua))
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// deviceSummary condenses a raw User-Agent into "Browser version (OS)" for
// audit log context, keeping the raw string out of alert descriptions.
func deviceSummary(rawUA string) string {
	ua := useragent.New(rawUA)
	name, version := ua.Browser()
	if name == "" {
		return "unknown"
	}
	os := ua.OS()
	if os == "" {
		return fmt.Sprintf("%s %s", name, version)
	}
	return fmt.Sprintf("%s %s (%s)", name, version, os)
}

// ClientIPFromRequest extracts the real client IP, handling proxies and load
// balancers.
func ClientIPFromRequest(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs (client, proxy1, proxy2, ...);
	// the first is the original client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// RemoteAddr is "ip:port" (IPv4) or "[::1]:port" (IPv6).
	if addr := r.RemoteAddr; addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return strings.Trim(addr[:idx], "[]")
		}
		return addr
	}

	return "unknown"
}
