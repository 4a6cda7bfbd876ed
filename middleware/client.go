package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/lmsauth"
)

// DeviceHeader carries an optional client-chosen device label.
const DeviceHeader = "X-Device-Name"

// ClientInfo stores the caller's IP, user agent and device label in the
// request context. With trustProxy set, the first X-Forwarded-For entry wins
// over RemoteAddr.
func ClientInfo(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := lmsauth.WithClientIP(r.Context(), ClientIP(r, trustProxy))
			ctx = lmsauth.WithUserAgent(ctx, r.UserAgent())
			if device := strings.TrimSpace(r.Header.Get(DeviceHeader)); device != "" {
				ctx = lmsauth.WithDevice(ctx, device)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
