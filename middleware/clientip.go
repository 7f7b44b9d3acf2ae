package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/blogem/otel-poc/models"
)

type clientIPKey struct{}

// ForwardedFor takes the client address from X-Forwarded-For or X-Real-IP.
// Mount it only behind a proxy that sets those headers, otherwise callers
// choose their own address.
func ForwardedFor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ip := forwardedIP(r); ip != "" {
			r = r.WithContext(context.WithValue(r.Context(), clientIPKey{}, ip))
		}
		next.ServeHTTP(w, r)
	})
}

func forwardedIP(r *http.Request) string {
	// Check X-Forwarded-For header (proxy/load balancer)
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		// Take first IP if multiple
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}

	if realIP := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); realIP != nil {
		return realIP.String()
	}
	return ""
}

// ClientIP is the address resolved by ForwardedFor, or the direct peer when
// that middleware is not mounted. It returns models.UnknownIPAddress when
// nothing usable is found.
func ClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPKey{}).(string); ok {
		return ip
	}
	return RemoteIP(r)
}

// RemoteIP is the address of the direct peer, without the port
func RemoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	return models.UnknownIPAddress
}
