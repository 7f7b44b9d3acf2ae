package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/blogem/otel-poc/telemetry"
)

// Metrics records request counts, durations and in-flight requests.
// Paths are labelled by route pattern to keep cardinality bounded.
func Metrics(m *telemetry.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.HTTPRequestsInFlight.Inc()
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				rvr := recover()
				m.HTTPRequestsInFlight.Dec()

				status := strconv.Itoa(responseStatus(ww, rvr != nil))
				path := routePattern(r)
				m.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
				m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())

				if rvr != nil {
					panic(rvr)
				}
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
