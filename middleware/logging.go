package middleware

import (
	"net/http"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/blogem/otel-poc/telemetry"
)

// RequestLogger writes one log line per request. Dashboard and health
// check traffic is not logged. A panicking request is logged with status
// 500 before the panic continues to the recoverer.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	logger = logger.Named("http")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/hangfire") || strings.HasPrefix(r.URL.Path, "/health") {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				rvr := recover()
				telemetry.WithTrace(r.Context(), logger).Info("HTTP request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", responseStatus(ww, rvr != nil)),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Float64("elapsed_ms", float64(time.Since(start).Microseconds())/1000),
					zap.String("request_id", GetRequestID(r.Context())),
				)
				if rvr != nil {
					panic(rvr)
				}
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// responseStatus is the status written through ww. Nothing written means 200,
// or 500 when the handler panicked.
func responseStatus(ww chimw.WrapResponseWriter, panicked bool) int {
	if status := ww.Status(); status != 0 {
		return status
	}
	if panicked {
		return http.StatusInternalServerError
	}
	return http.StatusOK
}
