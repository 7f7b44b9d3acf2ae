package middleware

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/blogem/otel-poc/telemetry"
)

// Recoverer turns a panic into a 500 response and logs it with its stack.
// http.ErrAbortHandler is passed on to net/http untouched.
func Recoverer(logger *zap.Logger) func(http.Handler) http.Handler {
	logger = logger.Named("http")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rvr := recover()
				if rvr == nil {
					return
				}
				if err, ok := rvr.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rvr)
				}

				telemetry.WithTrace(r.Context(), logger).Error("Unhandled exception",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Any("panic", rvr),
					zap.String("request_id", GetRequestID(r.Context())),
					zap.Stack("stack"),
				)

				if r.Header.Get("Connection") != "Upgrade" {
					w.WriteHeader(http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
