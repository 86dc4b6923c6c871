package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/finsight/auth/pkg/logger"
)

// Recovery turns a handler panic into a 500 response in the service's error
// envelope instead of tearing down the connection. The panic value and stack
// are logged with the request's correlation ID so the response can be tied
// back to the crash.
func Recovery(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					requestID := logger.CorrelationIDFromContext(r.Context())
					l.ErrorContext(r.Context(), "panic recovered",
						slog.Any("panic", rec),
						slog.String("stack", string(debug.Stack())),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
						slog.String("correlation_id", requestID),
					)

					body := map[string]any{
						"error": map[string]string{
							"code":       "INTERNAL_ERROR",
							"message":    "an internal error occurred",
							"request_id": requestID,
						},
					}

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					if err := json.NewEncoder(w).Encode(body); err != nil {
						l.Error("failed to encode response", slog.String("error", err.Error()))
					}
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
