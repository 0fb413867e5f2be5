package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/felixge/httpsnoop"

	"github.com/c0deZ3R0/pixel-chunk/logging"
)

// LoggingMiddleware logs one line per handled request. Long-lived streams and
// websocket sessions are logged when they end.
func LoggingMiddleware(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := httpsnoop.CaptureMetrics(next, w, r)
			logger.InfoContext(r.Context(), "handled",
				slog.String("method", r.Method),
				slog.String("url", r.URL.String()),
				slog.Duration("duration", m.Duration),
				slog.Int("status", m.Code),
				slog.Int64("bytes", m.Written))
		})
	}
}
