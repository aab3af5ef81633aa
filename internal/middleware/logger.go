// AngelaMos | 2026
// logger.go

package middleware

import (
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/pedrozc90/tenantusers/internal/core"
)

type contextKey string

// RequestID tags every request with an X-Request-Id, reusing the inbound
// header when present.
func RequestID(next http.Handler) http.Handler {
	return chimw.RequestID(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			if id := chimw.GetReqID(r.Context()); id != "" {
				w.Header().Set(chimw.RequestIDHeader, id)
			}
			next.ServeHTTP(w, r)
		},
	))
}

func GetRequestID(r *http.Request) string {
	return chimw.GetReqID(r.Context())
}

func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", GetRequestID(r),
				"remote_addr", r.RemoteAddr,
			}

			if traceID := core.TraceIDFromContext(r.Context()); traceID != "" {
				attrs = append(attrs, "trace_id", traceID)
			}

			switch {
			case status >= http.StatusInternalServerError:
				logger.Error("request", attrs...)
			case status >= http.StatusBadRequest:
				logger.Warn("request", attrs...)
			default:
				logger.Info("request", attrs...)
			}
		})
	}
}
