package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/artpar/agentresourcerest/internal/core/auth"
)

// HTTPObserver receives one observation per completed request.
// metrics.Metrics implements this interface.
type HTTPObserver interface {
	ObserveHTTP(method, route string, status int, d time.Duration)
}

// RequestLogger logs every request once it completes, together with the
// caller identity. It must run inside AuthMiddleware so the user is visible.
// Failed requests (5xx) are logged at error level.
func RequestLogger(logger *slog.Logger, observer HTTPObserver) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)

			userID := "anonymous"
			permissions := 0
			if user, ok := auth.UserFromContext(r.Context()); ok {
				userID = user.UserID
				permissions = len(user.Permissions)
			}

			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.LogAttrs(r.Context(), level, "request completed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int64("duration_ms", elapsed.Milliseconds()),
				slog.String("user", userID),
				slog.Int("permissions", permissions),
				slog.String("request_id", chimw.GetReqID(r.Context())),
			)

			if observer != nil {
				observer.ObserveHTTP(r.Method, routePattern(r), status, elapsed)
			}
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}
