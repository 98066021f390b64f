package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"loom/internal/httputil"
)

// Recovery catches panics escaping a handler, logs them with the stack,
// and answers 500. If the handler already wrote a partial response the
// status write is a no-op and the client sees a truncated body instead.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				logger.Error("panic recovered",
					"method", r.Method,
					"path", r.URL.Path,
					"panic", v,
					"stack", string(debug.Stack()),
				)
				httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
			}()

			next.ServeHTTP(w, r)
		})
	}
}
