package middleware

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/procurex/requisition-engine/internal"
)

// RecoveryMiddleware converts panics into a 500 with the standard error
// envelope. The stack goes to the log, never to the client.
func RecoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						"error", rec,
						"method", r.Method,
						"url", r.URL.String(),
						"stack", string(debug.Stack()))

					appErr := internal.NewInternalError("internal server error", fmt.Errorf("panic: %v", rec))
					status, body := appErr.ToHTTPResponse()
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(status)
					_ = json.NewEncoder(w).Encode(body)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
