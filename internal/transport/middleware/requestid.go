package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/procurex/requisition-engine/pkg/logger"
)

const traceHeader = "X-Trace-ID"

// RequestID honors an incoming trace id or mints one, attaches it to the
// request-scoped logger and echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(traceHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}

		ctx := logger.With(r.Context(), "traceID", traceID)
		w.Header().Set(traceHeader, traceID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
