package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"iris/pkg/requestcontext"
)

// RequestIDHeader is the response header carrying the correlation ID.
const RequestIDHeader = "X-Request-ID"

// RequestID assigns each request a correlation ID and a request-scoped
// timestamp. An inbound X-Request-ID is honored so IDs survive proxies.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}

		ctx := requestcontext.WithRequestID(r.Context(), reqID)
		ctx = requestcontext.WithTime(ctx, time.Now().UTC())

		w.Header().Set(RequestIDHeader, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
