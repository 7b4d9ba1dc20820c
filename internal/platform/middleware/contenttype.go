package middleware

import "net/http"

// ContentTypeJSON sets the default response content type. Handlers that
// stream raw bytes (document content downloads) override it.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
