package httpx

import (
	"net/http"

	"github.com/md-rashed-zaman/salonpos/libs/requestid"
)

// WithRequestID reuses a well-formed inbound X-Request-Id or mints one, echoes it on
// the response and stores it in the request context.
func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := requestid.Sanitize(r.Header.Get(requestid.Header))
		if id == "" {
			id = requestid.New()
		}
		w.Header().Set(requestid.Header, id)
		next.ServeHTTP(w, r.WithContext(requestid.WithContext(r.Context(), id)))
	})
}
