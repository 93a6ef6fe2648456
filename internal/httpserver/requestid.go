package httpserver

import (
	"net/http"
	"time"

	"github.com/andrebq/gatekeeper/internal/logutil"
	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-Id"

// WithRequestID tags every request with an id, taken from the
// X-Request-Id header or generated, and puts a logger carrying it in the
// request context.
func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := r.Context()
		log := logutil.GetOrDefault(ctx).With().Str("request.id", id).Logger()
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(logutil.WithLogger(ctx, log)))
		log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Dur("took", time.Since(start)).Msg("Request served")
	})
}
