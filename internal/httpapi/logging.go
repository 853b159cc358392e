package httpapi

import (
	"log"
	"net/http"
	"time"

	"github.com/jeogo/casnos-sub001/internal/metrics"

	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware assigns a request id when the client sent none, then
// logs and counts every request.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
			r.Header.Set(requestIDHeader, requestID)
		}
		w.Header().Set(requestIDHeader, requestID)

		writer := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(writer, r)
		duration := time.Since(start)
		metrics.RequestsTotal.Inc()
		if writer.status >= http.StatusBadRequest {
			metrics.RequestErrors.Inc()
		}
		log.Printf("request method=%s path=%s status=%d duration_ms=%d ip=%s request_id=%s", r.Method, r.URL.Path, writer.status, duration.Milliseconds(), clientIP(r), requestID)
	})
}
