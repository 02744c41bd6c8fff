package httpapi

import (
	"net/http"
	"time"

	"deal-voice-notes/internal/logger"
)

// requestLogger pins one request id on the request and the response, then
// logs the completed request with its status.
func requestLogger(log *logger.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := logger.RequestID(r)
		r.Header.Set("X-Request-ID", id)
		w.Header().Set("X-Request-ID", id)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(wrapped, r)

		entry := log.WithRequest(r).
			WithField("status_code", wrapped.statusCode).
			WithField("duration_ms", time.Since(start).Milliseconds())
		switch {
		case wrapped.statusCode >= 500:
			entry.Error("request completed")
		case wrapped.statusCode >= 400:
			entry.Warn("request completed")
		default:
			entry.Info("request completed")
		}
	})
}

// responseWriter captures the status code written by the handler.
type responseWriter struct {
	http.ResponseWriter
	statusCode    int
	headerWritten bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.headerWritten {
		rw.statusCode = code
		rw.headerWritten = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(data []byte) (int, error) {
	rw.headerWritten = true
	return rw.ResponseWriter.Write(data)
}
