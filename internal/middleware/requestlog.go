// Package middleware holds the HTTP wrappers that sit outside the router:
// CORS, request logging and panic recovery.
package middleware

import (
	"math"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/davidwehrlin/tag-master/internal/requestctx"
)

const HeaderRequestID = "X-Request-ID"

// EventLogger writes structured records with PII redaction.
type EventLogger interface {
	Event(level zerolog.Level, msg string, fields map[string]interface{})
}

type responseRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *responseRecorder) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}
	r.status = code
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	return r.ResponseWriter.Write(b)
}

// RequestLogger tags every request with a fresh id, logs it on the way in and
// out, and returns the id in X-Request-ID.
func RequestLogger(log EventLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := uuid.NewString()
			r = r.WithContext(requestctx.WithRequestID(r.Context(), requestID))

			log.Event(zerolog.InfoLevel, "http_request", map[string]interface{}{
				"request_id":   requestID,
				"method":       r.Method,
				"path":         r.URL.Path,
				"query_params": queryParams(r),
				"client_host":  clientHost(r),
			})

			// заголовок нужен до того, как обработчик начнет писать тело
			w.Header().Set(HeaderRequestID, requestID)

			start := time.Now()
			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			log.Event(zerolog.InfoLevel, "http_response", map[string]interface{}{
				"request_id":      requestID,
				"method":          r.Method,
				"path":            r.URL.Path,
				"status_code":     rec.status,
				"process_time_ms": math.Round(float64(time.Since(start).Microseconds())/10) / 100,
			})
		})
	}
}

func queryParams(r *http.Request) map[string]interface{} {
	q := r.URL.Query()
	out := make(map[string]interface{}, len(q))
	for k := range q {
		out[k] = q.Get(k)
	}
	return out
}

func clientHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
