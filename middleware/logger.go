package middleware

import (
	"context"
	"net/http"
	"time"

	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/stats"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// RequestIDHeader carries the per-request ID, echoed back to the client
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// ResponseRecorder captures the status code and body size written by a handler
type ResponseRecorder struct {
	http.ResponseWriter
	StatusCode int
	BodySize   int
}

// NewResponseRecorder wraps w with a default status of 200
func NewResponseRecorder(w http.ResponseWriter) *ResponseRecorder {
	return &ResponseRecorder{ResponseWriter: w, StatusCode: http.StatusOK}
}

func (rec *ResponseRecorder) WriteHeader(statusCode int) {
	rec.StatusCode = statusCode
	rec.ResponseWriter.WriteHeader(statusCode)
}

func (rec *ResponseRecorder) Write(b []byte) (int, error) {
	n, err := rec.ResponseWriter.Write(b)
	rec.BodySize += n
	return n, err
}

// RequestID returns the ID assigned to the request by LoggingMiddleware
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// LoggingMiddleware tags each request with an ID, logs it once it completes, and
// records request counters and timings.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id))

		rec := NewResponseRecorder(w)
		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		s := stats.Get()
		s.RecordRequest(r.URL.Path)
		s.RecordStatusCode(rec.StatusCode)
		s.RecordResponseTime(elapsed, r.URL.Path)

		log.WithFields(log.Fields{
			"request_id": id,
			"remote":     r.RemoteAddr,
			"bytes":      rec.BodySize,
		}).Infof("%s %s %s %s%d%s %s",
			logcolors.LogHTTP, r.Method, r.URL.RequestURI(),
			getStatusColor(rec.StatusCode), rec.StatusCode, logcolors.Reset, elapsed)
	})
}

func getStatusColor(statusCode int) string {
	switch {
	case statusCode >= 500:
		return logcolors.Red
	case statusCode >= 400:
		return logcolors.Yellow
	case statusCode >= 300:
		return logcolors.Cyan
	case statusCode >= 200:
		return logcolors.Green
	default:
		return logcolors.Reset
	}
}
