// Package middleware wraps the HTTP mux with request logging and metrics.
package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hakim/go-commerce/internal/metrics"
)

// CustomerHeader carries the acting customer's id, when known. The demo
// has no real authentication; this stands in for the session user.
const CustomerHeader = "X-Customer-ID"

// RequestLogger is the persistence side of the logging middleware: a row
// is created before the handler runs and its status code is patched in
// after the response has been written.
type RequestLogger interface {
	CreateRecord(ctx context.Context, customerID *int64, method, path string) (int64, error)
	SetStatus(ctx context.Context, id int64, statusCode int) error
}

// statusRecorder captures the status code written by the handler.
// A handler that never calls WriteHeader implicitly writes 200.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func customerFromRequest(r *http.Request) *int64 {
	raw := r.Header.Get(CustomerHeader)
	if raw == "" {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &id
}

// RequestLogging persists a logging record around every request and emits
// a structured log line. A failed insert never blocks the request; the
// record is best effort, the response is not.
func RequestLogging(records RequestLogger, log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			customerID := customerFromRequest(r)

			recordID, err := records.CreateRecord(r.Context(), customerID, r.Method, r.URL.Path)
			if err != nil {
				log.WithError(err).Warn("create logging record")
			}

			recorder := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(recorder, r)

			if recorder.status == 0 {
				recorder.status = http.StatusOK
			}

			if err == nil {
				if err := records.SetStatus(r.Context(), recordID, recorder.status); err != nil {
					log.WithError(err).Warn("update logging record status")
				}
			}

			fields := logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   recorder.status,
				"duration": time.Since(start).String(),
			}
			if customerID != nil {
				fields["customer_id"] = *customerID
			}
			log.WithFields(fields).Info("request")
		})
	}
}

// Metrics records the Prometheus request counters and latency histogram.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, r)

		if recorder.status == 0 {
			recorder.status = http.StatusOK
		}

		metrics.HTTPRequestsTotal.
			WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(recorder.status)).Inc()
		metrics.HTTPRequestDuration.
			WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}
