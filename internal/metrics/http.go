package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// unmatchedRoute labels requests no route claimed (404s, bad methods), so
// scanners probing random paths add one series rather than one per path.
const unmatchedRoute = "unmatched"

type routeKey struct{}

// route is filled in by Routes once the mux has matched the request.
type route struct {
	pattern string
}

// statusRecorder captures the response status for the status_code label.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.wroteHeader {
		sr.status = code
		sr.wroteHeader = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	sr.wroteHeader = true
	return sr.ResponseWriter.Write(b)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// Middleware records request count, latency and in-flight requests, labelled
// with the route pattern Routes reports. It must wrap Routes.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		matched := &route{}
		r = r.WithContext(context.WithValue(r.Context(), routeKey{}, matched))
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(sr, r)

		path := routeLabel(matched.pattern)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(sr.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// Routes wraps a ServeMux and reports the pattern it matched back to
// Middleware. The mux sets Request.Pattern on the request it serves, which
// inner middleware may have copied, so the pattern travels through the context.
func Routes(mux http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mux.ServeHTTP(w, r)
		if matched, ok := r.Context().Value(routeKey{}).(*route); ok {
			matched.pattern = r.Pattern
		}
	})
}

// routeLabel drops the method from a "POST /api/report" pattern.
func routeLabel(pattern string) string {
	if pattern == "" {
		return unmatchedRoute
	}
	if _, path, ok := strings.Cut(pattern, " "); ok {
		return path
	}
	return pattern
}
