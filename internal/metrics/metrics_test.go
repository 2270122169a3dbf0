package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRouteLabel(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
	}{
		{"POST /api/report", "/api/report"},
		{"GET /reverse", "/reverse"},
		{"/health", "/health"},
		{"", "unmatched"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, routeLabel(tt.pattern))
	}
}

type copiedKey struct{}

// instrumentedMux mirrors the server wiring: metrics outside, an
// inner middleware that copies the request, then the routed mux.
func instrumentedMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/report", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {})

	copyRequest := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), copiedKey{}, true)))
		})
	}
	return Middleware(copyRequest(Routes(mux)))
}

func TestMiddleware_LabelsMatchedRoute(t *testing.T) {
	h := instrumentedMux()
	counter := HTTPRequestsTotal.WithLabelValues("POST", "/api/report", "418")
	before := testutil.ToFloat64(counter)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/report", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestMiddleware_CollapsesUnknownPaths(t *testing.T) {
	h := instrumentedMux()
	counter := HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404")
	before := testutil.ToFloat64(counter)

	for _, path := range []string{"/wp-admin", "/.env", "/api/report/123"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", path, nil))
	}

	assert.Equal(t, before+3, testutil.ToFloat64(counter))
}

func TestMiddleware_SkipsMetricsEndpoint(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/metrics", "200"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/metrics", nil))
	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/metrics", "200"))

	assert.Equal(t, before, after)
}

func TestDeliveryAttempted(t *testing.T) {
	sent := testutil.ToFloat64(DeliveriesTotal.WithLabelValues("smtp", "sent"))
	failed := testutil.ToFloat64(DeliveriesTotal.WithLabelValues("smtp", "failed"))

	DeliveryAttempted("smtp", nil)
	DeliveryAttempted("smtp", errors.New("boom"))

	assert.Equal(t, sent+1, testutil.ToFloat64(DeliveriesTotal.WithLabelValues("smtp", "sent")))
	assert.Equal(t, failed+1, testutil.ToFloat64(DeliveriesTotal.WithLabelValues("smtp", "failed")))
}

func TestReportFinished(t *testing.T) {
	before := testutil.ToFloat64(ReportsTotal.WithLabelValues("sent"))
	ReportFinished("sent", 250*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(ReportsTotal.WithLabelValues("sent")))
}
