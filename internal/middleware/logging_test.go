package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DukeRupert/fixiepixie/internal/auth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Request Logging Middleware Tests
// =============================================================================

func serveLogged(t *testing.T, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := NewRequestLoggingMiddleware(slog.New(slog.NewTextHandler(&buf, nil)))

	if req.RemoteAddr == "" {
		req.RemoteAddr = "192.168.1.1:12345"
	}
	rec := httptest.NewRecorder()
	mw.Handler(h).ServeHTTP(rec, req)
	return rec, buf.String()
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRequestLoggingMiddleware_LogsBasicInfo(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/report", nil)
	req.Header.Set("User-Agent", "FixiePixieApp/1.0")

	_, out := serveLogged(t, okHandler, req)

	assert.Contains(t, out, "method=POST")
	assert.Contains(t, out, "path=/api/report")
	assert.Contains(t, out, "status=200")
	assert.Contains(t, out, "duration_ms=")
	assert.Contains(t, out, "ip=192.168.1.1")
	assert.Contains(t, out, "FixiePixieApp/1.0")
	assert.Contains(t, out, "reporter=anonymous")
}

func TestRequestLoggingMiddleware_ServerErrorsAtWarn(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, out := serveLogged(t, h, httptest.NewRequest(http.MethodPost, "/api/report", nil))
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "status=500")
}

func TestRequestLoggingMiddleware_RequestID(t *testing.T) {
	var seen string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	})

	rec, out := serveLogged(t, h, httptest.NewRequest(http.MethodGet, "/reverse", nil))
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
	assert.Contains(t, out, "request_id="+seen)

	req := httptest.NewRequest(http.MethodGet, "/reverse", nil)
	req.Header.Set(RequestIDHeader, "client-supplied-1")
	rec, _ = serveLogged(t, h, req)
	assert.Equal(t, "client-supplied-1", seen)
	assert.Equal(t, "client-supplied-1", rec.Header().Get(RequestIDHeader))
}

func TestRequestLoggingMiddleware_SanitizesQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/reverse?lat=32.776712&lon=-96.796987&token=secret123", nil)

	_, out := serveLogged(t, okHandler, req)
	assert.NotContains(t, out, "secret123")
	assert.NotContains(t, out, "32.776712")
	assert.Contains(t, out, "lat=32.78")
	assert.Contains(t, out, "lon=-96.80")
	assert.Contains(t, out, "token=[REDACTED]")
}

func TestRequestLoggingMiddleware_PassesRequestThrough(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Custom", "value")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("response body"))
	})

	rec, out := serveLogged(t, h, httptest.NewRequest(http.MethodPost, "/create", nil))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "value", rec.Header().Get("X-Custom"))
	assert.Equal(t, "response body", rec.Body.String())
	assert.Contains(t, out, "status=201")
}

func TestRequestLoggingMiddleware_SkipsNoisyPaths(t *testing.T) {
	for _, path := range []string{"/health", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			rec, out := serveLogged(t, okHandler, httptest.NewRequest(http.MethodGet, path, nil))
			assert.Empty(t, out)
			assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
		})
	}
}

func TestRequestLoggingMiddleware_SignedInReporter(t *testing.T) {
	idMw := NewIdentityMiddleware(testSecret, newTestLogger())
	token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), IdentityClaims{
		Email:            "ana@example.com",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})

	h := idMw.WithIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotNil(t, auth.GetIdentityFromRequest(r))
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/report", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	_, out := serveLogged(t, h, req)
	assert.Contains(t, out, "reporter=signed_in")
	assert.NotContains(t, out, "ana@example.com")
}

func TestSanitizePath(t *testing.T) {
	tests := []struct {
		path, query, want string
	}{
		{"/reverse", "", "/reverse"},
		{"/reverse", "lat=abc", "/reverse?lat=[REDACTED]"},
		{"/x", "flag", "/x"},
		{"/x", "API_KEY=k&page=2", "/x?API_KEY=[REDACTED]&page=2"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizePath(tt.path, tt.query))
	}
}
