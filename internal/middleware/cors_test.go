package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

const appOrigin = "https://app.fixiepixie.example"

// serveCORS sends one request through the CORS middleware. A non-empty
// requestHeaders makes it a preflight.
func serveCORS(origins, method, origin, requestHeaders string) (*httptest.ResponseRecorder, bool) {
	called := false
	h := NewCORSMiddleware(origins).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(method, "/api/report", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if requestHeaders != "" {
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", requestHeaders)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, called
}

func TestCORS_Wildcard(t *testing.T) {
	rec, called := serveCORS("*", http.MethodPost, appOrigin, "")
	assert.True(t, called)
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.CanonicalHeaderKey(RequestIDHeader), rec.Header().Get("Access-Control-Expose-Headers"))
}

func TestCORS_Preflight(t *testing.T) {
	rec, called := serveCORS(appOrigin, http.MethodOptions, appOrigin, "Authorization, X-Mailbox-Token, X-Mailbox-Token-Expiry")
	assert.False(t, called, "preflight is answered by the middleware")
	assert.Less(t, rec.Code, 300)
	assert.Equal(t, appOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-Mailbox-Token")
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-Mailbox-Token-Expiry")
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
	assert.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))
}

func TestCORS_PreflightUnknownHeader(t *testing.T) {
	rec, called := serveCORS(appOrigin, http.MethodOptions, appOrigin, "X-Something-Else")
	assert.False(t, called)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	allow := appOrigin + "/, https://admin.fixiepixie.example"

	rec, called := serveCORS(allow, http.MethodPost, "https://evil.example", "")
	assert.True(t, called, "simple requests still reach the handler")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	rec, called = serveCORS(allow, http.MethodOptions, "https://evil.example", "X-Mailbox-Token")
	assert.False(t, called)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	rec, _ = serveCORS(allow, http.MethodPost, appOrigin, "")
	assert.Equal(t, appOrigin, rec.Header().Get("Access-Control-Allow-Origin"), "trailing slash in config is ignored")
}

func TestCORS_NoOrigin(t *testing.T) {
	rec, called := serveCORS("", http.MethodGet, "", "")
	assert.True(t, called)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestParseOrigins(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", []string{"*"}},
		{" , ", []string{"*"}},
		{"*", []string{"*"}},
		{"https://a.example, *", []string{"*"}},
		{"https://a.example/, https://b.example", []string{"https://a.example", "https://b.example"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseOrigins(tt.in), tt.in)
	}
}
