package middleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/DukeRupert/fixiepixie/internal/auth"
	"github.com/DukeRupert/fixiepixie/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-do-not-use"

// =============================================================================
// Test Helpers
// =============================================================================

// newTestLogger creates a logger that only shows errors in tests.
func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims IdentityClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func validClaims() IdentityClaims {
	return IdentityClaims{
		Subject: "user-42",
		Email:   "ana@example.com",
		Name:    "Ana",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

// serveIdentity runs req through WithIdentity and returns the identity the
// handler observed.
func serveIdentity(t *testing.T, mw *IdentityMiddleware, req *http.Request) *domain.Identity {
	t.Helper()

	var got *domain.Identity
	called := false
	h := mw.WithIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		got = auth.GetIdentityFromRequest(r)
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.True(t, called, "handler must always be called")
	assert.Equal(t, http.StatusOK, rec.Code)
	return got
}

// =============================================================================
// WithIdentity Tests
// =============================================================================

func TestWithIdentity_ValidToken(t *testing.T) {
	mw := NewIdentityMiddleware(testSecret, newTestLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/report", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims()))

	got := serveIdentity(t, mw, req)
	require.NotNil(t, got)
	assert.Equal(t, "user-42", got.Subject)
	assert.Equal(t, "ana@example.com", got.Email)
	assert.Equal(t, "Ana", got.Name)
	assert.True(t, got.CanSendMail())
}

func TestWithIdentity_AnonymousCases(t *testing.T) {
	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	noSubject := validClaims()
	noSubject.Subject = ""

	tests := []struct {
		name   string
		header func(t *testing.T) string
	}{
		{"no header", func(t *testing.T) string { return "" }},
		{"basic scheme", func(t *testing.T) string { return "Basic dXNlcjpwYXNz" }},
		{"empty bearer", func(t *testing.T) string { return "Bearer " }},
		{"garbage", func(t *testing.T) string { return "Bearer not.a.jwt" }},
		{"wrong secret", func(t *testing.T) string {
			return "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte("other"), validClaims())
		}},
		{"wrong algorithm", func(t *testing.T) string {
			return "Bearer " + signToken(t, jwt.SigningMethodHS512, []byte(testSecret), validClaims())
		}},
		{"expired", func(t *testing.T) string {
			return "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), expired)
		}},
		{"no subject", func(t *testing.T) string {
			return "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), noSubject)
		}},
	}

	mw := NewIdentityMiddleware(testSecret, newTestLogger())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/report", nil)
			if h := tt.header(t); h != "" {
				req.Header.Set("Authorization", h)
			}
			assert.Nil(t, serveIdentity(t, mw, req))
		})
	}
}

func TestWithIdentity_DisabledWithoutSecret(t *testing.T) {
	mw := NewIdentityMiddleware("", newTestLogger())
	assert.False(t, mw.Enabled())

	req := httptest.NewRequest(http.MethodPost, "/api/report", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims()))

	assert.Nil(t, serveIdentity(t, mw, req))
}

func TestParseToken_TrimsClaims(t *testing.T) {
	mw := NewIdentityMiddleware(testSecret, newTestLogger())

	claims := validClaims()
	claims.Email = "  ana@example.com "
	claims.Name = " Ana "

	got, err := mw.ParseToken(signToken(t, jwt.SigningMethodHS256, []byte(testSecret), claims))
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", got.Email)
	assert.Equal(t, "Ana", got.Name)
}

func TestParseToken_SubjectFormats(t *testing.T) {
	mw := NewIdentityMiddleware(testSecret, newTestLogger())
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name    string
		sub     interface{}
		want    string
		wantErr bool
	}{
		{"numeric user id", 42, "42", false},
		{"large numeric id", int64(9007199254740993), "9007199254740993", false},
		{"string id", "user-42", "user-42", false},
		{"zero is a subject", 0, "0", false},
		{"missing", nil, "", true},
		{"object", map[string]string{"id": "42"}, "", true},
		{"boolean", true, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := jwt.MapClaims{"email": "ana@example.com", "name": "Ana", "exp": exp}
			if tt.sub != nil {
				claims["sub"] = tt.sub
			}
			raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
			require.NoError(t, err)

			got, err := mw.ParseToken(raw)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Subject)
			assert.Equal(t, "ana@example.com", got.Email)
			assert.True(t, got.CanSendMail())
		})
	}
}

func TestWithIdentity_NumericSubject(t *testing.T) {
	mw := NewIdentityMiddleware(testSecret, newTestLogger())
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   42,
		"email": "ana@example.com",
		"name":  "Ana",
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/report", nil)
	req.Header.Set("Authorization", "Bearer "+raw)

	got := serveIdentity(t, mw, req)
	require.NotNil(t, got)
	assert.Equal(t, "42", got.Subject)
	assert.Equal(t, "Ana", got.Name)
}

func TestBearerToken_CaseInsensitiveScheme(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer abc.def.ghi")

	token, ok := bearerToken(req)
	assert.True(t, ok)
	assert.Equal(t, "abc.def.ghi", token)
}
