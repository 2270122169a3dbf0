// Package middleware contains HTTP middleware for the FixiePixie service.
//
// Middleware functions follow the standard Go pattern of wrapping http.Handler.
// They are designed to be composed using a middleware stack approach.
package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/DukeRupert/fixiepixie/internal/auth"
	"github.com/DukeRupert/fixiepixie/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// =============================================================================
// Token Claims
// =============================================================================

// IdentityClaims are the JWT claims identifying a signed-in reporter.
// Subject shadows the embedded "sub" claim so numeric user IDs decode.
type IdentityClaims struct {
	Subject SubjectClaim `json:"sub,omitempty"`
	Email   string       `json:"email"`
	Name    string       `json:"name"`
	jwt.RegisteredClaims
}

// GetSubject implements jwt.Claims.
func (c IdentityClaims) GetSubject() (string, error) {
	return string(c.Subject), nil
}

// SubjectClaim is a "sub" claim issued as either a JSON string or a number.
type SubjectClaim string

// UnmarshalJSON accepts "sub": "user-42" and "sub": 42 alike.
func (s *SubjectClaim) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = SubjectClaim(str)
		return nil
	}

	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("sub must be a string or a number: %w", err)
	}
	*s = SubjectClaim(num.String())
	return nil
}

// errNoBearer is returned when the Authorization header carries no bearer token.
var errNoBearer = errors.New("no bearer token")

// =============================================================================
// Identity Middleware
// =============================================================================

// IdentityMiddleware extracts the reporter identity from bearer tokens.
//
// Authentication is never enforced: a missing or invalid token leaves the
// request anonymous.
type IdentityMiddleware struct {
	secret []byte
	logger *slog.Logger
}

// NewIdentityMiddleware creates a new IdentityMiddleware. An empty secret
// disables token verification and every request is anonymous.
func NewIdentityMiddleware(secret string, logger *slog.Logger) *IdentityMiddleware {
	return &IdentityMiddleware{
		secret: []byte(secret),
		logger: logger,
	}
}

// Enabled reports whether tokens are verified.
func (m *IdentityMiddleware) Enabled() bool {
	return len(m.secret) > 0
}

// WithIdentity stores the verified identity in the request context.
//
// The identity can be retrieved in handlers using:
//
//	identity := auth.GetIdentityFromRequest(r)
func (m *IdentityMiddleware) WithIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		identity, err := m.Identify(r)
		if err != nil {
			if !errors.Is(err, errNoBearer) {
				m.logger.Info("ignoring invalid bearer token",
					"path", r.URL.Path,
					"error", err,
				)
			}
			next.ServeHTTP(w, r)
			return
		}

		r = r.WithContext(auth.SetIdentity(r.Context(), identity))
		markReporter(r)
		next.ServeHTTP(w, r)
	})
}

// Identify verifies the request's bearer token and returns its identity.
func (m *IdentityMiddleware) Identify(r *http.Request) (*domain.Identity, error) {
	raw, ok := bearerToken(r)
	if !ok {
		return nil, errNoBearer
	}
	return m.ParseToken(raw)
}

// ParseToken verifies an HS256 token and maps its claims to an Identity.
func (m *IdentityMiddleware) ParseToken(raw string) (*domain.Identity, error) {
	claims := &IdentityClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	subject := strings.TrimSpace(string(claims.Subject))
	if subject == "" {
		return nil, errors.New("token has no subject")
	}

	return &domain.Identity{
		Subject: subject,
		Email:   strings.TrimSpace(claims.Email),
		Name:    strings.TrimSpace(claims.Name),
	}, nil
}

// =============================================================================
// Request Helpers
// =============================================================================

// bearerToken returns the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
