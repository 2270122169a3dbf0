// Package auth provides identity context helpers.
//
// This package is designed to be imported by both middleware and handler
// packages without causing import cycles.
package auth

import (
	"context"
	"net/http"

	"github.com/DukeRupert/fixiepixie/internal/domain"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// identityContextKey is the key used to store the reporter identity in context.
	identityContextKey contextKey = "identity"
)

// GetIdentity retrieves the reporter identity from the context.
//
// Returns nil for anonymous requests.
//
// Usage:
//
//	identity := auth.GetIdentity(r.Context())
//	if identity.CanSendMail() {
//	    // Reporter may send through their own mailbox
//	}
func GetIdentity(ctx context.Context) *domain.Identity {
	identity, ok := ctx.Value(identityContextKey).(*domain.Identity)
	if !ok {
		return nil
	}
	return identity
}

// GetIdentityFromRequest retrieves the reporter identity from the request context.
func GetIdentityFromRequest(r *http.Request) *domain.Identity {
	return GetIdentity(r.Context())
}

// SetIdentity stores an identity in the context.
//
// This is typically called by identity middleware after verifying a bearer
// token.
func SetIdentity(ctx context.Context, identity *domain.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}
