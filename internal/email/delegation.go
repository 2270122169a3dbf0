package email

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/DukeRupert/fixiepixie/internal/domain"
	"golang.org/x/oauth2"
)

// Delegator obtains a short-lived credential that lets the service send as
// the reporter. The credential is requested immediately before each send
// and is never cached.
type Delegator interface {
	Delegate(ctx context.Context, identity domain.Identity) (*oauth2.Token, error)
}

// DelegatorFunc adapts a function to the Delegator interface.
type DelegatorFunc func(ctx context.Context, identity domain.Identity) (*oauth2.Token, error)

// Delegate calls f.
func (f DelegatorFunc) Delegate(ctx context.Context, identity domain.Identity) (*oauth2.Token, error) {
	return f(ctx, identity)
}

// TokenDelegation is a grant the reporter's browser obtained from the
// mailbox provider just before submitting the report.
type TokenDelegation struct {
	token *oauth2.Token
}

// NewTokenDelegation wraps an access token. A zero expiry means the token
// is valid until the provider says otherwise.
func NewTokenDelegation(accessToken string, expiry time.Time) *TokenDelegation {
	return &TokenDelegation{
		token: &oauth2.Token{
			AccessToken: strings.TrimSpace(accessToken),
			TokenType:   "Bearer",
			Expiry:      expiry,
		},
	}
}

// Delegate returns the wrapped token, or ErrDelegationDenied when it is
// empty or already expired.
func (d *TokenDelegation) Delegate(ctx context.Context, identity domain.Identity) (*oauth2.Token, error) {
	if d == nil || d.token == nil || !d.token.Valid() {
		return nil, fmt.Errorf("%w: no valid credential for %s", ErrDelegationDenied, identity.Email)
	}
	return d.token, nil
}

// delegate runs d under timeout. A Delegator that does not answer in time is
// abandoned and the grant counts as denied.
func delegate(ctx context.Context, d Delegator, identity domain.Identity, timeout time.Duration) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		token *oauth2.Token
		err   error
	}
	done := make(chan result, 1)
	go func() {
		tok, err := d.Delegate(ctx, identity)
		done <- result{tok, err}
	}()

	select {
	case r := <-done:
		if errors.Is(r.err, ErrDelegationDenied) {
			return nil, r.err
		}
		if r.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDelegationDenied, r.err)
		}
		if !r.token.Valid() {
			return nil, fmt.Errorf("%w: credential is empty or expired", ErrDelegationDenied)
		}
		return r.token, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: grant timed out after %s", ErrDelegationDenied, timeout)
	}
}

// Compile-time interface checks
var (
	_ Delegator = (*TokenDelegation)(nil)
	_ Delegator = DelegatorFunc(nil)
)
