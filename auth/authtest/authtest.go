// Package authtest provides Authenticator implementations for tests and
// local development.
package authtest

import (
	"context"

	"github.com/ggoodman/toolwire/auth"
)

// Static maps literal tokens to principals. Unknown tokens are rejected with
// auth.ErrInvalidToken and an empty token with auth.ErrMissingToken.
type Static struct {
	Tokens map[string]auth.Principal
}

// NewStatic returns a Static authenticator seeded with the given principals,
// each reachable with a token equal to its ID.
func NewStatic(principals ...auth.Principal) *Static {
	s := &Static{Tokens: make(map[string]auth.Principal, len(principals))}
	for _, p := range principals {
		s.Tokens[p.ID] = p
	}
	return s
}

// CheckAuthentication implements auth.Authenticator.
func (s *Static) CheckAuthentication(_ context.Context, tok string) (auth.Principal, error) {
	if tok == "" {
		return auth.Principal{}, auth.ErrMissingToken
	}
	p, ok := s.Tokens[tok]
	if !ok {
		return auth.Principal{}, auth.ErrInvalidToken
	}
	return p, nil
}

// NoAuth accepts any token, including an empty one, as the configured user.
type NoAuth struct {
	Principal auth.Principal
}

// NewNoAuth creates a NoAuth authenticator. If userID is empty it defaults
// to "test-user".
func NewNoAuth(userID string) *NoAuth {
	if userID == "" {
		userID = "test-user"
	}
	return &NoAuth{Principal: auth.Principal{ID: userID, Username: userID}}
}

// CheckAuthentication always succeeds.
func (n *NoAuth) CheckAuthentication(context.Context, string) (auth.Principal, error) {
	return n.Principal, nil
}
