package auth

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnauthorized indicates authentication failed or no valid credentials were supplied.
var ErrUnauthorized = errors.New("unauthorized")

var (
	// ErrMissingToken indicates no credential was presented.
	ErrMissingToken = fmt.Errorf("%w: missing token", ErrUnauthorized)
	// ErrInvalidSignature indicates the token signature did not verify.
	ErrInvalidSignature = fmt.Errorf("%w: invalid signature", ErrUnauthorized)
	// ErrTokenExpired indicates the token is past its expiry.
	ErrTokenExpired = fmt.Errorf("%w: token expired", ErrUnauthorized)
	// ErrInvalidToken indicates a malformed token or failed claim policy.
	ErrInvalidToken = fmt.Errorf("%w: invalid token", ErrUnauthorized)
)

// Principal is the authenticated identity bound to a connection.
type Principal struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// Name returns the display name, falling back to the username.
func (p Principal) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Username
}

// Authenticator validates bearer tokens and returns the associated principal.
// Failures wrap ErrUnauthorized.
type Authenticator interface {
	CheckAuthentication(ctx context.Context, tok string) (Principal, error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, tok string) (Principal, error)

func (f AuthenticatorFunc) CheckAuthentication(ctx context.Context, tok string) (Principal, error) {
	return f(ctx, tok)
}

// Reason returns a short machine readable label for an authentication error,
// suitable for a Bearer challenge's error_description.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingToken):
		return "missing_token"
	case errors.Is(err, ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	default:
		return "invalid_token"
	}
}
