package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ggoodman/toolwire/internal/jwtauth"
)

// JWTOption configures the JWT authenticators.
type JWTOption func(*jwtauth.Config)

// WithIssuer requires the "iss" claim to equal issuer.
func WithIssuer(issuer string) JWTOption {
	return func(c *jwtauth.Config) { c.Issuer = issuer }
}

// WithAudience requires the "aud" claim to contain at least one of auds.
func WithAudience(auds ...string) JWTOption {
	return func(c *jwtauth.Config) { c.ExpectedAudiences = append([]string(nil), auds...) }
}

// WithAllowedAlgs restricts allowed JWS algorithms. "none" is never allowed.
func WithAllowedAlgs(algs ...string) JWTOption {
	return func(c *jwtauth.Config) { c.AllowedAlgs = append([]string(nil), algs...) }
}

// WithLeeway sets clock skew tolerance for time-based claims.
func WithLeeway(d time.Duration) JWTOption {
	return func(c *jwtauth.Config) { c.Leeway = d }
}

// NewHMAC returns an Authenticator for HS256 tokens signed with secret.
func NewHMAC(secret []byte, opts ...JWTOption) (Authenticator, error) {
	cfg := jwtauth.DefaultConfig()
	cfg.AllowedAlgs = nil
	for _, opt := range opts {
		opt(cfg)
	}
	v, err := jwtauth.NewHMAC(cfg, secret)
	if err != nil {
		return nil, err
	}
	return &adapter{v: v}, nil
}

// NewFromDiscovery returns an Authenticator that verifies tokens issued by
// issuer, locating its keys through OpenID Connect discovery.
func NewFromDiscovery(ctx context.Context, issuer string, opts ...JWTOption) (Authenticator, error) {
	cfg := jwtauth.DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	cfg.Issuer = issuer
	v, err := jwtauth.NewFromDiscovery(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &adapter{v: v}, nil
}

// NewStaticJWKS returns an Authenticator that verifies tokens against the
// keys published at jwksURL without performing discovery.
func NewStaticJWKS(ctx context.Context, jwksURL string, opts ...JWTOption) (Authenticator, error) {
	cfg := jwtauth.DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	v, err := jwtauth.NewStatic(ctx, cfg, jwksURL)
	if err != nil {
		return nil, err
	}
	return &adapter{v: v}, nil
}

// adapter wraps the internal verifier to satisfy the public interface.
type adapter struct {
	v jwtauth.Verifier
}

func (ad *adapter) CheckAuthentication(ctx context.Context, tok string) (Principal, error) {
	c, err := ad.v.Verify(ctx, tok)
	if err != nil {
		// Map internal sentinel errors to public errors used by the transport.
		switch {
		case errors.Is(err, jwtauth.ErrMissingToken):
			return Principal{}, ErrMissingToken
		case errors.Is(err, jwtauth.ErrExpired):
			return Principal{}, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		case errors.Is(err, jwtauth.ErrInvalidSignature):
			return Principal{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		default:
			return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	}
	username := c.Username
	if username == "" {
		username = c.Subject
	}
	return Principal{
		ID:          c.Subject,
		Username:    username,
		Email:       c.Email,
		DisplayName: c.DisplayName,
	}, nil
}
