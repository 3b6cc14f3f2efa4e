package jwtauth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// Config controls validation behavior for bearer tokens presented during the
// connection handshake.
type Config struct {
	// Issuer, when set, must match the "iss" claim. Discovery based
	// verifiers replace it with the issuer advertised by the provider.
	Issuer string
	// ExpectedAudiences, when non-empty, must intersect the "aud" claim.
	ExpectedAudiences []string
	AllowedAlgs       []string
	Leeway            time.Duration
}

// DefaultConfig returns a Config with safe defaults for algorithm and leeway.
func DefaultConfig() *Config {
	return &Config{
		AllowedAlgs: []string{"RS256"},
		Leeway:      60 * time.Second,
	}
}

var (
	// ErrMissingToken indicates no token was presented.
	ErrMissingToken = errors.New("jwtauth: missing token")
	// ErrInvalidSignature indicates the signature did not verify or no
	// usable key could be found for it.
	ErrInvalidSignature = errors.New("jwtauth: invalid signature")
	// ErrExpired indicates the token is past its expiry (after leeway).
	ErrExpired = errors.New("jwtauth: token expired")
	// ErrInvalidToken covers malformed tokens and claim policy failures
	// (issuer, audience, missing subject, not-yet-valid).
	ErrInvalidToken = errors.New("jwtauth: invalid token")
)

// Claims is the subset of token claims a connection principal is built from.
type Claims struct {
	Subject     string
	Username    string
	Email       string
	DisplayName string
	Raw         map[string]any
}

// Verifier validates a compact JWS and returns its claims.
type Verifier interface {
	Verify(ctx context.Context, tok string) (*Claims, error)
}

type verifier struct {
	cfg     *Config
	issuer  string
	keyfunc jwt.Keyfunc
}

var _ Verifier = (*verifier)(nil)

// NewHMAC constructs a verifier for tokens signed with a shared secret.
func NewHMAC(cfg *Config, secret []byte) (*verifier, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if len(secret) == 0 {
		return nil, errors.New("secret is required")
	}
	if len(cfg.AllowedAlgs) == 0 || slices.Equal(cfg.AllowedAlgs, []string{"RS256"}) {
		cfg.AllowedAlgs = []string{"HS256"}
	}
	return &verifier{
		cfg:    cfg,
		issuer: cfg.Issuer,
		keyfunc: func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %s", t.Method.Alg())
			}
			return secret, nil
		},
	}, nil
}

// NewStatic constructs a verifier that validates tokens against a statically
// configured JWKS URI (no discovery). Keys are refreshed in the background
// for the lifetime of ctx.
func NewStatic(ctx context.Context, cfg *Config, jwksURI string) (*verifier, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if jwksURI == "" {
		return nil, errors.New("jwks uri required")
	}
	if len(cfg.AllowedAlgs) == 0 {
		cfg.AllowedAlgs = []string{"RS256"}
	}

	kf, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURI})
	if err != nil {
		return nil, fmt.Errorf("jwks init failed: %w", err)
	}

	return &verifier{cfg: cfg, issuer: cfg.Issuer, keyfunc: algGuard(cfg.AllowedAlgs, kf.Keyfunc)}, nil
}

// NewFromDiscovery performs OIDC discovery to obtain the issuer and jwks_uri
// and constructs a verifier with auto-refreshed keys.
func NewFromDiscovery(ctx context.Context, cfg *Config) (*verifier, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}

	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery failed: %w", err)
	}
	var meta struct {
		Issuer  string `json:"issuer"`
		JwksURI string `json:"jwks_uri"`
	}
	if err := provider.Claims(&meta); err != nil {
		return nil, fmt.Errorf("invalid discovery metadata: %w", err)
	}
	if meta.JwksURI == "" {
		return nil, errors.New("discovery incomplete: missing jwks_uri")
	}

	v, err := NewStatic(ctx, cfg, meta.JwksURI)
	if err != nil {
		return nil, err
	}
	if meta.Issuer != "" {
		v.issuer = meta.Issuer
	}
	return v, nil
}

func algGuard(allowed []string, next jwt.Keyfunc) jwt.Keyfunc {
	return func(t *jwt.Token) (any, error) {
		alg := t.Method.Alg()
		if !slices.Contains(allowed, alg) {
			return nil, fmt.Errorf("disallowed alg: %s", alg)
		}
		return next(t)
	}
}

func (v *verifier) Verify(ctx context.Context, tok string) (*Claims, error) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return nil, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.cfg.AllowedAlgs),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.cfg.Leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	parser := jwt.NewParser(opts...)

	parsed, err := parser.Parse(tok, v.keyfunc)
	if err != nil {
		return nil, classify(err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: invalid claims type", ErrInvalidToken)
	}

	if len(v.cfg.ExpectedAudiences) > 0 && !audIntersects(claims["aud"], v.cfg.ExpectedAudiences) {
		return nil, fmt.Errorf("%w: audience mismatch", ErrInvalidToken)
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrInvalidToken)
	}

	return &Claims{
		Subject:     sub,
		Username:    firstString(claims, "username", "preferred_username"),
		Email:       firstString(claims, "email"),
		DisplayName: firstString(claims, "display_name", "name"),
		Raw:         claims,
	}, nil
}

// classify maps parser failures onto the package sentinels, keeping the
// parser's message for server-side logs.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	default:
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
}

func firstString(claims jwt.MapClaims, keys ...string) string {
	for _, k := range keys {
		if s, ok := claims[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func audIntersects(aud any, wants []string) bool {
	switch v := aud.(type) {
	case string:
		return slices.Contains(wants, v)
	case []any:
		for _, e := range v {
			if s, ok := e.(string); ok && slices.Contains(wants, s) {
				return true
			}
		}
	case []string:
		for _, s := range v {
			if slices.Contains(wants, s) {
				return true
			}
		}
	}
	return false
}
