package auth

import (
	"net/http"
	"strings"
)

const (
	// DefaultQueryParam is the query parameter consulted when no Authorization header is present.
	DefaultQueryParam = "token"
	// DefaultCookieName is the cookie consulted when neither header nor query carries a token.
	DefaultCookieName = "token"
)

// ExtractOptions controls where ExtractToken looks for credentials.
type ExtractOptions struct {
	QueryParam string
	CookieName string
}

// ExtractToken pulls a bearer token out of an upgrade request. It checks the
// Authorization header first, then the query parameter, then the cookie.
//
// An Authorization header that is present but not of the form "Bearer <tok>"
// yields ErrInvalidToken without consulting the other sources. No credential
// at all yields ErrMissingToken.
func ExtractToken(r *http.Request, opts ExtractOptions) (string, error) {
	if opts.QueryParam == "" {
		opts.QueryParam = DefaultQueryParam
	}
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}

	if h := r.Header.Get("Authorization"); h != "" {
		const bearerPrefix = "bearer "
		if len(h) <= len(bearerPrefix) || !strings.EqualFold(h[:len(bearerPrefix)], bearerPrefix) {
			return "", ErrInvalidToken
		}
		tok := strings.TrimSpace(h[len(bearerPrefix):])
		if tok == "" {
			return "", ErrInvalidToken
		}
		return tok, nil
	}

	if tok := r.URL.Query().Get(opts.QueryParam); tok != "" {
		return tok, nil
	}

	if c, err := r.Cookie(opts.CookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}

	return "", ErrMissingToken
}
