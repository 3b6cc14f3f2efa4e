// Package auth authenticates toolwire connections during the WebSocket
// handshake. An Authenticator validates a bearer token and returns the
// Principal that the session manager binds to the connection.
//
// The transport extracts the token with ExtractToken, which looks in the
// Authorization header, then the "token" query parameter, then a cookie.
// Authentication happens before the upgrade completes, so a refused
// handshake leaves no session behind.
//
// # Token verification
//
// NewHMAC verifies shared-secret (HS256) tokens. NewFromDiscovery verifies
// asymmetric tokens using OpenID Connect discovery to locate the issuer's
// JWKS, and NewStaticJWKS does the same against an explicitly configured
// JWKS URL. Keys are refreshed in the background for the lifetime of the
// context passed to the constructor.
//
// Example:
//
//	authn, err := auth.NewFromDiscovery(ctx, "https://issuer.example", auth.WithAudience("toolwire"))
//	if err != nil { log.Fatal(err) }
//
//	p, err := authn.CheckAuthentication(ctx, tok)
//	if errors.Is(err, auth.ErrTokenExpired) { /* ask the client to refresh */ }
//
// # Errors
//
// Every failure wraps ErrUnauthorized. The more specific ErrMissingToken,
// ErrInvalidSignature, ErrTokenExpired and ErrInvalidToken let transports
// report a precise challenge.
package auth
