package auth

import (
	"fmt"
	"strings"
)

// WWWAuthenticateHeader is the response header carrying the challenge.
const WWWAuthenticateHeader = "WWW-Authenticate"

// Challenge builds a Bearer challenge value for a refused handshake.
//
//	Bearer realm="<realm>", error="invalid_token", error_description="token_expired"
//
// A missing token produces a challenge without error parameters, as RFC 6750
// recommends when the client supplied no credentials.
func Challenge(realm string, err error) string {
	esc := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace
	pieces := make([]string, 0, 3)
	if realm != "" {
		pieces = append(pieces, fmt.Sprintf(`realm="%s"`, esc(realm)))
	}
	if err != nil && Reason(err) != "missing_token" {
		pieces = append(pieces, `error="invalid_token"`)
		pieces = append(pieces, fmt.Sprintf(`error_description="%s"`, esc(Reason(err))))
	}
	if len(pieces) == 0 {
		return "Bearer"
	}
	return "Bearer " + strings.Join(pieces, ", ")
}
