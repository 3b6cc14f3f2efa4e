package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
)

// NewTokenCmd creates the "token" subcommand, which mints HS256 tokens for
// local testing against a server configured with the same secret.
func NewTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint a development access token",
		Args:  cobra.ExactArgs(1),
		RunE:  runToken,
	}
	cmd.Flags().String("secret", "", "HMAC secret (default: $TOOLWIRE_JWT_SECRET)")
	cmd.Flags().String("username", "", "username claim (default: the user id)")
	cmd.Flags().String("name", "", "display name claim")
	cmd.Flags().String("email", "", "email claim")
	cmd.Flags().String("issuer", "", "iss claim (default: $TOOLWIRE_JWT_ISSUER)")
	cmd.Flags().StringSlice("audience", nil, "aud claim (repeatable)")
	cmd.Flags().Duration("ttl", time.Hour, "token lifetime")
	return cmd
}

func runToken(cmd *cobra.Command, args []string) error {
	secret, _ := cmd.Flags().GetString("secret")
	username, _ := cmd.Flags().GetString("username")
	name, _ := cmd.Flags().GetString("name")
	email, _ := cmd.Flags().GetString("email")
	issuer, _ := cmd.Flags().GetString("issuer")
	audience, _ := cmd.Flags().GetStringSlice("audience")
	ttl, _ := cmd.Flags().GetDuration("ttl")

	if secret == "" {
		secret = os.Getenv("TOOLWIRE_JWT_SECRET")
	}
	if secret == "" {
		return exitError(exitConfig, "no secret: pass --secret or set TOOLWIRE_JWT_SECRET")
	}
	if issuer == "" {
		issuer = os.Getenv("TOOLWIRE_JWT_ISSUER")
	}
	sub := strings.TrimSpace(args[0])
	if sub == "" {
		return exitError(exitConfig, "user id must not be empty")
	}
	if ttl <= 0 {
		return exitError(exitConfig, "ttl must be positive")
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub": sub,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if username != "" {
		claims["username"] = username
	}
	if name != "" {
		claims["name"] = name
	}
	if email != "" {
		claims["email"] = email
	}
	if issuer != "" {
		claims["iss"] = issuer
	}
	if len(audience) > 0 {
		claims["aud"] = audience
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return exitError(exitRuntime, "signing token: %v", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), signed)
	return nil
}
