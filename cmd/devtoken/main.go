// Command devtoken prints a signed bearer token for local testing.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"stayvista/internal/domain/identity"
	"stayvista/internal/infra/obs"
	"stayvista/internal/infra/security"
)

func main() {
	logger := obs.NewLogger("dev")

	subject := flag.String("sub", "", "subject (user id)")
	role := flag.String("role", "guest", "guest, host or admin")
	email := flag.String("email", "", "email claim")
	name := flag.String("name", "", "display name claim")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	issuer := flag.String("issuer", envOr("AUTH_ISSUER", "stayvista"), "issuer claim")
	flag.Parse()

	secret := os.Getenv("AUTH_SECRET")
	if secret == "" {
		logger.Error("AUTH_SECRET must be set")
		os.Exit(2)
	}
	if *subject == "" {
		logger.Error("-sub is required")
		os.Exit(2)
	}
	parsed, err := identity.ParseRole(*role)
	if err != nil {
		logger.Error("invalid role", "role", *role, "error", err)
		os.Exit(2)
	}

	token, err := security.JWTIssuer{Secret: []byte(secret), Issuer: *issuer, TTL: *ttl}.Issue(identity.Claim{
		Subject: *subject,
		Email:   *email,
		Name:    *name,
		Role:    parsed,
	})
	if err != nil {
		logger.Error("cannot issue token", "error", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
