package identity

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrSubjectRequired = errors.New("identity: subject is required")
	ErrInvalidRole     = errors.New("identity: invalid role")
	ErrExpired         = errors.New("identity: claim expired")
	ErrMissing         = errors.New("identity: claim missing from context")
)

type Role string

const (
	RoleGuest Role = "guest"
	RoleHost  Role = "host"
	RoleAdmin Role = "admin"
)

// ParseRole normalizes a role string; empty input maps to guest.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case "", RoleGuest:
		return RoleGuest, nil
	case RoleHost:
		return RoleHost, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", ErrInvalidRole
	}
}

// Claim is a verified caller identity produced by the identity gate. The core
// only reads it.
type Claim struct {
	Subject   string
	Email     string
	Name      string
	Role      Role
	ExpiresAt time.Time
}

func (c Claim) Validate(now time.Time) error {
	if strings.TrimSpace(c.Subject) == "" {
		return ErrSubjectRequired
	}
	if _, err := ParseRole(string(c.Role)); err != nil {
		return err
	}
	if !c.ExpiresAt.IsZero() && !c.ExpiresAt.After(now) {
		return ErrExpired
	}
	return nil
}

func (c Claim) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// HasAnyRole reports whether the claim carries one of roles. Admin passes every check.
func (c Claim) HasAnyRole(roles ...Role) bool {
	if c.IsAdmin() {
		return true
	}
	for _, r := range roles {
		if c.Role == r {
			return true
		}
	}
	return false
}

type ctxKey struct{}

func WithClaim(ctx context.Context, claim Claim) context.Context {
	return context.WithValue(ctx, ctxKey{}, claim)
}

func FromContext(ctx context.Context) (Claim, bool) {
	claim, ok := ctx.Value(ctxKey{}).(Claim)
	return claim, ok
}
