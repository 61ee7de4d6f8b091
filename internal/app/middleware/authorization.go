package middleware

import (
	"context"
	"errors"
	"time"

	"stayvista/internal/app/services/reservation"
	"stayvista/internal/domain/identity"
)

var ErrRoleRequired = errors.New("middleware: caller role not permitted")

// Protected is implemented by messages that need a verified caller. An empty
// role list admits any authenticated caller.
type Protected interface {
	RequiredRoles() []identity.Role
}

// Authorize rejects protected messages when the context carries no valid
// claim or the claim lacks every required role. Admin passes every role check.
func Authorize(now func() time.Time) Guard {
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context, message any) error {
		p, ok := message.(Protected)
		if !ok {
			return nil
		}
		claim, ok := identity.FromContext(ctx)
		if !ok {
			return &reservation.Error{Kind: reservation.KindUnauthorized, Op: "authorize", Err: identity.ErrMissing}
		}
		if err := claim.Validate(now()); err != nil {
			return &reservation.Error{Kind: reservation.KindUnauthorized, Op: "authorize", Err: err}
		}
		roles := p.RequiredRoles()
		if len(roles) > 0 && !claim.HasAnyRole(roles...) {
			return &reservation.Error{Kind: reservation.KindForbidden, Op: "authorize", Err: ErrRoleRequired}
		}
		return nil
	}
}
