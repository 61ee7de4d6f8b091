package middleware

import (
	"context"

	"stayvista/internal/app/services/reservation"
)

// Validatable messages check their own shape before dispatch.
type Validatable interface {
	Validate() error
}

// Validate turns shape errors into InvalidRequest failures.
func Validate() Guard {
	return func(ctx context.Context, message any) error {
		v, ok := message.(Validatable)
		if !ok {
			return nil
		}
		if err := v.Validate(); err != nil {
			return &reservation.Error{Kind: reservation.KindInvalidRequest, Op: "validate", Err: err}
		}
		return nil
	}
}
