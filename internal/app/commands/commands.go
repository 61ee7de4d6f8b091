package commands

import (
	"context"
	"errors"
)

// Command is a write intent routed by key.
type Command interface {
	Key() string
}

type Handler[C Command, R any] interface {
	Handle(ctx context.Context, cmd C) (R, error)
}

// HandlerFunc lets a plain function serve as a Handler.
type HandlerFunc[C Command, R any] func(ctx context.Context, cmd C) (R, error)

func (f HandlerFunc[C, R]) Handle(ctx context.Context, cmd C) (R, error) {
	return f(ctx, cmd)
}

type Bus interface {
	Dispatch(ctx context.Context, cmd Command) (any, error)
}

var (
	ErrHandlerNotFound  = errors.New("commands: handler not found")
	ErrHandlerDuplicate = errors.New("commands: handler already registered")
	ErrInvalidCommand   = errors.New("commands: invalid command for handler")
	ErrResultType       = errors.New("commands: result type mismatch")
	ErrNilBus           = errors.New("commands: nil bus")
)

// Dispatch sends cmd through bus and asserts the result type.
func Dispatch[C Command, R any](ctx context.Context, bus Bus, cmd C) (R, error) {
	var zero R
	if bus == nil {
		return zero, ErrNilBus
	}
	res, err := bus.Dispatch(ctx, cmd)
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	out, ok := res.(R)
	if !ok {
		return zero, ErrResultType
	}
	return out, nil
}
