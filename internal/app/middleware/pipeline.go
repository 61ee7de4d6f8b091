package middleware

import (
	"context"

	"stayvista/internal/app/commands"
	"stayvista/internal/app/queries"
)

// CommandMiddleware decorates a command bus.
type CommandMiddleware func(next commands.Bus) commands.Bus

// QueryMiddleware decorates a query bus.
type QueryMiddleware func(next queries.Bus) queries.Bus

// ChainCommands wraps base so that mws[0] runs first.
func ChainCommands(base commands.Bus, mws ...CommandMiddleware) commands.Bus {
	wrapped := base
	for i := len(mws) - 1; i >= 0; i-- {
		wrapped = mws[i](wrapped)
	}
	return wrapped
}

func ChainQueries(base queries.Bus, mws ...QueryMiddleware) queries.Bus {
	wrapped := base
	for i := len(mws) - 1; i >= 0; i-- {
		wrapped = mws[i](wrapped)
	}
	return wrapped
}

type commandFunc func(ctx context.Context, cmd commands.Command) (any, error)

func (f commandFunc) Dispatch(ctx context.Context, cmd commands.Command) (any, error) {
	return f(ctx, cmd)
}

type queryFunc func(ctx context.Context, q queries.Query) (any, error)

func (f queryFunc) Ask(ctx context.Context, q queries.Query) (any, error) {
	return f(ctx, q)
}

// Guard is a check run before a message reaches its handler. It sees both
// commands and queries.
type Guard func(ctx context.Context, message any) error

// GuardCommands runs each guard before dispatch and stops at the first error.
func GuardCommands(guards ...Guard) CommandMiddleware {
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			for _, g := range guards {
				if err := g(ctx, cmd); err != nil {
					return nil, err
				}
			}
			return next.Dispatch(ctx, cmd)
		})
	}
}

func GuardQueries(guards ...Guard) QueryMiddleware {
	return func(next queries.Bus) queries.Bus {
		return queryFunc(func(ctx context.Context, q queries.Query) (any, error) {
			for _, g := range guards {
				if err := g(ctx, q); err != nil {
					return nil, err
				}
			}
			return next.Ask(ctx, q)
		})
	}
}
