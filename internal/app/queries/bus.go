package queries

import (
	"context"
	"fmt"
	"sync"
)

type rawHandler func(ctx context.Context, q Query) (any, error)

type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string]rawHandler
}

func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{handlers: make(map[string]rawHandler)}
}

func (b *InMemoryBus) Ask(ctx context.Context, q Query) (any, error) {
	if q == nil {
		return nil, ErrInvalidQuery
	}
	b.mu.RLock()
	h, ok := b.handlers[q.Key()]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHandlerNotFound, q.Key())
	}
	return h(ctx, q)
}

func Register[Q Query, R any](bus *InMemoryBus, key string, handler Handler[Q, R]) error {
	if bus == nil {
		return ErrNilBus
	}
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidQuery)
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	if _, ok := bus.handlers[key]; ok {
		return fmt.Errorf("%w: %s", ErrHandlerDuplicate, key)
	}
	bus.handlers[key] = func(ctx context.Context, raw Query) (any, error) {
		q, ok := raw.(Q)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrInvalidQuery, key)
		}
		return handler.Handle(ctx, q)
	}
	return nil
}

func MustRegister[Q Query, R any](bus *InMemoryBus, key string, handler Handler[Q, R]) {
	if err := Register(bus, key, handler); err != nil {
		panic(err)
	}
}
