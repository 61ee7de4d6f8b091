package commands

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type rawHandler func(ctx context.Context, cmd Command) (any, error)

// InMemoryBus maps command keys to handlers. Registration happens at startup;
// Dispatch is safe for concurrent use.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string]rawHandler
}

func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{handlers: make(map[string]rawHandler)}
}

func (b *InMemoryBus) register(key string, h rawHandler) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidCommand)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.handlers[key]; ok {
		return fmt.Errorf("%w: %s", ErrHandlerDuplicate, key)
	}
	b.handlers[key] = h
	return nil
}

func (b *InMemoryBus) Dispatch(ctx context.Context, cmd Command) (any, error) {
	if cmd == nil {
		return nil, ErrInvalidCommand
	}
	b.mu.RLock()
	h, ok := b.handlers[cmd.Key()]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHandlerNotFound, cmd.Key())
	}
	return h(ctx, cmd)
}

// Keys lists registered command keys in sorted order.
func (b *InMemoryBus) Keys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.handlers))
	for k := range b.handlers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Register binds a typed handler to key.
func Register[C Command, R any](bus *InMemoryBus, key string, handler Handler[C, R]) error {
	if bus == nil {
		return ErrNilBus
	}
	return bus.register(key, func(ctx context.Context, raw Command) (any, error) {
		cmd, ok := raw.(C)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrInvalidCommand, key)
		}
		return handler.Handle(ctx, cmd)
	})
}

// MustRegister is Register for startup wiring, where a bad key is a programming error.
func MustRegister[C Command, R any](bus *InMemoryBus, key string, handler Handler[C, R]) {
	if err := Register(bus, key, handler); err != nil {
		panic(err)
	}
}
