package memory

import (
	"context"
	"sync"
	"time"

	"stayvista/internal/app/policies"
)

const defaultGuardTTL = 2 * time.Minute

// KeyGuard is a process-local policies.KeyGuard. Holds expire after TTL so a
// crashed holder cannot block a key forever.
type KeyGuard struct {
	mu    sync.Mutex
	held  map[string]hold
	seq   uint64
	TTL   time.Duration
	Clock func() time.Time
}

type hold struct {
	token   uint64
	expires time.Time
}

func NewKeyGuard(ttl time.Duration) *KeyGuard {
	return &KeyGuard{held: make(map[string]hold), TTL: ttl}
}

func (g *KeyGuard) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held == nil {
		g.held = make(map[string]hold)
	}
	now := g.now()
	if h, ok := g.held[key]; ok && now.Before(h.expires) {
		return nil, policies.ErrKeyBusy
	}
	g.seq++
	token := g.seq
	g.held[key] = hold{token: token, expires: now.Add(g.ttl())}
	return func(context.Context) error {
		g.mu.Lock()
		defer g.mu.Unlock()
		if h, ok := g.held[key]; ok && h.token == token {
			delete(g.held, key)
		}
		return nil
	}, nil
}

func (g *KeyGuard) ttl() time.Duration {
	if g.TTL <= 0 {
		return defaultGuardTTL
	}
	return g.TTL
}

func (g *KeyGuard) now() time.Time {
	if g.Clock != nil {
		return g.Clock()
	}
	return time.Now()
}

var _ policies.KeyGuard = (*KeyGuard)(nil)
