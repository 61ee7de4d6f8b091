package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"stayvista/internal/app/policies"
)

const (
	guardPrefix     = "stayvista:inflight:"
	defaultGuardTTL = 2 * time.Minute
)

// releaseScript deletes the hold only if it still carries the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// KeyGuard holds in-flight keys in redis with SET NX so every instance of the
// service sees the same holds.
type KeyGuard struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewKeyGuard(client redis.UniversalClient, ttl time.Duration) *KeyGuard {
	if ttl <= 0 {
		ttl = defaultGuardTTL
	}
	return &KeyGuard{client: client, ttl: ttl}
}

func (g *KeyGuard) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	k := guardPrefix + key
	token := uuid.NewString()
	_, err := g.client.SetArgs(ctx, k, token, redis.SetArgs{Mode: "NX", TTL: g.ttl}).Result()
	if err == redis.Nil {
		return nil, policies.ErrKeyBusy
	}
	if err != nil {
		return nil, fmt.Errorf("redis set: %w", err)
	}
	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, g.client, []string{k}, token).Err(); err != nil && err != redis.Nil {
			return fmt.Errorf("redis release: %w", err)
		}
		return nil
	}, nil
}

var _ policies.KeyGuard = (*KeyGuard)(nil)
