package policies

import (
	"context"
	"errors"
)

var ErrKeyBusy = errors.New("policies: key is being processed")

// KeyGuard serializes work per key across processes. Acquire returns
// ErrKeyBusy when another caller holds the key; the returned release func
// drops the hold.
type KeyGuard interface {
	Acquire(ctx context.Context, key string) (release func(context.Context) error, err error)
}
