package queries

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countQuery struct{ N int }

func (countQuery) Key() string { return "test.count" }

func TestInMemoryBusAsk(t *testing.T) {
	t.Parallel()
	bus := NewInMemoryBus()
	double := HandlerFunc[countQuery, int](func(ctx context.Context, q countQuery) (int, error) {
		return q.N * 2, nil
	})
	MustRegister[countQuery, int](bus, "test.count", double)
	assert.ErrorIs(t, Register[countQuery, int](bus, "test.count", double), ErrHandlerDuplicate)

	got, err := Ask[countQuery, int](context.Background(), bus, countQuery{N: 21})
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	_, err = Ask[countQuery, string](context.Background(), bus, countQuery{N: 1})
	assert.ErrorIs(t, err, ErrResultType)
	assert.Panics(t, func() { MustRegister[countQuery, int](bus, "test.count", double) })
}
