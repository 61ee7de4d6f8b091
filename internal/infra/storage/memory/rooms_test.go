package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayvista/internal/domain/rooms"
	"stayvista/internal/domain/shared/money"
)

func seedRoom(t *testing.T, store *RoomStore, id, hostID string, created time.Time) {
	t.Helper()
	room, err := rooms.NewRoom(rooms.CreateParams{
		ID:    rooms.RoomID(id),
		Host:  rooms.Host{ID: rooms.HostID(hostID)},
		Title: "Room " + id,
		Price: money.Must(9900, "USD"),
		Now:   created,
	})
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), room))
}

func TestRoomStoreClaimIsExclusive(t *testing.T) {
	t.Parallel()
	store := NewRoomStore()
	seedRoom(t, store, "R1", "h1", time.Now())

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.Claim(context.Background(), "R1")
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())

	require.NoError(t, store.Release(context.Background(), "R1"))
	ok, err := store.Claim(context.Background(), "R1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRoomStoreUnknownRoom(t *testing.T) {
	t.Parallel()
	store := NewRoomStore()
	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, rooms.ErrNotFound)
	_, err = store.Claim(context.Background(), "nope")
	assert.ErrorIs(t, err, rooms.ErrNotFound)
	assert.ErrorIs(t, store.Release(context.Background(), "nope"), rooms.ErrNotFound)
}

func TestRoomStoreSaveKeepsBookedFlag(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewRoomStore()
	seedRoom(t, store, "R1", "h1", time.Now())
	_, err := store.Claim(ctx, "R1")
	require.NoError(t, err)

	room, err := store.Get(ctx, "R1")
	require.NoError(t, err)
	room.Booked = false
	room.Title = "Renamed"
	require.NoError(t, store.Save(ctx, room))

	stored, err := store.Get(ctx, "R1")
	require.NoError(t, err)
	assert.True(t, stored.Booked)
	assert.Equal(t, "Renamed", stored.Title)
}

func TestRoomStoreListFilters(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewRoomStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seedRoom(t, store, "R1", "h1", base)
	seedRoom(t, store, "R2", "h2", base.Add(time.Hour))
	seedRoom(t, store, "R3", "h1", base.Add(2*time.Hour))
	_, err := store.Claim(ctx, "R3")
	require.NoError(t, err)

	all, err := store.List(ctx, rooms.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, rooms.RoomID("R1"), all[0].ID)

	available := true
	free, err := store.List(ctx, rooms.Filter{HostID: "h1", Available: &available})
	require.NoError(t, err)
	require.Len(t, free, 1)
	assert.Equal(t, rooms.RoomID("R1"), free[0].ID)

	page, err := store.List(ctx, rooms.Filter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, rooms.RoomID("R2"), page[0].ID)

	empty, err := store.List(ctx, rooms.Filter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)
}
