package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayvista/internal/infra/storage/memory"
)

func TestLoadRoomFixtures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rooms.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"id":"r1","host":{"id":"h1","name":"Ana"},"title":"Loft","price":99.5},
		{"id":"r2","host":{"id":"h1"},"title":"","price":10},
		{"id":"r3","host":{"id":"h2"},"title":"Barn","price":40,"currency":"eur"}
	]`), 0o600))

	store := memory.NewRoomStore()
	ctx := context.Background()
	require.NoError(t, loadRoomFixtures(ctx, store, path, "USD", slog.New(slog.NewTextHandler(io.Discard, nil))))

	r1, err := store.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(9950), r1.Price.Amount)
	assert.Equal(t, "USD", r1.Price.Currency)

	_, err = store.Get(ctx, "r2")
	assert.Error(t, err)

	claimed, err := store.Claim(ctx, "r1")
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, loadRoomFixtures(ctx, store, path, "USD", slog.New(slog.NewTextHandler(io.Discard, nil))))
	r1, err = store.Get(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, r1.Booked)
}

func TestLoadRoomFixturesMissingFile(t *testing.T) {
	err := loadRoomFixtures(context.Background(), memory.NewRoomStore(), filepath.Join(t.TempDir(), "none.json"), "USD", slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.NoError(t, err)
}
