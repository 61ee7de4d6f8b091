package middleware

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayvista/internal/app/commands"
	"stayvista/internal/app/queries"
	"stayvista/internal/app/services/reservation"
	"stayvista/internal/domain/identity"
)

type hostOnly struct{ Title string }

func (hostOnly) Key() string                    { return "test.host_only" }
func (hostOnly) RequiredRoles() []identity.Role { return []identity.Role{identity.RoleHost} }
func (c hostOnly) Validate() error {
	if c.Title == "" {
		return errors.New("title required")
	}
	return nil
}

type openQuery struct{}

func (openQuery) Key() string { return "test.open" }

func newCommandBus(t *testing.T, calls *int) commands.Bus {
	t.Helper()
	bus := commands.NewInMemoryBus()
	commands.MustRegister[hostOnly, string](bus, "test.host_only", commands.HandlerFunc[hostOnly, string](
		func(ctx context.Context, cmd hostOnly) (string, error) {
			*calls++
			return cmd.Title, nil
		}))
	return ChainCommands(bus, GuardCommands(Authorize(nil), Validate()))
}

func TestGuardsRejectBeforeHandler(t *testing.T) {
	t.Parallel()
	calls := 0
	bus := newCommandBus(t, &calls)
	future := time.Now().Add(time.Hour)

	_, err := commands.Dispatch[hostOnly, string](context.Background(), bus, hostOnly{Title: "x"})
	assert.Equal(t, reservation.KindUnauthorized, reservation.KindOf(err))

	guest := identity.WithClaim(context.Background(), identity.Claim{Subject: "g1", Role: identity.RoleGuest, ExpiresAt: future})
	_, err = commands.Dispatch[hostOnly, string](guest, bus, hostOnly{Title: "x"})
	assert.Equal(t, reservation.KindForbidden, reservation.KindOf(err))

	expired := identity.WithClaim(context.Background(), identity.Claim{Subject: "h1", Role: identity.RoleHost, ExpiresAt: time.Now().Add(-time.Minute)})
	_, err = commands.Dispatch[hostOnly, string](expired, bus, hostOnly{Title: "x"})
	assert.Equal(t, reservation.KindUnauthorized, reservation.KindOf(err))

	host := identity.WithClaim(context.Background(), identity.Claim{Subject: "h1", Role: identity.RoleHost, ExpiresAt: future})
	_, err = commands.Dispatch[hostOnly, string](host, bus, hostOnly{})
	assert.Equal(t, reservation.KindInvalidRequest, reservation.KindOf(err))
	assert.Zero(t, calls)

	out, err := commands.Dispatch[hostOnly, string](host, bus, hostOnly{Title: "ok"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	admin := identity.WithClaim(context.Background(), identity.Claim{Subject: "a1", Role: identity.RoleAdmin})
	_, err = commands.Dispatch[hostOnly, string](admin, bus, hostOnly{Title: "ok"})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestQueryLoggingAndOpenQueries(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	base := queries.NewInMemoryBus()
	queries.MustRegister[openQuery, int](base, "test.open", queries.HandlerFunc[openQuery, int](
		func(context.Context, openQuery) (int, error) { return 7, nil }))
	bus := ChainQueries(base, LogQueries(logger), GuardQueries(Authorize(nil)))

	got, err := queries.Ask[openQuery, int](context.Background(), bus, openQuery{})
	require.NoError(t, err)
	assert.Equal(t, 7, got)
	assert.Contains(t, buf.String(), "key=test.open")
}
