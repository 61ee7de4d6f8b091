package rooms

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"stayvista/internal/app/commands"
	"stayvista/internal/app/dto"
	"stayvista/internal/app/queries"
	"stayvista/internal/app/services/reservation"
	"stayvista/internal/domain/identity"
	domainrooms "stayvista/internal/domain/rooms"
	"stayvista/internal/domain/shared/money"
)

const (
	ListRoomsKey     = "rooms.list"
	GetRoomKey       = "rooms.get"
	ListHostRoomsKey = "rooms.host.list"
	CreateRoomKey    = "rooms.create"
)

type ListRoomsQuery struct {
	HostID    string
	Available *bool
	Category  string
	Limit     int
	Offset    int
}

func (ListRoomsQuery) Key() string { return ListRoomsKey }

type GetRoomQuery struct {
	ID string
}

func (GetRoomQuery) Key() string { return GetRoomKey }

// ListHostRoomsQuery lists the rooms of the calling host.
type ListHostRoomsQuery struct {
	Limit  int
	Offset int
}

func (ListHostRoomsQuery) Key() string { return ListHostRoomsKey }

func (ListHostRoomsQuery) RequiredRoles() []identity.Role {
	return []identity.Role{identity.RoleHost}
}

// CreateRoomCommand adds an unbooked room owned by the caller. Price is in
// major units.
type CreateRoomCommand struct {
	ID         string
	Title      string
	Location   string
	Category   string
	Price      float64
	Currency   string
	Attributes map[string]any
}

func (CreateRoomCommand) Key() string { return CreateRoomKey }

func (CreateRoomCommand) RequiredRoles() []identity.Role {
	return []identity.Role{identity.RoleHost}
}

func (c CreateRoomCommand) Validate() error {
	if strings.TrimSpace(c.Title) == "" {
		return domainrooms.ErrTitleRequired
	}
	return nil
}

type Handlers struct {
	Store           domainrooms.Store
	Logger          *slog.Logger
	DefaultCurrency string
	Now             func() time.Time
	NewID           func() string
}

func (h *Handlers) List(ctx context.Context, q ListRoomsQuery) (dto.RoomCollection, error) {
	filter := domainrooms.Filter{
		HostID:    domainrooms.HostID(strings.TrimSpace(q.HostID)),
		Available: q.Available,
		Category:  strings.TrimSpace(q.Category),
		Limit:     q.Limit,
		Offset:    q.Offset,
	}.Normalized()
	list, err := h.Store.List(ctx, filter)
	if err != nil {
		return dto.RoomCollection{}, storeError("ListRooms", err)
	}
	return dto.MapRooms(list, filter), nil
}

func (h *Handlers) Get(ctx context.Context, q GetRoomQuery) (dto.RoomView, error) {
	room, err := h.Store.Get(ctx, domainrooms.RoomID(strings.TrimSpace(q.ID)))
	if err != nil {
		return dto.RoomView{}, storeError("GetRoom", err)
	}
	return dto.MapRoom(room), nil
}

func (h *Handlers) ListForHost(ctx context.Context, q ListHostRoomsQuery) (dto.RoomCollection, error) {
	claim, _ := identity.FromContext(ctx)
	return h.List(ctx, ListRoomsQuery{HostID: claim.Subject, Limit: q.Limit, Offset: q.Offset})
}

func (h *Handlers) Create(ctx context.Context, cmd CreateRoomCommand) (dto.RoomView, error) {
	const op = "CreateRoom"
	claim, _ := identity.FromContext(ctx)
	currency := strings.TrimSpace(cmd.Currency)
	if currency == "" {
		currency = h.DefaultCurrency
	}
	price, err := money.FromMajor(cmd.Price, currency)
	if err != nil {
		return dto.RoomView{}, &reservation.Error{Kind: reservation.KindInvalidRequest, Op: op, Err: err}
	}
	id := strings.TrimSpace(cmd.ID)
	if id == "" {
		id = h.newID()
	}
	if _, err := h.Store.Get(ctx, domainrooms.RoomID(id)); err == nil {
		return dto.RoomView{}, &reservation.Error{Kind: reservation.KindInvalidRequest, Op: op, Err: domainrooms.ErrAlreadyExists}
	} else if !errors.Is(err, domainrooms.ErrNotFound) {
		return dto.RoomView{}, storeError(op, err)
	}
	room, err := domainrooms.NewRoom(domainrooms.CreateParams{
		ID:         domainrooms.RoomID(id),
		Host:       domainrooms.Host{ID: domainrooms.HostID(claim.Subject), Email: claim.Email, Name: claim.Name},
		Title:      cmd.Title,
		Location:   cmd.Location,
		Category:   cmd.Category,
		Price:      price,
		Attributes: cmd.Attributes,
		Now:        h.now(),
	})
	if err != nil {
		return dto.RoomView{}, &reservation.Error{Kind: reservation.KindInvalidRequest, Op: op, Err: err}
	}
	if err := h.Store.Save(ctx, room); err != nil {
		return dto.RoomView{}, storeError(op, err)
	}
	if h.Logger != nil {
		h.Logger.InfoContext(ctx, "room created", slog.String("room_id", id), slog.String("host_id", claim.Subject))
	}
	return dto.MapRoom(room), nil
}

func (h *Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *Handlers) newID() string {
	if h.NewID != nil {
		return h.NewID()
	}
	return uuid.NewString()
}

func storeError(op string, err error) error {
	if errors.Is(err, domainrooms.ErrNotFound) {
		return &reservation.Error{Kind: reservation.KindNotFound, Op: op, Err: err}
	}
	return &reservation.Error{Kind: reservation.KindUpstreamUnavailable, Op: op, Err: err}
}

// Register binds the room queries and commands.
func Register(cmds *commands.InMemoryBus, qs *queries.InMemoryBus, h *Handlers) {
	queries.MustRegister[ListRoomsQuery, dto.RoomCollection](qs, ListRoomsKey, queries.HandlerFunc[ListRoomsQuery, dto.RoomCollection](h.List))
	queries.MustRegister[GetRoomQuery, dto.RoomView](qs, GetRoomKey, queries.HandlerFunc[GetRoomQuery, dto.RoomView](h.Get))
	queries.MustRegister[ListHostRoomsQuery, dto.RoomCollection](qs, ListHostRoomsKey, queries.HandlerFunc[ListHostRoomsQuery, dto.RoomCollection](h.ListForHost))
	commands.MustRegister[CreateRoomCommand, dto.RoomView](cmds, CreateRoomKey, commands.HandlerFunc[CreateRoomCommand, dto.RoomView](h.Create))
}
