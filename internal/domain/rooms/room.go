package rooms

import (
	"context"
	"errors"
	"strings"
	"time"

	"stayvista/internal/domain/shared/money"
)

var (
	ErrNotFound      = errors.New("rooms: not found")
	ErrIDRequired    = errors.New("rooms: id is required")
	ErrHostRequired  = errors.New("rooms: host is required")
	ErrTitleRequired = errors.New("rooms: title is required")
	ErrInvalidPrice  = errors.New("rooms: price must be positive")
	ErrAlreadyExists = errors.New("rooms: id already in use")
)

type RoomID string

type HostID string

// Host is the snapshot of the listing host stored with every room.
type Host struct {
	ID    HostID `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Room is a bookable unit. Booked flips only through Store.Claim and Store.Release.
type Room struct {
	ID         RoomID         `json:"id"`
	Host       Host           `json:"host"`
	Title      string         `json:"title"`
	Location   string         `json:"location"`
	Category   string         `json:"category"`
	Price      money.Money    `json:"price"`
	Booked     bool           `json:"booked"`
	Attributes map[string]any `json:"attributes,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	HostID    HostID
	Available *bool
	Category  string
	Limit     int
	Offset    int
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Normalized clamps paging values.
func (f Filter) Normalized() Filter {
	out := f
	out.HostID = HostID(strings.TrimSpace(string(f.HostID)))
	out.Category = strings.TrimSpace(f.Category)
	if out.Limit <= 0 {
		out.Limit = defaultListLimit
	}
	if out.Limit > maxListLimit {
		out.Limit = maxListLimit
	}
	if out.Offset < 0 {
		out.Offset = 0
	}
	return out
}

// Matches reports whether the room satisfies the non-paging parts of the filter.
func (f Filter) Matches(room *Room) bool {
	if room == nil {
		return false
	}
	if f.HostID != "" && room.Host.ID != f.HostID {
		return false
	}
	if f.Available != nil && room.Booked == *f.Available {
		return false
	}
	if f.Category != "" && !strings.EqualFold(room.Category, f.Category) {
		return false
	}
	return true
}

// Store is the durable room record. Claim is the compare-and-set primitive the
// reservation workflow relies on: it must be linearizable across processes.
type Store interface {
	Get(ctx context.Context, id RoomID) (*Room, error)
	List(ctx context.Context, filter Filter) ([]*Room, error)
	Save(ctx context.Context, room *Room) error
	// Claim sets booked=true iff it is currently false and reports whether it did.
	Claim(ctx context.Context, id RoomID) (bool, error)
	// Release sets booked=false unconditionally.
	Release(ctx context.Context, id RoomID) error
}

type CreateParams struct {
	ID         RoomID
	Host       Host
	Title      string
	Location   string
	Category   string
	Price      money.Money
	Attributes map[string]any
	Now        time.Time
}

func NewRoom(params CreateParams) (*Room, error) {
	id := strings.TrimSpace(string(params.ID))
	if id == "" {
		return nil, ErrIDRequired
	}
	if strings.TrimSpace(string(params.Host.ID)) == "" {
		return nil, ErrHostRequired
	}
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	if !params.Price.IsPositive() {
		return nil, ErrInvalidPrice
	}
	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	return &Room{
		ID:         RoomID(id),
		Host:       params.Host,
		Title:      title,
		Location:   strings.TrimSpace(params.Location),
		Category:   strings.TrimSpace(params.Category),
		Price:      params.Price,
		Attributes: copyAttributes(params.Attributes),
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Clone returns a deep-enough copy so stores never hand out shared pointers.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	out := *r
	out.Attributes = copyAttributes(r.Attributes)
	return &out
}

func copyAttributes(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
