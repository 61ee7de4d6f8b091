package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"stayvista/internal/domain/booking"
	"stayvista/internal/domain/rooms"
)

// BookingLedger is an in-memory ledger. It enforces the same uniqueness rules
// as the durable ledgers: one entry per idempotency key and at most one
// confirmed entry per room.
type BookingLedger struct {
	mu      sync.RWMutex
	byID    map[booking.BookingID]*booking.Booking
	byKey   map[string]booking.BookingID
	byRef   map[string]booking.BookingID
	active  map[rooms.RoomID]booking.BookingID
	ordered []booking.BookingID
}

func NewBookingLedger() *BookingLedger {
	return &BookingLedger{
		byID:   make(map[booking.BookingID]*booking.Booking),
		byKey:  make(map[string]booking.BookingID),
		byRef:  make(map[string]booking.BookingID),
		active: make(map[rooms.RoomID]booking.BookingID),
	}
}

func (l *BookingLedger) AppendIfAbsent(ctx context.Context, key string, b *booking.Booking) (*booking.Booking, bool, error) {
	if strings.TrimSpace(key) == "" {
		return nil, false, booking.ErrIdempotencyKey
	}
	if b == nil {
		return nil, false, booking.ErrInvalidState
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if id, ok := l.byKey[key]; ok {
		return l.byID[id].Clone(), true, nil
	}
	if _, ok := l.byRef[b.PaymentReference]; ok {
		return nil, false, booking.ErrPaymentReferenceUsed
	}
	if b.Active() {
		if _, ok := l.active[b.RoomID]; ok {
			return nil, false, booking.ErrActiveBookingExists
		}
	}
	stored := b.Clone()
	stored.IdempotencyKey = key
	l.byID[stored.ID] = stored
	l.byKey[key] = stored.ID
	l.byRef[stored.PaymentReference] = stored.ID
	if stored.Active() {
		l.active[stored.RoomID] = stored.ID
	}
	l.ordered = append(l.ordered, stored.ID)
	return stored.Clone(), false, nil
}

func (l *BookingLedger) FindByIdempotencyKey(ctx context.Context, key string) (*booking.Booking, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lookup(l.byKey[key])
}

func (l *BookingLedger) FindByPaymentReference(ctx context.Context, reference string) (*booking.Booking, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lookup(l.byRef[reference])
}

func (l *BookingLedger) FindActiveByRoom(ctx context.Context, roomID rooms.RoomID) (*booking.Booking, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lookup(l.active[roomID])
}

func (l *BookingLedger) FindByGuest(ctx context.Context, guestID string) ([]*booking.Booking, error) {
	return l.collect(func(b *booking.Booking) bool { return b.Guest.ID == guestID }), nil
}

func (l *BookingLedger) FindByHost(ctx context.Context, hostID rooms.HostID) ([]*booking.Booking, error) {
	return l.collect(func(b *booking.Booking) bool { return b.Host.ID == hostID }), nil
}

func (l *BookingLedger) MarkVoided(ctx context.Context, id booking.BookingID, at time.Time) (*booking.Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.byID[id]
	if !ok {
		return nil, booking.ErrNotFound
	}
	if err := b.Void("", at); err != nil {
		return nil, err
	}
	b.Drain()
	if l.active[b.RoomID] == id {
		delete(l.active, b.RoomID)
	}
	return b.Clone(), nil
}

func (l *BookingLedger) lookup(id booking.BookingID) (*booking.Booking, error) {
	if id == "" {
		return nil, booking.ErrNotFound
	}
	b, ok := l.byID[id]
	if !ok {
		return nil, booking.ErrNotFound
	}
	return b.Clone(), nil
}

// collect returns matching entries newest first.
func (l *BookingLedger) collect(match func(*booking.Booking) bool) []*booking.Booking {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*booking.Booking, 0)
	for _, id := range l.ordered {
		if b := l.byID[id]; match(b) {
			out = append(out, b.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

var _ booking.Ledger = (*BookingLedger)(nil)
