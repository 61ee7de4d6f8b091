package gormdb

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"stayvista/internal/domain/booking"
	"stayvista/internal/domain/rooms"
	"stayvista/internal/domain/shared/money"
)

const subjectBookings = "bookings"

// BookingLedger stores ledger entries in the bookings table. Unique indexes
// cover the idempotency key and the payment reference, and a partial unique
// index allows one confirmed entry per room.
type BookingLedger struct {
	db *gorm.DB
}

func NewBookingLedger(db *gorm.DB) *BookingLedger {
	return &BookingLedger{db: db}
}

func (l *BookingLedger) AppendIfAbsent(ctx context.Context, key string, b *booking.Booking) (*booking.Booking, bool, error) {
	if key == "" {
		return nil, false, booking.ErrIdempotencyKey
	}
	if b == nil {
		return nil, false, booking.ErrInvalidState
	}
	m := newBookingModel(b)
	m.IdempotencyKey = key
	err := l.db.WithContext(ctx).Create(&m).Error
	if err == nil {
		return m.toBooking(), false, nil
	}
	if !isUniqueViolation(err) {
		return nil, false, wrapStoreError(subjectBookings, "append", err)
	}
	if existing, ferr := l.FindByIdempotencyKey(ctx, key); ferr == nil {
		return existing, true, nil
	} else if !errors.Is(ferr, booking.ErrNotFound) {
		return nil, false, ferr
	}
	if _, ferr := l.FindByPaymentReference(ctx, m.PaymentReference); ferr == nil {
		return nil, false, booking.ErrPaymentReferenceUsed
	}
	return nil, false, booking.ErrActiveBookingExists
}

func (l *BookingLedger) FindByIdempotencyKey(ctx context.Context, key string) (*booking.Booking, error) {
	return l.findOne(ctx, "idempotency_key = ?", key)
}

func (l *BookingLedger) FindByPaymentReference(ctx context.Context, reference string) (*booking.Booking, error) {
	return l.findOne(ctx, "payment_reference = ?", reference)
}

func (l *BookingLedger) FindActiveByRoom(ctx context.Context, roomID rooms.RoomID) (*booking.Booking, error) {
	return l.findOne(ctx, "room_id = ? AND status = ?", string(roomID), string(booking.StatusConfirmed))
}

func (l *BookingLedger) FindByGuest(ctx context.Context, guestID string) ([]*booking.Booking, error) {
	return l.findMany(ctx, "guest_id = ?", guestID)
}

func (l *BookingLedger) FindByHost(ctx context.Context, hostID rooms.HostID) ([]*booking.Booking, error) {
	return l.findMany(ctx, "host_id = ?", string(hostID))
}

func (l *BookingLedger) MarkVoided(ctx context.Context, id booking.BookingID, at time.Time) (*booking.Booking, error) {
	at = at.UTC()
	res := l.db.WithContext(ctx).Model(&BookingModel{}).
		Where("id = ? AND status = ?", string(id), string(booking.StatusConfirmed)).
		Updates(map[string]any{"status": string(booking.StatusVoided), "voided_at": at})
	if res.Error != nil {
		return nil, wrapStoreError(subjectBookings, "void", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := l.findOne(ctx, "id = ?", string(id)); err != nil {
			return nil, err
		}
		return nil, booking.ErrInvalidState
	}
	return l.findOne(ctx, "id = ?", string(id))
}

func (l *BookingLedger) findOne(ctx context.Context, query string, args ...any) (*booking.Booking, error) {
	var m BookingModel
	err := l.db.WithContext(ctx).Where(query, args...).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, booking.ErrNotFound
	}
	if err != nil {
		return nil, wrapStoreError(subjectBookings, "find", err)
	}
	return m.toBooking(), nil
}

func (l *BookingLedger) findMany(ctx context.Context, query string, args ...any) ([]*booking.Booking, error) {
	var models []BookingModel
	err := l.db.WithContext(ctx).Where(query, args...).
		Order("created_at DESC").Order("id DESC").
		Find(&models).Error
	if err != nil {
		return nil, wrapStoreError(subjectBookings, "list", err)
	}
	out := make([]*booking.Booking, 0, len(models))
	for i := range models {
		out = append(out, models[i].toBooking())
	}
	return out, nil
}

func newBookingModel(b *booking.Booking) BookingModel {
	return BookingModel{
		ID:               string(b.ID),
		IdempotencyKey:   b.IdempotencyKey,
		RoomID:           string(b.RoomID),
		GuestID:          b.Guest.ID,
		GuestEmail:       b.Guest.Email,
		GuestName:        b.Guest.Name,
		HostID:           string(b.Host.ID),
		HostEmail:        b.Host.Email,
		HostName:         b.Host.Name,
		AmountCents:      b.Amount.Amount,
		Currency:         b.Amount.Currency,
		PaymentReference: b.PaymentReference,
		Status:           string(b.Status),
		CreatedAt:        b.CreatedAt.UTC(),
		VoidedAt:         b.VoidedAt,
	}
}

func (m BookingModel) toBooking() *booking.Booking {
	var voided *time.Time
	if m.VoidedAt != nil {
		at := m.VoidedAt.UTC()
		voided = &at
	}
	return &booking.Booking{
		ID:               booking.BookingID(m.ID),
		IdempotencyKey:   m.IdempotencyKey,
		RoomID:           rooms.RoomID(m.RoomID),
		Guest:            booking.Guest{ID: m.GuestID, Email: m.GuestEmail, Name: m.GuestName},
		Host:             rooms.Host{ID: rooms.HostID(m.HostID), Email: m.HostEmail, Name: m.HostName},
		Amount:           money.Money{Amount: m.AmountCents, Currency: m.Currency},
		PaymentReference: m.PaymentReference,
		Status:           booking.Status(m.Status),
		CreatedAt:        m.CreatedAt.UTC(),
		VoidedAt:         voided,
	}
}

var _ booking.Ledger = (*BookingLedger)(nil)
