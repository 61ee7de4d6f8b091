package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"stayvista/internal/domain/booking"
	"stayvista/internal/domain/rooms"
	"stayvista/internal/domain/shared/money"
)

// BookingLedger stores ledger entries in the bookings collection. Unique
// indexes enforce one entry per idempotency key and per payment reference,
// and a partial unique index allows one confirmed entry per room.
type BookingLedger struct {
	col *mongo.Collection
}

func NewBookingLedger(ctx context.Context, db *mongo.Database) (*BookingLedger, error) {
	col := db.Collection("bookings")
	_, err := col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "idempotency_key", Value: 1}}, Options: options.Index().SetUnique(true).SetName("uniq_idempotency_key")},
		{Keys: bson.D{{Key: "payment_reference", Value: 1}}, Options: options.Index().SetUnique(true).SetName("uniq_payment_reference")},
		{
			Keys: bson.D{{Key: "room_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName("uniq_confirmed_room").
				SetPartialFilterExpression(bson.M{"status": string(booking.StatusConfirmed)}),
		},
		{Keys: bson.D{{Key: "guest.id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "host.id", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return nil, err
	}
	return &BookingLedger{col: col}, nil
}

func (l *BookingLedger) AppendIfAbsent(ctx context.Context, key string, b *booking.Booking) (*booking.Booking, bool, error) {
	if key == "" {
		return nil, false, booking.ErrIdempotencyKey
	}
	if b == nil {
		return nil, false, booking.ErrInvalidState
	}
	doc := newBookingDocument(b)
	doc.IdempotencyKey = key
	_, err := l.col.InsertOne(ctx, doc)
	if err == nil {
		return doc.toBooking(), false, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return nil, false, err
	}
	if existing, ferr := l.FindByIdempotencyKey(ctx, key); ferr == nil {
		return existing, true, nil
	} else if !errors.Is(ferr, booking.ErrNotFound) {
		return nil, false, ferr
	}
	if _, ferr := l.FindByPaymentReference(ctx, doc.PaymentReference); ferr == nil {
		return nil, false, booking.ErrPaymentReferenceUsed
	}
	return nil, false, booking.ErrActiveBookingExists
}

func (l *BookingLedger) FindByIdempotencyKey(ctx context.Context, key string) (*booking.Booking, error) {
	return l.findOne(ctx, bson.M{"idempotency_key": key})
}

func (l *BookingLedger) FindByPaymentReference(ctx context.Context, reference string) (*booking.Booking, error) {
	return l.findOne(ctx, bson.M{"payment_reference": reference})
}

func (l *BookingLedger) FindActiveByRoom(ctx context.Context, roomID rooms.RoomID) (*booking.Booking, error) {
	return l.findOne(ctx, bson.M{"room_id": string(roomID), "status": string(booking.StatusConfirmed)})
}

func (l *BookingLedger) FindByGuest(ctx context.Context, guestID string) ([]*booking.Booking, error) {
	return l.findMany(ctx, bson.M{"guest.id": guestID})
}

func (l *BookingLedger) FindByHost(ctx context.Context, hostID rooms.HostID) ([]*booking.Booking, error) {
	return l.findMany(ctx, bson.M{"host.id": string(hostID)})
}

func (l *BookingLedger) MarkVoided(ctx context.Context, id booking.BookingID, at time.Time) (*booking.Booking, error) {
	at = at.UTC()
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc bookingDocument
	err := l.col.FindOneAndUpdate(ctx,
		bson.M{"_id": string(id), "status": string(booking.StatusConfirmed)},
		bson.M{"$set": bson.M{"status": string(booking.StatusVoided), "voided_at": at}},
		opts,
	).Decode(&doc)
	if err == nil {
		return doc.toBooking(), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}
	n, cerr := l.col.CountDocuments(ctx, bson.M{"_id": string(id)})
	if cerr != nil {
		return nil, cerr
	}
	if n == 0 {
		return nil, booking.ErrNotFound
	}
	return nil, booking.ErrInvalidState
}

func (l *BookingLedger) findOne(ctx context.Context, filter bson.M) (*booking.Booking, error) {
	var doc bookingDocument
	if err := l.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, booking.ErrNotFound
		}
		return nil, err
	}
	return doc.toBooking(), nil
}

func (l *BookingLedger) findMany(ctx context.Context, filter bson.M) ([]*booking.Booking, error) {
	cur, err := l.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := make([]*booking.Booking, 0)
	for cur.Next(ctx) {
		var doc bookingDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toBooking())
	}
	return out, cur.Err()
}

type guestDocument struct {
	ID    string `bson:"id"`
	Email string `bson:"email"`
	Name  string `bson:"name"`
}

type bookingDocument struct {
	ID               string        `bson:"_id"`
	IdempotencyKey   string        `bson:"idempotency_key"`
	RoomID           string        `bson:"room_id"`
	Guest            guestDocument `bson:"guest"`
	Host             hostDocument  `bson:"host"`
	Amount           money.Money   `bson:"amount"`
	PaymentReference string        `bson:"payment_reference"`
	Status           string        `bson:"status"`
	CreatedAt        time.Time     `bson:"created_at"`
	VoidedAt         *time.Time    `bson:"voided_at,omitempty"`
}

func newBookingDocument(b *booking.Booking) bookingDocument {
	return bookingDocument{
		ID:               string(b.ID),
		IdempotencyKey:   b.IdempotencyKey,
		RoomID:           string(b.RoomID),
		Guest:            guestDocument{ID: b.Guest.ID, Email: b.Guest.Email, Name: b.Guest.Name},
		Host:             hostDocument{ID: string(b.Host.ID), Email: b.Host.Email, Name: b.Host.Name},
		Amount:           b.Amount,
		PaymentReference: b.PaymentReference,
		Status:           string(b.Status),
		CreatedAt:        b.CreatedAt.UTC(),
		VoidedAt:         b.VoidedAt,
	}
}

func (d bookingDocument) toBooking() *booking.Booking {
	return &booking.Booking{
		ID:               booking.BookingID(d.ID),
		IdempotencyKey:   d.IdempotencyKey,
		RoomID:           rooms.RoomID(d.RoomID),
		Guest:            booking.Guest{ID: d.Guest.ID, Email: d.Guest.Email, Name: d.Guest.Name},
		Host:             rooms.Host{ID: rooms.HostID(d.Host.ID), Email: d.Host.Email, Name: d.Host.Name},
		Amount:           d.Amount,
		PaymentReference: d.PaymentReference,
		Status:           booking.Status(d.Status),
		CreatedAt:        d.CreatedAt,
		VoidedAt:         d.VoidedAt,
	}
}

var _ booking.Ledger = (*BookingLedger)(nil)
