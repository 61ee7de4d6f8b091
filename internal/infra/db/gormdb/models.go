package gormdb

import (
	"time"

	"gorm.io/datatypes"
)

// RoomModel mirrors the rooms table.
type RoomModel struct {
	ID         string         `gorm:"primaryKey"`
	HostID     string         `gorm:"not null;index:idx_rooms_host_created,priority:1"`
	HostEmail  string         `gorm:"not null;default:''"`
	HostName   string         `gorm:"not null;default:''"`
	Title      string         `gorm:"not null"`
	Location   string         `gorm:"not null;default:''"`
	Category   string         `gorm:"not null;default:''"`
	PriceCents int64          `gorm:"not null"`
	Currency   string         `gorm:"size:3;not null"`
	Booked     bool           `gorm:"not null;default:false;index:idx_rooms_booked"`
	Attributes datatypes.JSON `gorm:""`
	CreatedAt  time.Time      `gorm:"not null;index:idx_rooms_host_created,priority:2"`
	UpdatedAt  time.Time      `gorm:"not null"`
}

func (RoomModel) TableName() string { return "rooms" }

// BookingModel mirrors the bookings table. At most one confirmed row per room
// is enforced by a partial unique index.
type BookingModel struct {
	ID               string     `gorm:"primaryKey"`
	IdempotencyKey   string     `gorm:"not null;index:uniq_bookings_idempotency_key,unique"`
	RoomID           string     `gorm:"not null;index:uniq_bookings_confirmed_room,unique,where:status = 'confirmed'"`
	GuestID          string     `gorm:"not null;index:idx_bookings_guest"`
	GuestEmail       string     `gorm:"not null;default:''"`
	GuestName        string     `gorm:"not null;default:''"`
	HostID           string     `gorm:"not null;index:idx_bookings_host"`
	HostEmail        string     `gorm:"not null;default:''"`
	HostName         string     `gorm:"not null;default:''"`
	AmountCents      int64      `gorm:"not null"`
	Currency         string     `gorm:"size:3;not null"`
	PaymentReference string     `gorm:"not null;index:uniq_bookings_payment_reference,unique"`
	Status           string     `gorm:"not null"`
	CreatedAt        time.Time  `gorm:"not null"`
	VoidedAt         *time.Time `gorm:""`
}

func (BookingModel) TableName() string { return "bookings" }

// OutboxModel mirrors the app_outbox table.
type OutboxModel struct {
	ID            string         `gorm:"primaryKey"`
	Name          string         `gorm:"not null"`
	Payload       []byte         `gorm:"not null"`
	OccurredAt    time.Time      `gorm:"not null"`
	Aggregate     string         `gorm:"not null;default:''"`
	Headers       datatypes.JSON `gorm:""`
	State         string         `gorm:"not null;index:idx_outbox_due,priority:1"`
	Attempts      int            `gorm:"not null;default:0"`
	NextAttemptAt time.Time      `gorm:"not null;index:idx_outbox_due,priority:2"`
	ClaimedBy     string         `gorm:"not null;default:''"`
	ClaimedAt     *time.Time     `gorm:""`
	SentAt        *time.Time     `gorm:""`
	LastError     string         `gorm:"not null;default:''"`
	CreatedAt     time.Time      `gorm:"not null"`
}

func (OutboxModel) TableName() string { return "app_outbox" }

// InboxModel mirrors the app_inbox table used to deduplicate consumed events.
type InboxModel struct {
	EventID    string    `gorm:"primaryKey"`
	Consumer   string    `gorm:"primaryKey"`
	ReceivedAt time.Time `gorm:"not null"`
}

func (InboxModel) TableName() string { return "app_inbox" }
