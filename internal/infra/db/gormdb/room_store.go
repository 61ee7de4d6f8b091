package gormdb

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stayvista/internal/domain/rooms"
	"stayvista/internal/domain/shared/money"
)

const subjectRooms = "rooms"

// RoomStore keeps rooms in a SQL table. Claim is a conditional UPDATE whose
// affected row count decides the winner.
type RoomStore struct {
	db *gorm.DB
}

func NewRoomStore(db *gorm.DB) *RoomStore {
	return &RoomStore{db: db}
}

func (s *RoomStore) Get(ctx context.Context, id rooms.RoomID) (*rooms.Room, error) {
	var m RoomModel
	err := s.db.WithContext(ctx).Where("id = ?", string(id)).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, rooms.ErrNotFound
	}
	if err != nil {
		return nil, wrapStoreError(subjectRooms, "get", err)
	}
	return m.toRoom()
}

func (s *RoomStore) List(ctx context.Context, filter rooms.Filter) ([]*rooms.Room, error) {
	filter = filter.Normalized()
	q := s.db.WithContext(ctx).Model(&RoomModel{})
	if filter.HostID != "" {
		q = q.Where("host_id = ?", string(filter.HostID))
	}
	if filter.Available != nil {
		q = q.Where("booked = ?", !*filter.Available)
	}
	if filter.Category != "" {
		q = q.Where("LOWER(category) = ?", strings.ToLower(filter.Category))
	}
	var models []RoomModel
	err := q.Order("created_at ASC").Order("id ASC").
		Offset(filter.Offset).
		Limit(filter.Limit).
		Find(&models).Error
	if err != nil {
		return nil, wrapStoreError(subjectRooms, "list", err)
	}
	out := make([]*rooms.Room, 0, len(models))
	for i := range models {
		room, err := models[i].toRoom()
		if err != nil {
			return nil, err
		}
		out = append(out, room)
	}
	return out, nil
}

// Save upserts the descriptive columns. booked and created_at are only set on insert.
func (s *RoomStore) Save(ctx context.Context, room *rooms.Room) error {
	if room == nil || room.ID == "" {
		return rooms.ErrIDRequired
	}
	m, err := newRoomModel(room)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"host_id", "host_email", "host_name", "title", "location",
			"category", "price_cents", "currency", "attributes", "updated_at",
		}),
	}).Create(&m).Error
	if err != nil {
		return wrapStoreError(subjectRooms, "save", err)
	}
	return nil
}

func (s *RoomStore) Claim(ctx context.Context, id rooms.RoomID) (bool, error) {
	res := s.db.WithContext(ctx).Model(&RoomModel{}).
		Where("id = ? AND booked = ?", string(id), false).
		Updates(map[string]any{"booked": true, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, wrapStoreError(subjectRooms, "claim", res.Error)
	}
	if res.RowsAffected == 1 {
		return true, nil
	}
	exists, err := s.exists(ctx, id)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, rooms.ErrNotFound
	}
	return false, nil
}

func (s *RoomStore) Release(ctx context.Context, id rooms.RoomID) error {
	res := s.db.WithContext(ctx).Model(&RoomModel{}).
		Where("id = ?", string(id)).
		Updates(map[string]any{"booked": false, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return wrapStoreError(subjectRooms, "release", res.Error)
	}
	if res.RowsAffected == 0 {
		return rooms.ErrNotFound
	}
	return nil
}

func (s *RoomStore) exists(ctx context.Context, id rooms.RoomID) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&RoomModel{}).Where("id = ?", string(id)).Count(&n).Error; err != nil {
		return false, wrapStoreError(subjectRooms, "count", err)
	}
	return n > 0, nil
}

func newRoomModel(r *rooms.Room) (RoomModel, error) {
	var attrs []byte
	if len(r.Attributes) > 0 {
		raw, err := json.Marshal(r.Attributes)
		if err != nil {
			return RoomModel{}, wrapStoreError(subjectRooms, "encode_attributes", err)
		}
		attrs = raw
	}
	return RoomModel{
		ID:         string(r.ID),
		HostID:     string(r.Host.ID),
		HostEmail:  r.Host.Email,
		HostName:   r.Host.Name,
		Title:      r.Title,
		Location:   r.Location,
		Category:   r.Category,
		PriceCents: r.Price.Amount,
		Currency:   r.Price.Currency,
		Booked:     r.Booked,
		Attributes: attrs,
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}, nil
}

func (m RoomModel) toRoom() (*rooms.Room, error) {
	var attrs map[string]any
	if len(m.Attributes) > 0 {
		if err := json.Unmarshal(m.Attributes, &attrs); err != nil {
			return nil, wrapStoreError(subjectRooms, "decode_attributes", err)
		}
	}
	return &rooms.Room{
		ID:         rooms.RoomID(m.ID),
		Host:       rooms.Host{ID: rooms.HostID(m.HostID), Email: m.HostEmail, Name: m.HostName},
		Title:      m.Title,
		Location:   m.Location,
		Category:   m.Category,
		Price:      money.Money{Amount: m.PriceCents, Currency: m.Currency},
		Booked:     m.Booked,
		Attributes: attrs,
		CreatedAt:  m.CreatedAt.UTC(),
		UpdatedAt:  m.UpdatedAt.UTC(),
	}, nil
}

var _ rooms.Store = (*RoomStore)(nil)
