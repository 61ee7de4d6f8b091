package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"stayvista/internal/domain/rooms"
)

// RoomStore keeps rooms in memory. Claim is serialized by the store mutex.
type RoomStore struct {
	mu    sync.RWMutex
	items map[rooms.RoomID]*rooms.Room
	now   func() time.Time
}

func NewRoomStore() *RoomStore {
	return &RoomStore{
		items: make(map[rooms.RoomID]*rooms.Room),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *RoomStore) Get(ctx context.Context, id rooms.RoomID) (*rooms.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.items[id]
	if !ok {
		return nil, rooms.ErrNotFound
	}
	return room.Clone(), nil
}

// List returns matching rooms ordered by creation time, then id.
func (s *RoomStore) List(ctx context.Context, filter rooms.Filter) ([]*rooms.Room, error) {
	filter = filter.Normalized()
	s.mu.RLock()
	matched := make([]*rooms.Room, 0, len(s.items))
	for _, room := range s.items {
		if filter.Matches(room) {
			matched = append(matched, room.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	if filter.Offset >= len(matched) {
		return []*rooms.Room{}, nil
	}
	end := filter.Offset + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[filter.Offset:end], nil
}

// Save inserts or replaces the room. The booked flag of an existing room is
// preserved; it only moves through Claim and Release.
func (s *RoomStore) Save(ctx context.Context, room *rooms.Room) error {
	if room == nil || strings.TrimSpace(string(room.ID)) == "" {
		return rooms.ErrIDRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := room.Clone()
	if existing, ok := s.items[room.ID]; ok {
		stored.Booked = existing.Booked
		stored.CreatedAt = existing.CreatedAt
	}
	s.items[room.ID] = stored
	return nil
}

func (s *RoomStore) Claim(ctx context.Context, id rooms.RoomID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.items[id]
	if !ok {
		return false, rooms.ErrNotFound
	}
	if room.Booked {
		return false, nil
	}
	room.Booked = true
	room.UpdatedAt = s.now()
	return true, nil
}

func (s *RoomStore) Release(ctx context.Context, id rooms.RoomID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.items[id]
	if !ok {
		return rooms.ErrNotFound
	}
	room.Booked = false
	room.UpdatedAt = s.now()
	return nil
}

var _ rooms.Store = (*RoomStore)(nil)
