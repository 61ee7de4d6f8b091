package dto

import (
	"time"

	"stayvista/internal/domain/rooms"
)

type HostSnapshot struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

type RoomView struct {
	ID         string         `json:"id"`
	Host       HostSnapshot   `json:"host"`
	Title      string         `json:"title"`
	Location   string         `json:"location,omitempty"`
	Category   string         `json:"category,omitempty"`
	Price      MoneyDTO       `json:"price"`
	Booked     bool           `json:"booked"`
	Attributes map[string]any `json:"attributes,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

type RoomCollection struct {
	Items  []RoomView `json:"items"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

func MapRoom(r *rooms.Room) RoomView {
	return RoomView{
		ID:         string(r.ID),
		Host:       HostSnapshot{ID: string(r.Host.ID), Email: r.Host.Email, Name: r.Host.Name},
		Title:      r.Title,
		Location:   r.Location,
		Category:   r.Category,
		Price:      MapMoney(r.Price),
		Booked:     r.Booked,
		Attributes: r.Attributes,
		CreatedAt:  r.CreatedAt,
	}
}

func MapRooms(list []*rooms.Room, filter rooms.Filter) RoomCollection {
	items := make([]RoomView, 0, len(list))
	for _, r := range list {
		items = append(items, MapRoom(r))
	}
	return RoomCollection{Items: items, Limit: filter.Limit, Offset: filter.Offset}
}
