package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"stayvista/internal/domain/rooms"
	"stayvista/internal/domain/shared/money"
)

type roomFixture struct {
	ID         string         `json:"id"`
	Host       fixtureHost    `json:"host"`
	Title      string         `json:"title"`
	Location   string         `json:"location"`
	Category   string         `json:"category"`
	Price      float64        `json:"price"`
	Currency   string         `json:"currency"`
	Attributes map[string]any `json:"attributes"`
}

type fixtureHost struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// loadRoomFixtures seeds rooms from a JSON array. Rooms already present are
// left untouched so a restart never clears a booked flag.
func loadRoomFixtures(ctx context.Context, store rooms.Store, path, defaultCurrency string, logger *slog.Logger) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("room fixtures file not found, skipping", "path", path)
			return nil
		}
		return fmt.Errorf("read fixtures: %w", err)
	}
	var fixtures []roomFixture
	if err := json.Unmarshal(data, &fixtures); err != nil {
		return fmt.Errorf("decode fixtures: %w", err)
	}

	now := time.Now()
	imported := 0
	for _, fx := range fixtures {
		if _, err := store.Get(ctx, rooms.RoomID(fx.ID)); err == nil {
			continue
		} else if !errors.Is(err, rooms.ErrNotFound) {
			return fmt.Errorf("lookup fixture %s: %w", fx.ID, err)
		}
		currency := fx.Currency
		if currency == "" {
			currency = defaultCurrency
		}
		price, err := money.FromMajor(fx.Price, currency)
		if err != nil {
			logger.Error("fixture invalid", "room_id", fx.ID, "error", err)
			continue
		}
		room, err := rooms.NewRoom(rooms.CreateParams{
			ID:         rooms.RoomID(fx.ID),
			Host:       rooms.Host{ID: rooms.HostID(fx.Host.ID), Email: fx.Host.Email, Name: fx.Host.Name},
			Title:      fx.Title,
			Location:   fx.Location,
			Category:   fx.Category,
			Price:      price,
			Attributes: fx.Attributes,
			Now:        now,
		})
		if err != nil {
			logger.Error("fixture invalid", "room_id", fx.ID, "error", err)
			continue
		}
		if err := store.Save(ctx, room); err != nil {
			return fmt.Errorf("store fixture %s: %w", fx.ID, err)
		}
		imported++
	}
	logger.Info("room fixtures imported", "count", imported, "path", path)
	return nil
}
