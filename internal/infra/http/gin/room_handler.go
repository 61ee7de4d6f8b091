package ginserver

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	gin "github.com/gin-gonic/gin"

	"stayvista/internal/app/commands"
	"stayvista/internal/app/dto"
	"stayvista/internal/app/handlers/rooms"
	"stayvista/internal/app/queries"
)

type RoomHTTP interface {
	Catalog(c *gin.Context)
	Get(c *gin.Context)
	HostRooms(c *gin.Context)
	Create(c *gin.Context)
}

type RoomHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

type createRoomRequest struct {
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	Location   string         `json:"location"`
	Category   string         `json:"category"`
	Price      float64        `json:"price"`
	Currency   string         `json:"currency"`
	Attributes map[string]any `json:"attributes"`
}

func (h RoomHandler) Catalog(c *gin.Context) {
	limit, offset, err := pageParams(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	q := rooms.ListRoomsQuery{
		HostID:   c.Query("host"),
		Category: c.Query("category"),
		Limit:    limit,
		Offset:   offset,
	}
	if raw := strings.TrimSpace(c.Query("available")); raw != "" {
		available, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, fmt.Errorf("available: %w", err))
			return
		}
		q.Available = &available
	}
	result, err := queries.Ask[rooms.ListRoomsQuery, dto.RoomCollection](c.Request.Context(), h.Queries, q)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h RoomHandler) Get(c *gin.Context) {
	result, err := queries.Ask[rooms.GetRoomQuery, dto.RoomView](c.Request.Context(), h.Queries, rooms.GetRoomQuery{ID: c.Param("id")})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h RoomHandler) HostRooms(c *gin.Context) {
	limit, offset, err := pageParams(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	q := rooms.ListHostRoomsQuery{Limit: limit, Offset: offset}
	result, err := queries.Ask[rooms.ListHostRoomsQuery, dto.RoomCollection](c.Request.Context(), h.Queries, q)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h RoomHandler) Create(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cmd := rooms.CreateRoomCommand{
		ID:         req.ID,
		Title:      req.Title,
		Location:   req.Location,
		Category:   req.Category,
		Price:      req.Price,
		Currency:   req.Currency,
		Attributes: req.Attributes,
	}
	view, err := commands.Dispatch[rooms.CreateRoomCommand, dto.RoomView](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func pageParams(c *gin.Context) (int, int, error) {
	limit, err := intQuery(c, "limit")
	if err != nil {
		return 0, 0, err
	}
	offset, err := intQuery(c, "offset")
	if err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}

func intQuery(c *gin.Context, name string) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return v, nil
}

var _ RoomHTTP = RoomHandler{}
