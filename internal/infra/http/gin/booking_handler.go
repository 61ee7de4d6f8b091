package ginserver

import (
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"stayvista/internal/app/dto"
	"stayvista/internal/app/handlers/bookings"
	"stayvista/internal/app/queries"
)

type BookingHTTP interface {
	Mine(c *gin.Context)
	Hosted(c *gin.Context)
}

type BookingHandler struct {
	Queries queries.Bus
	Logger  *slog.Logger
}

func (h BookingHandler) Mine(c *gin.Context) {
	result, err := queries.Ask[bookings.ListGuestBookingsQuery, dto.BookingCollection](c.Request.Context(), h.Queries, bookings.ListGuestBookingsQuery{})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h BookingHandler) Hosted(c *gin.Context) {
	result, err := queries.Ask[bookings.ListHostBookingsQuery, dto.BookingCollection](c.Request.Context(), h.Queries, bookings.ListHostBookingsQuery{})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

var _ BookingHTTP = BookingHandler{}
