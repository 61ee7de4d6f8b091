package ginserver

import (
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"stayvista/internal/app/commands"
	"stayvista/internal/app/dto"
	"stayvista/internal/app/handlers/reservations"
	"stayvista/internal/app/services/reservation"
)

const idempotencyHeader = "Idempotency-Key"

type ReservationHTTP interface {
	Authorize(c *gin.Context)
	Finalize(c *gin.Context)
	Release(c *gin.Context)
}

type ReservationHandler struct {
	Commands commands.Bus
	Logger   *slog.Logger
}

type authorizeRequest struct {
	RoomID   string  `json:"room_id"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
}

type finalizeRequest struct {
	RoomID           string `json:"room_id"`
	PaymentReference string `json:"payment_reference"`
	IdempotencyKey   string `json:"idempotency_key"`
}

func (h ReservationHandler) Authorize(c *gin.Context) {
	var req authorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cmd := reservations.AuthorizePaymentCommand{
		RoomID:         req.RoomID,
		Price:          req.Price,
		Currency:       req.Currency,
		IdempotencyKey: strings.TrimSpace(c.GetHeader(idempotencyHeader)),
	}
	handle, err := commands.Dispatch[reservations.AuthorizePaymentCommand, reservation.AuthorizationHandle](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, handle)
}

// Finalize records the booking. The idempotency key comes from the header and
// falls back to the body.
func (h ReservationHandler) Finalize(c *gin.Context) {
	var req finalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	key := strings.TrimSpace(c.GetHeader(idempotencyHeader))
	if key == "" {
		key = req.IdempotencyKey
	}
	cmd := reservations.FinalizeBookingCommand{
		RoomID:           req.RoomID,
		PaymentReference: req.PaymentReference,
		IdempotencyKey:   key,
	}
	view, err := commands.Dispatch[reservations.FinalizeBookingCommand, dto.FinalizeView](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	status := http.StatusCreated
	if view.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, view)
}

func (h ReservationHandler) Release(c *gin.Context) {
	cmd := reservations.ReleaseRoomCommand{RoomID: c.Param("id")}
	view, err := commands.Dispatch[reservations.ReleaseRoomCommand, dto.ReleaseView](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

var _ ReservationHTTP = ReservationHandler{}
