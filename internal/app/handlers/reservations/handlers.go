package reservations

import (
	"context"
	"strings"

	"stayvista/internal/app/commands"
	"stayvista/internal/app/dto"
	"stayvista/internal/app/services/reservation"
	"stayvista/internal/domain/identity"
	"stayvista/internal/domain/rooms"
	"stayvista/internal/domain/shared/money"
)

// Workflow is the reservation coordinator as seen by the command handlers.
type Workflow interface {
	RequestAuthorization(ctx context.Context, req reservation.AuthorizationRequest) (reservation.AuthorizationHandle, error)
	FinalizeBooking(ctx context.Context, req reservation.FinalizeRequest) (reservation.FinalizeResult, error)
	ReleaseRoom(ctx context.Context, req reservation.ReleaseRequest) (reservation.ReleaseResult, error)
}

type AuthorizePaymentHandler struct {
	Workflow Workflow
	// DefaultCurrency applies when the command names none.
	DefaultCurrency string
}

func (h *AuthorizePaymentHandler) Handle(ctx context.Context, cmd AuthorizePaymentCommand) (reservation.AuthorizationHandle, error) {
	currency := strings.TrimSpace(cmd.Currency)
	if currency == "" {
		currency = h.DefaultCurrency
	}
	if currency == "" {
		currency = "USD"
	}
	amount, err := money.FromMajor(cmd.Price, currency)
	if err != nil {
		return reservation.AuthorizationHandle{}, &reservation.Error{Kind: reservation.KindInvalidRequest, Op: "AuthorizePayment", Err: err}
	}
	claim, _ := identity.FromContext(ctx)
	return h.Workflow.RequestAuthorization(ctx, reservation.AuthorizationRequest{
		RoomID:         rooms.RoomID(strings.TrimSpace(cmd.RoomID)),
		Guest:          claim,
		Amount:         amount,
		IdempotencyKey: strings.TrimSpace(cmd.IdempotencyKey),
	})
}

type FinalizeBookingHandler struct {
	Workflow Workflow
}

func (h *FinalizeBookingHandler) Handle(ctx context.Context, cmd FinalizeBookingCommand) (dto.FinalizeView, error) {
	claim, _ := identity.FromContext(ctx)
	res, err := h.Workflow.FinalizeBooking(ctx, reservation.FinalizeRequest{
		RoomID:           rooms.RoomID(strings.TrimSpace(cmd.RoomID)),
		Guest:            claim,
		PaymentReference: strings.TrimSpace(cmd.PaymentReference),
		IdempotencyKey:   strings.TrimSpace(cmd.IdempotencyKey),
	})
	if err != nil {
		return dto.FinalizeView{}, err
	}
	return dto.FinalizeView{Booking: dto.MapBooking(res.Booking), Replayed: res.Replayed}, nil
}

type ReleaseRoomHandler struct {
	Workflow Workflow
}

func (h *ReleaseRoomHandler) Handle(ctx context.Context, cmd ReleaseRoomCommand) (dto.ReleaseView, error) {
	claim, _ := identity.FromContext(ctx)
	res, err := h.Workflow.ReleaseRoom(ctx, reservation.ReleaseRequest{
		RoomID: rooms.RoomID(strings.TrimSpace(cmd.RoomID)),
		Actor:  claim,
	})
	if err != nil {
		return dto.ReleaseView{}, err
	}
	view := dto.ReleaseView{RoomID: string(res.RoomID), WasBooked: res.WasBooked}
	if res.Voided != nil {
		v := dto.MapBooking(res.Voided)
		view.Voided = &v
	}
	return view, nil
}

// Register binds the reservation handlers to bus.
func Register(bus *commands.InMemoryBus, wf Workflow, defaultCurrency string) {
	commands.MustRegister[AuthorizePaymentCommand, reservation.AuthorizationHandle](bus, AuthorizePaymentKey,
		&AuthorizePaymentHandler{Workflow: wf, DefaultCurrency: defaultCurrency})
	commands.MustRegister[FinalizeBookingCommand, dto.FinalizeView](bus, FinalizeBookingKey, &FinalizeBookingHandler{Workflow: wf})
	commands.MustRegister[ReleaseRoomCommand, dto.ReleaseView](bus, ReleaseRoomKey, &ReleaseRoomHandler{Workflow: wf})
}

var (
	_ commands.Handler[AuthorizePaymentCommand, reservation.AuthorizationHandle] = (*AuthorizePaymentHandler)(nil)
	_ commands.Handler[FinalizeBookingCommand, dto.FinalizeView]                 = (*FinalizeBookingHandler)(nil)
	_ commands.Handler[ReleaseRoomCommand, dto.ReleaseView]                      = (*ReleaseRoomHandler)(nil)
	_ Workflow                                                                   = (*reservation.Coordinator)(nil)
)
