package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	gin "github.com/gin-gonic/gin"

	"stayvista/internal/app/commands"
	"stayvista/internal/app/queries"
	"stayvista/internal/app/services/reservation"
)

// retryAfter is the hint sent with 409 and 503 responses.
const retryAfter = 2 * time.Second

type errorBody struct {
	Error     string           `json:"error"`
	Kind      reservation.Kind `json:"kind"`
	Retryable bool             `json:"retryable"`
}

func statusFor(kind reservation.Kind) int {
	switch kind {
	case reservation.KindInvalidRequest:
		return http.StatusBadRequest
	case reservation.KindUnauthorized:
		return http.StatusUnauthorized
	case reservation.KindForbidden:
		return http.StatusForbidden
	case reservation.KindNotFound:
		return http.StatusNotFound
	case reservation.KindRoomAlreadyBooked, reservation.KindInProgress:
		return http.StatusConflict
	case reservation.KindPaymentNotConfirmed:
		return http.StatusPaymentRequired
	case reservation.KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the failure as JSON. Errors without a kind are reported
// as PersistenceFailed with a generic message so internals do not leak.
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	kind := reservation.KindOf(err)
	message := err.Error()
	if kind == "" {
		if errors.Is(err, commands.ErrHandlerNotFound) || errors.Is(err, queries.ErrHandlerNotFound) {
			logError(c, logger, err)
			c.AbortWithStatusJSON(http.StatusNotImplemented, errorBody{Error: "operation not available", Kind: reservation.KindUpstreamUnavailable})
			return
		}
		kind = reservation.KindPersistenceFailed
		message = "internal error"
	}
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		logError(c, logger, err)
	}
	if status == http.StatusConflict || status == http.StatusServiceUnavailable {
		c.Header("Retry-After", strconv.Itoa(int(retryAfter/time.Second)))
	}
	c.AbortWithStatusJSON(status, errorBody{
		Error:     message,
		Kind:      kind,
		Retryable: reservation.Retryable(kind),
	})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: err.Error(), Kind: reservation.KindInvalidRequest})
}

func logError(c *gin.Context, logger *slog.Logger, err error) {
	if logger == nil {
		return
	}
	attrs := []any{slog.String("path", c.FullPath()), slog.String("error", err.Error())}
	if claim, ok := currentClaim(c); ok {
		attrs = append(attrs, slog.String("subject", claim.Subject))
	}
	logger.ErrorContext(c.Request.Context(), "request failed", attrs...)
}
