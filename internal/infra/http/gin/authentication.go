package ginserver

import (
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"stayvista/internal/app/services/reservation"
	"stayvista/internal/domain/identity"
)

// Verifier turns a bearer token into a verified claim.
type Verifier interface {
	Verify(raw string) (identity.Claim, error)
}

// AuthMiddleware is the identity gate. A valid token puts its claim on the
// request context; a missing token passes through and the command pipeline
// decides whether the route needs one. A token that fails verification is
// rejected outright.
type AuthMiddleware struct {
	Verifier Verifier
	Logger   *slog.Logger
}

func (m AuthMiddleware) Handle(c *gin.Context) {
	token := extractBearerToken(c.GetHeader("Authorization"))
	if token == "" || m.Verifier == nil {
		c.Next()
		return
	}
	claim, err := m.Verifier.Verify(token)
	if err != nil {
		if m.Logger != nil {
			m.Logger.DebugContext(c.Request.Context(), "token rejected", slog.String("error", err.Error()))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{
			Error: "invalid bearer token",
			Kind:  reservation.KindUnauthorized,
		})
		return
	}
	c.Request = c.Request.WithContext(identity.WithClaim(c.Request.Context(), claim))
	c.Next()
}

func currentClaim(c *gin.Context) (identity.Claim, bool) {
	return identity.FromContext(c.Request.Context())
}

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
