package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"stayvista/internal/infra/config"
	"stayvista/internal/infra/obs"
	"stayvista/internal/infra/tracing"
)

type Handlers struct {
	Reservation    ReservationHTTP
	Room           RoomHTTP
	Booking        BookingHTTP
	AuthMiddleware gin.HandlerFunc
	// RateLimit guards the reservation endpoints; nil disables it.
	RateLimit gin.HandlerFunc
	Metrics   *obs.Metrics
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewRouter(cfg, obsMW, health, h),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func NewRouter(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *gin.Engine {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(tracing.Middleware())
	router.Use(obsMW.AccessLog())
	if h.Metrics != nil {
		router.Use(h.Metrics.Middleware())
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", idempotencyHeader},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			"Retry-After",
			obs.RequestIDHeader,
		},
		MaxAge: 12 * time.Hour,
	}))

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)
	if h.Metrics != nil {
		router.GET("/metrics", h.Metrics.Handler())
	}

	api := router.Group("/api/v1")
	if h.AuthMiddleware != nil {
		api.Use(h.AuthMiddleware)
	}
	if h.Reservation != nil {
		limited := api.Group("")
		if h.RateLimit != nil {
			limited.Use(h.RateLimit)
		}
		limited.POST("/payments/intents", h.Reservation.Authorize)
		limited.POST("/bookings", h.Reservation.Finalize)
		limited.PATCH("/rooms/:id/release", h.Reservation.Release)
		limited.POST("/reservations/intent", h.Reservation.Authorize)
		limited.POST("/reservations/finalize", h.Reservation.Finalize)
	}
	if h.Room != nil {
		api.GET("/rooms", h.Room.Catalog)
		api.GET("/rooms/:id", h.Room.Get)
		api.POST("/rooms", h.Room.Create)
		api.GET("/host/rooms", h.Room.HostRooms)
	}
	if h.Booking != nil {
		api.GET("/me/bookings", h.Booking.Mine)
		api.GET("/host/bookings", h.Booking.Hosted)
	}

	return router
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}
