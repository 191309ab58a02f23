// internal/app/router.go
package app

import (
	"context"
	"net/http"
	"time"

	adminHandler "towbook-service/internal/handlers/admin"
	bookingHandler "towbook-service/internal/handlers/booking"
	wsHandler "towbook-service/internal/handlers/websocket"
	"towbook-service/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handlers struct {
	BookingHandler *bookingHandler.BookingHandler
	AdminHandler   *adminHandler.AdminHandler
	WSHandler      *wsHandler.WebSocketHandler
	AuthMiddleware *middleware.AuthMiddleware
	DraftLimit     gin.HandlerFunc
	Health         HealthChecker
}

// HealthChecker reports readiness of the backing stores.
type HealthChecker interface {
	Check(ctx context.Context) map[string]string
	Stats() gin.H
}

func SetupRouter(r *gin.Engine, logger *zap.Logger, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		checks := h.Health.Check(ctx)
		status := http.StatusOK
		for name, result := range checks {
			if result != "ok" {
				status = http.StatusServiceUnavailable
				logger.Warn("health check failed", zap.String("component", name), zap.String("result", result))
			}
		}
		body := gin.H{"status": "ok", "checks": checks, "stats": h.Health.Stats()}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		c.JSON(status, body)
	})

	// ==================== WebSocket ====================
	r.GET("/ws", h.WSHandler.HandleConnection)

	// ==================== Bookings ====================
	bookings := api.Group("/bookings")
	bookings.Use(h.AuthMiddleware.OptionalAuth())
	{
		bookings.POST("/quote", h.BookingHandler.Quote)
		bookings.POST("/drafts", h.DraftLimit, h.BookingHandler.CreateDraft)
		bookings.GET("/drafts/:id", h.BookingHandler.GetDraft)
		bookings.PATCH("/drafts/:id", h.BookingHandler.UpdateDraft)
		bookings.PUT("/drafts/:id/addresses", h.BookingHandler.SelectAddresses)
		bookings.POST("/drafts/:id/confirm", h.BookingHandler.ConfirmPayment)
		bookings.DELETE("/drafts/:id", h.BookingHandler.AbandonDraft)
		bookings.GET("/:id", h.BookingHandler.GetBooking)
	}

	// ==================== Admin ====================
	admin := api.Group("/admin")
	admin.Use(h.AuthMiddleware.AdminOnly()...)
	{
		admin.GET("/bookings", h.AdminHandler.ListBookings)
		admin.GET("/bookings/:id", h.AdminHandler.GetBooking)
		admin.PUT("/bookings/:id/status", h.AdminHandler.UpdateStatus)
		admin.GET("/reconciliation", h.AdminHandler.ListReconciliations)
		admin.GET("/ws/stats", h.WSHandler.GetStats)
	}
}
