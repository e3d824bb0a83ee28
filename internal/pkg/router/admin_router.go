package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/vitrine/storefront/app/controllers"
	"github.com/vitrine/storefront/internal/pkg/middleware"
)

const (
	adminRateLimit  = 60
	adminRateWindow = time.Minute
)

type AdminRouter struct {
	auth    *middleware.AdminAuthConfig
	storage fiber.Storage
}

func (h AdminRouter) InstallRouter(app *fiber.App) {
	ac := controllers.GetAdminWebhookController()
	if ac == nil {
		return
	}

	admin := app.Group("/api/admin",
		middleware.RateLimit(adminRateLimit, adminRateWindow, h.storage),
		middleware.RequireAdmin(h.auth),
	)

	webhooks := admin.Group("/webhooks")
	webhooks.Get("/events", ac.HandleListEvents)
	webhooks.Get("/events/:id", ac.HandleGetEvent)
	webhooks.Post("/events/:id/replay", ac.HandleReplayEvent)
	webhooks.Get("/stats", ac.HandleStats)
}

func NewAdminRouter(auth *middleware.AdminAuthConfig, storage fiber.Storage) *AdminRouter {
	return &AdminRouter{auth: auth, storage: storage}
}
