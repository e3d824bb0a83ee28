package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/vitrine/storefront/internal/pkg/middleware"
)

// Router registers a group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Options carries the middleware dependencies resolved at startup.
type Options struct {
	AdminAuth      *middleware.AdminAuthConfig
	LimiterStorage fiber.Storage
}

func InstallRouter(app *fiber.App, opts Options) {
	setup(app, NewWebhookRouter(), NewAdminRouter(opts.AdminAuth, opts.LimiterStorage))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
