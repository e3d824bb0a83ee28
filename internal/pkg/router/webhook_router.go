package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/vitrine/storefront/app/controllers"
)

// WebhookPaths lists the receiver mount points. The second one keeps the
// URL already registered in the gateway panel working.
var WebhookPaths = []string{
	"/webhooks/asaas",
	"/functions/v1/asaas-webhook",
}

type WebhookRouter struct {
}

func (h WebhookRouter) InstallRouter(app *fiber.App) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	pc := controllers.GetPaymentWebhookController()
	if pc == nil {
		return
	}
	for _, path := range WebhookPaths {
		app.Options(path, pc.HandleAsaasWebhook)
		app.Post(path, pc.HandleAsaasWebhook)
	}
}

func NewWebhookRouter() *WebhookRouter {
	return &WebhookRouter{}
}
