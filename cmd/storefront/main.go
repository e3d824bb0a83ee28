package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/vitrine/storefront/app/controllers"
	"github.com/vitrine/storefront/app/repository"
	"github.com/vitrine/storefront/internal/pkg/archive"
	"github.com/vitrine/storefront/internal/pkg/billing"
	"github.com/vitrine/storefront/internal/pkg/cache"
	"github.com/vitrine/storefront/internal/pkg/database"
	"github.com/vitrine/storefront/internal/pkg/env"
	"github.com/vitrine/storefront/internal/pkg/jobqueue"
	"github.com/vitrine/storefront/internal/pkg/mail"
	"github.com/vitrine/storefront/internal/pkg/metrics/counter"
	"github.com/vitrine/storefront/internal/pkg/middleware"
	"github.com/vitrine/storefront/internal/pkg/router"
)

const (
	bodyLimit       = 1 << 20 // gateway payloads are a few KB
	shutdownTimeout = 10 * time.Second
)

func main() {
	app, cleanup := NewApplication()

	go func() {
		addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
		if err := app.Listen(addr); err != nil {
			log.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("[Storefront] Shutting down")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		log.Errorf("[Storefront] HTTP shutdown: %v", err)
	}
	cleanup()
}

// NewApplication wires stores, background jobs and routes. The returned
// function stops the background workers.
func NewApplication() (*fiber.App, func()) {
	env.SetupEnvFile()
	if env.IsDev() {
		log.SetLevel(log.LevelDebug)
	}
	database.SetupDatabase()
	cache.SetupCache()

	webhookCfg, err := billing.LoadWebhookConfig()
	if err != nil {
		log.Fatalf("[Storefront] Invalid webhook config: %v", err)
	}
	if webhookCfg.AccessToken == "" {
		log.Warn("[Storefront] ASAAS_WEBHOOK_TOKEN is empty, every webhook request will be refused")
	}

	repository.InitializeFactory(database.GetDB(), repository.StoreFromEnv())
	factory := repository.GetGlobalFactory()
	orders, err := factory.GetOrderRepository()
	if err != nil {
		log.Fatalf("[Storefront] Order store: %v", err)
	}

	opts := []billing.Option{billing.WithRegressionPolicy(webhookCfg.RegressionPolicy)}
	var (
		manager        *jobqueue.Manager
		outcomes       controllers.OutcomeRecorder
		totals         controllers.OutcomeTotals
		queueStats     controllers.QueueStatsReader
		limiterStorage fiber.Storage
	)

	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	redisErr := cache.Ping(pingCtx)
	cancel()
	if redisErr == nil {
		manager = jobqueue.GetManager()
		manager.UseProcessors(newProcessors(orders))
		manager.Start()

		dispatcher := manager.Dispatcher()
		opts = append(opts, billing.WithNotifier(dispatcher), billing.WithDeadLetterSink(dispatcher))

		recorder := counter.Default()
		outcomes, totals = recorder, recorder
		queueStats = manager.GetQueue()
		limiterStorage = middleware.NewLimiterStorage()
	} else {
		log.Warnf("[Storefront] Redis unavailable, running without notifications and counters: %v", redisErr)
	}

	svc, err := factory.NewService(opts...)
	if err != nil {
		log.Fatalf("[Storefront] Billing service: %v", err)
	}
	controllers.InitializePaymentWebhookController(svc, webhookCfg, outcomes)
	controllers.InitializeAdminWebhookController(svc, totals, queueStats)

	adminAuth, err := middleware.LoadAdminAuthConfig()
	if err != nil {
		log.Warnf("[Storefront] Admin API disabled: %v", err)
		adminAuth = nil
	}

	app := fiber.New(fiber.Config{
		AppName:   "storefront",
		BodyLimit: bodyLimit,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", middleware.RequireAdmin(adminAuth), monitor.New())

	// SWAGGER / OPENAPI
	if specPath := findOpenAPIDocument(); specPath != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: specPath,
			Path:     "v1",
		}))
	} else {
		log.Warn("[Storefront] OpenAPI document not found, /docs/api disabled")
	}

	// ROUTER
	router.InstallRouter(app, router.Options{
		AdminAuth:      adminAuth,
		LimiterStorage: limiterStorage,
	})

	return app, func() {
		if manager != nil {
			manager.Stop()
		}
	}
}

func newProcessors(orders billing.OrderRepository) *jobqueue.Processors {
	p := &jobqueue.Processors{Orders: orders, StoreName: "Vitrine"}

	if cfg, err := jobqueue.LoadConfig(); err != nil {
		log.Warnf("[Storefront] Invalid job queue config, admin alerts disabled: %v", err)
	} else {
		p.StoreName = cfg.StoreName
		p.AdminEmail = cfg.AdminEmail
	}

	if mailCfg := mail.LoadConfig(); mailCfg.Configured() {
		p.Mailer = mail.NewSMTPMailer(mailCfg)
	} else {
		log.Info("[Storefront] SMTP_HOST not set, notification mails are skipped")
	}

	archiveCfg, err := archive.LoadConfig()
	switch {
	case err != nil:
		log.Warnf("[Storefront] Dead-letter archive disabled: %v", err)
	case archiveCfg.IsEnabled():
		client, err := archive.NewClient(context.Background(), archiveCfg)
		if err != nil {
			log.Errorf("[Storefront] Dead-letter archive client: %v", err)
			break
		}
		p.Archive = client
	}
	return p
}

func findOpenAPIDocument() string {
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/storefront to project root
		"../../../", // Fallback
	}
	for _, path := range basePaths {
		candidate := path + "public/docs/v1/openapi.yml"
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}
