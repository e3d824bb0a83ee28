package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/vitrine/storefront/app/models"
	"github.com/vitrine/storefront/internal/pkg/billing"
)

const (
	corsAllowOrigin  = "*"
	corsAllowHeaders = "authorization, x-client-info, apikey, content-type, asaas-access-token"

	defaultWebhookTimeout = 15 * time.Second
)

// OutcomeRecorder counts processed webhook outcomes.
type OutcomeRecorder interface {
	AddWebhookOutcome(ctx context.Context, outcome string) error
}

// PaymentWebhookController receives Asaas payment notifications.
type PaymentWebhookController struct {
	service  *billing.Service
	config   *billing.WebhookConfig
	outcomes OutcomeRecorder
	timeout  time.Duration
	now      func() time.Time
}

// NewPaymentWebhookController creates the receiver. The webhook config is
// read once at startup; outcomes may be nil.
func NewPaymentWebhookController(service *billing.Service, config *billing.WebhookConfig, outcomes OutcomeRecorder) *PaymentWebhookController {
	return &PaymentWebhookController{
		service:  service,
		config:   config,
		outcomes: outcomes,
		timeout:  defaultWebhookTimeout,
		now:      time.Now,
	}
}

var paymentWebhookController *PaymentWebhookController

// InitializePaymentWebhookController installs the global receiver used by the router.
func InitializePaymentWebhookController(service *billing.Service, config *billing.WebhookConfig, outcomes OutcomeRecorder) {
	paymentWebhookController = NewPaymentWebhookController(service, config, outcomes)
}

// GetPaymentWebhookController returns the global receiver.
func GetPaymentWebhookController() *PaymentWebhookController {
	return paymentWebhookController
}

func setCORSHeaders(c *fiber.Ctx) {
	c.Set(fiber.HeaderAccessControlAllowOrigin, corsAllowOrigin)
	c.Set(fiber.HeaderAccessControlAllowHeaders, corsAllowHeaders)
}

// HandleAsaasWebhook authenticates, parses and reconciles one delivery.
func (pc *PaymentWebhookController) HandleAsaasWebhook(c *fiber.Ctx) error {
	setCORSHeaders(c)
	if c.Method() == fiber.MethodOptions {
		return c.Status(fiber.StatusOK).SendString("ok")
	}

	if err := pc.config.CheckToken(c.Get(billing.AccessTokenHeader)); err != nil {
		if errors.Is(err, billing.ErrMissingAccessToken) {
			log.Error("[PaymentWebhook] ASAAS_WEBHOOK_TOKEN is not configured, refusing request")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Server configuration error"})
		}
		log.Warnf("[PaymentWebhook] Rejected request with invalid access token from %s", clientIP(c))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	rawBody := append([]byte(nil), c.Body()...)
	event, err := billing.ParseAsaasWebhookEvent(rawBody)
	if err != nil {
		log.Errorf("[PaymentWebhook] Failed to parse payload: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	log.Infof("[PaymentWebhook] Received %s payment=%s status=%s externalReference=%s",
		event.Event, event.Payment.ID, event.Payment.Status, event.Payment.ExternalReference)

	ctx, cancel := context.WithTimeout(c.UserContext(), pc.timeout)
	defer cancel()

	providerEventID := billing.ProviderEventID(event, rawBody)
	ledgerID, duplicate := pc.recordDelivery(ctx, providerEventID, event, rawBody)
	if duplicate {
		log.Infof("[PaymentWebhook] Event %s already processed, acknowledging redelivery", providerEventID)
		pc.count(ctx, models.WebhookOutcomeDuplicate)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true})
	}

	if !event.HasPaymentData() {
		pc.finish(ctx, ledgerID, models.WebhookOutcomeNoPayment, nil)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "No payment data"})
	}

	if !billing.IsHandledAsaasEvent(event.Event) {
		log.Infof("[PaymentWebhook] Ignoring event %s", event.Event)
		pc.finish(ctx, ledgerID, models.WebhookOutcomeIgnored, nil)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true})
	}

	result := pc.service.Reconcile(ctx, event)
	outcome, procErr := billing.LedgerOutcome(result)
	pc.finish(ctx, ledgerID, outcome, procErr)

	if result.Outcome == billing.OutcomeNotFound {
		pc.service.DeadLetter(ctx, billing.DeadLetter{
			Provider:        models.PaymentProviderAsaas,
			ProviderEventID: providerEventID,
			Event:           event.Event,
			PaymentID:       event.Payment.ID,
			Path:            result.Path,
			Reason:          procErr.Error(),
			Payload:         rawBody,
			ReceivedAt:      pc.now(),
		})
	}

	if result.Retryable() {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": result.Err.Error()})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true})
}

// recordDelivery stores the delivery on the ledger. Ledger failures never
// block processing. duplicate is true when an earlier delivery of the same
// event was already applied cleanly.
func (pc *PaymentWebhookController) recordDelivery(ctx context.Context, providerEventID string, event *billing.AsaasWebhookEvent, rawBody []byte) (uint, bool) {
	if !pc.service.HasLedger() {
		return 0, false
	}

	created, stored, err := pc.service.RecordWebhookEvent(ctx, billing.WebhookEventInput{
		Provider:          models.PaymentProviderAsaas,
		ProviderEventID:   providerEventID,
		EventType:         event.Event,
		PaymentID:         event.Payment.ID,
		ExternalReference: event.Payment.ExternalReference,
		Payload:           rawBody,
		TokenValid:        true,
	})
	if err != nil {
		log.Errorf("[PaymentWebhook] Failed to persist event %s: %v", providerEventID, err)
		return 0, false
	}
	if !created && stored.ProcessedCleanly() {
		return stored.ID, true
	}
	return stored.ID, false
}

func (pc *PaymentWebhookController) finish(ctx context.Context, ledgerID uint, outcome string, procErr error) {
	if ledgerID != 0 {
		if err := pc.service.MarkWebhookProcessed(ctx, ledgerID, outcome, procErr); err != nil {
			log.Errorf("[PaymentWebhook] Failed to mark event %d as %s: %v", ledgerID, outcome, err)
		}
	}
	pc.count(ctx, outcome)
}

func (pc *PaymentWebhookController) count(ctx context.Context, outcome string) {
	if pc.outcomes == nil {
		return
	}
	if err := pc.outcomes.AddWebhookOutcome(ctx, outcome); err != nil {
		log.Warnf("[PaymentWebhook] Failed to count outcome %s: %v", outcome, err)
	}
}
