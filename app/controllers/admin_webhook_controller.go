package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/vitrine/storefront/internal/pkg/billing"
	"github.com/vitrine/storefront/internal/pkg/jobqueue"
)

const (
	defaultEventListLimit = 50
	maxEventListLimit     = 500
)

// OutcomeTotals reads the webhook outcome counters: running totals and the
// counters of a single UTC day.
type OutcomeTotals interface {
	Totals(ctx context.Context) (map[string]int64, error)
	Day(ctx context.Context, day time.Time) (map[string]int64, error)
}

// QueueStatsReader reads background queue depths.
type QueueStatsReader interface {
	Stats(ctx context.Context) (*jobqueue.Stats, error)
}

// AdminWebhookController exposes the webhook ledger to operators.
type AdminWebhookController struct {
	service  *billing.Service
	outcomes OutcomeTotals
	queue    QueueStatsReader
	now      func() time.Time
}

// NewAdminWebhookController creates the admin controller. outcomes and queue
// may be nil when Redis is not configured.
func NewAdminWebhookController(service *billing.Service, outcomes OutcomeTotals, queue QueueStatsReader) *AdminWebhookController {
	return &AdminWebhookController{
		service:  service,
		outcomes: outcomes,
		queue:    queue,
		now:      time.Now,
	}
}

var adminWebhookController *AdminWebhookController

// InitializeAdminWebhookController installs the global admin controller.
func InitializeAdminWebhookController(service *billing.Service, outcomes OutcomeTotals, queue QueueStatsReader) {
	adminWebhookController = NewAdminWebhookController(service, outcomes, queue)
}

// GetAdminWebhookController returns the global admin controller.
func GetAdminWebhookController() *AdminWebhookController {
	return adminWebhookController
}

func (ac *AdminWebhookController) handleError(c *fiber.Ctx, message string, err error) error {
	switch {
	case errors.Is(err, billing.ErrLedgerUnavailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, billing.ErrWebhookEventNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	log.Errorf("[AdminWebhook] %s: %v", message, err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": message + ": " + err.Error()})
}

// HandleListEvents returns recent ledger rows, newest first.
// Query: limit (default 50, max 500), outcome.
func (ac *AdminWebhookController) HandleListEvents(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultEventListLimit)
	if limit <= 0 {
		limit = defaultEventListLimit
	}
	if limit > maxEventListLimit {
		limit = maxEventListLimit
	}

	events, err := ac.service.ListWebhookEvents(c.UserContext(), billing.WebhookEventFilter{
		Outcome: strings.TrimSpace(c.Query("outcome")),
		Limit:   limit,
	})
	if err != nil {
		return ac.handleError(c, "failed to list webhook events", err)
	}
	return c.JSON(fiber.Map{
		"events": events,
		"count":  len(events),
	})
}

// HandleGetEvent returns a single ledger row.
func (ac *AdminWebhookController) HandleGetEvent(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid event id"})
	}
	event, err := ac.service.GetWebhookEvent(c.UserContext(), uint(id))
	if err != nil {
		return ac.handleError(c, "failed to load webhook event", err)
	}
	return c.JSON(event)
}

// HandleReplayEvent re-runs reconciliation for a stored delivery.
func (ac *AdminWebhookController) HandleReplayEvent(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid event id"})
	}

	res, err := ac.service.Replay(c.UserContext(), uint(id))
	if err != nil {
		if errors.Is(err, billing.ErrLedgerUnavailable) || errors.Is(err, billing.ErrWebhookEventNotFound) {
			return ac.handleError(c, "failed to replay webhook event", err)
		}
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	}

	log.Infof("[AdminWebhook] Replayed event %d: %s via %s key", id, res.Outcome, res.Path)

	resp := fiber.Map{
		"outcome":  res.Outcome,
		"path":     res.Path,
		"order_id": res.OrderID,
	}
	if res.Transition != nil {
		resp["from"] = res.Transition.From
		resp["to"] = res.Transition.To
		resp["anomalous"] = res.Transition.Anomalous
	}
	if res.Err != nil {
		resp["error"] = res.Err.Error()
		return c.Status(fiber.StatusBadGateway).JSON(resp)
	}
	return c.JSON(resp)
}

// HandleStats returns outcome counters and queue depths.
func (ac *AdminWebhookController) HandleStats(c *fiber.Ctx) error {
	ctx := c.UserContext()
	resp := fiber.Map{}

	if ac.outcomes != nil {
		totals, err := ac.outcomes.Totals(ctx)
		if err != nil {
			return ac.handleError(c, "failed to read outcome counters", err)
		}
		resp["outcomes"] = totals

		today, err := ac.outcomes.Day(ctx, ac.now())
		if err != nil {
			return ac.handleError(c, "failed to read today's outcome counters", err)
		}
		resp["today"] = today
	}
	if ac.queue != nil {
		stats, err := ac.queue.Stats(ctx)
		if err != nil {
			return ac.handleError(c, "failed to read queue stats", err)
		}
		resp["queue"] = stats
	}
	return c.JSON(resp)
}
