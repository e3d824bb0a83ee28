package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/vitrine/storefront/app/models"
	"github.com/vitrine/storefront/internal/pkg/archive"
	"github.com/vitrine/storefront/internal/pkg/billing"
	"github.com/vitrine/storefront/internal/pkg/mail"
)

// OrderFinder loads orders for notification jobs.
type OrderFinder interface {
	FindOrderByID(ctx context.Context, orderID string) (*models.Order, error)
}

// DeadLetterArchiver stores unmatched webhook payloads.
type DeadLetterArchiver interface {
	PutDeadLetter(ctx context.Context, providerEventID string, receivedAt time.Time, payload []byte, metadata map[string]string) (*archive.UploadResult, error)
}

// Processors executes the notification and archive jobs. Nil dependencies
// turn the matching job into a logged no-op.
type Processors struct {
	Orders     OrderFinder
	Mailer     mail.Sender
	Archive    DeadLetterArchiver
	StoreName  string
	AdminEmail string
}

// Register installs every handler on the queue.
func (p *Processors) Register(q *Queue) {
	q.Register(JobTypeOrderPaidNotification, p.ProcessOrderPaidNotification)
	q.Register(JobTypeOrderStatusAnomaly, p.ProcessOrderStatusAnomaly)
	q.Register(JobTypeWebhookDeadLetter, p.ProcessWebhookDeadLetter)
}

// ProcessOrderPaidNotification mails the customer that the payment arrived.
func (p *Processors) ProcessOrderPaidNotification(ctx context.Context, job *Job) error {
	payload, err := OrderPaidNotificationPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("failed to parse paid notification payload: %w", err)
	}
	if p.Orders == nil || p.Mailer == nil {
		log.Warnf("[JobQueue] Mail not configured, skipping paid notification for order %s", payload.OrderID)
		return nil
	}

	order, err := p.Orders.FindOrderByID(ctx, payload.OrderID)
	if err != nil {
		if errors.Is(err, billing.ErrOrderNotFound) {
			log.Warnf("[JobQueue] Order %s vanished before paid notification", payload.OrderID)
			return nil
		}
		return fmt.Errorf("failed to load order %s: %w", payload.OrderID, err)
	}
	if order.CustomerEmail == "" {
		log.Infof("[JobQueue] Order %s has no customer e-mail, skipping paid notification", order.ID)
		return nil
	}

	subject, body := mail.PaymentConfirmed(p.StoreName, order, payload.ConfirmedAt)
	return p.Mailer.Send(ctx, order.CustomerEmail, subject, body)
}

// ProcessOrderStatusAnomaly mails the admin about an unexpected transition.
func (p *Processors) ProcessOrderStatusAnomaly(ctx context.Context, job *Job) error {
	payload, err := OrderStatusAnomalyPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("failed to parse anomaly payload: %w", err)
	}

	log.Warnf("[JobQueue] Order %s moved %s -> %s by %s (payment %s)",
		payload.OrderID, payload.FromStatus, payload.ToStatus, payload.Event, payload.PaymentID)

	if p.Mailer == nil || p.AdminEmail == "" {
		return nil
	}
	subject, body := mail.StatusAnomaly(p.StoreName, payload.OrderID,
		models.OrderStatus(payload.FromStatus), models.OrderStatus(payload.ToStatus),
		payload.Event, payload.PaymentID, payload.At)
	return p.Mailer.Send(ctx, p.AdminEmail, subject, body)
}

// ProcessWebhookDeadLetter archives an unmatched delivery, or logs it when
// no archive is configured.
func (p *Processors) ProcessWebhookDeadLetter(ctx context.Context, job *Job) error {
	payload, err := WebhookDeadLetterPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("failed to parse dead letter payload: %w", err)
	}

	if p.Archive == nil {
		log.Warnf("[JobQueue] Dead letter %s (event=%s payment=%s path=%s): %s body=%s",
			payload.ProviderEventID, payload.Event, payload.PaymentID, payload.Path, payload.Reason, payload.Body)
		return nil
	}

	_, err = p.Archive.PutDeadLetter(ctx, payload.ProviderEventID, payload.ReceivedAt, []byte(payload.Body), map[string]string{
		"provider":   payload.Provider,
		"event":      payload.Event,
		"payment-id": payload.PaymentID,
		"path":       payload.Path,
		"reason":     payload.Reason,
	})
	return err
}
