package jobqueue

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/vitrine/storefront/app/models"
	"github.com/vitrine/storefront/internal/pkg/billing"
)

// Enqueuer is the part of the queue the dispatcher writes to.
type Enqueuer interface {
	EnqueueJob(ctx context.Context, jobType JobType, payload map[string]interface{}) (*Job, error)
}

// Dispatcher turns reconciliation output into background jobs. It implements
// billing.TransitionNotifier and billing.DeadLetterSink.
type Dispatcher struct {
	queue Enqueuer
}

var (
	_ billing.TransitionNotifier = (*Dispatcher)(nil)
	_ billing.DeadLetterSink     = (*Dispatcher)(nil)
)

// NewDispatcher creates a dispatcher over a queue.
func NewDispatcher(q Enqueuer) *Dispatcher {
	return &Dispatcher{queue: q}
}

// NotifyTransition enqueues the customer mail for a fresh payment and the
// admin alert for anomalous transitions.
func (d *Dispatcher) NotifyTransition(ctx context.Context, t billing.Transition) error {
	var errs []error

	if t.To == models.OrderStatusPaid && t.From != models.OrderStatusPaid {
		payload := OrderPaidNotificationPayload{
			OrderID:     t.OrderID,
			PaymentID:   t.PaymentID,
			Event:       t.Event,
			ConfirmedAt: t.At,
		}
		if _, err := d.queue.EnqueueJob(ctx, JobTypeOrderPaidNotification, payload.ToMap()); err != nil {
			errs = append(errs, fmt.Errorf("enqueue paid notification for order %s: %w", t.OrderID, err))
		}
	}

	if t.Anomalous {
		payload := OrderStatusAnomalyPayload{
			OrderID:    t.OrderID,
			FromStatus: string(t.From),
			ToStatus:   string(t.To),
			Event:      t.Event,
			PaymentID:  t.PaymentID,
			At:         t.At,
		}
		if _, err := d.queue.EnqueueJob(ctx, JobTypeOrderStatusAnomaly, payload.ToMap()); err != nil {
			errs = append(errs, fmt.Errorf("enqueue anomaly alert for order %s: %w", t.OrderID, err))
		}
	}

	return errors.Join(errs...)
}

// DeadLetter enqueues an unmatched delivery for archiving.
func (d *Dispatcher) DeadLetter(ctx context.Context, dl billing.DeadLetter) error {
	payload := WebhookDeadLetterPayload{
		Provider:        dl.Provider,
		ProviderEventID: dl.ProviderEventID,
		Event:           dl.Event,
		PaymentID:       dl.PaymentID,
		Path:            string(dl.Path),
		Reason:          dl.Reason,
		Body:            string(dl.Payload),
		ReceivedAt:      dl.ReceivedAt,
	}
	job, err := d.queue.EnqueueJob(ctx, JobTypeWebhookDeadLetter, payload.ToMap())
	if err != nil {
		return fmt.Errorf("enqueue dead letter %s: %w", dl.ProviderEventID, err)
	}
	log.Infof("[JobQueue] Dead letter %s queued as job %s", dl.ProviderEventID, job.ID)
	return nil
}
