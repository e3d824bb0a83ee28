package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/vitrine/storefront/app/models"
)

// ErrLedgerUnavailable is returned by ledger operations when the service runs
// without a database.
var ErrLedgerUnavailable = errors.New("webhook ledger is not configured")

// TransitionNotifier receives every successful status write. Consumers (mail,
// alerts) live outside this package.
type TransitionNotifier interface {
	NotifyTransition(ctx context.Context, t Transition) error
}

// DeadLetterSink receives events that could not be matched to an order.
type DeadLetterSink interface {
	DeadLetter(ctx context.Context, dl DeadLetter) error
}

// Service reconciles gateway payment events with stored orders.
type Service struct {
	orders      OrderRepository
	ledger      Ledger
	notifier    TransitionNotifier
	deadLetters DeadLetterSink
	policy      string
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLedger enables webhook delivery persistence.
func WithLedger(l Ledger) Option {
	return func(s *Service) { s.ledger = l }
}

// WithNotifier sets the post-transition consumer.
func WithNotifier(n TransitionNotifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithDeadLetterSink sets the consumer for unmatched events.
func WithDeadLetterSink(d DeadLetterSink) Option {
	return func(s *Service) { s.deadLetters = d }
}

// WithRegressionPolicy selects how illegal transitions are handled.
func WithRegressionPolicy(policy string) Option {
	return func(s *Service) { s.policy = normalizeRegressionPolicy(policy) }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a reconciliation service over an order store.
func NewService(orders OrderRepository, opts ...Option) *Service {
	s := &Service{
		orders: orders,
		policy: RegressionPolicyApply,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewServiceFromDB creates a service whose order store and ledger share a
// GORM handle.
func NewServiceFromDB(db *gorm.DB, opts ...Option) *Service {
	return NewService(NewOrderRepository(db), append([]Option{WithLedger(NewLedger(db))}, opts...)...)
}

// Reconcile resolves the order an event refers to and applies the mapped
// status. It never panics and reports every failure through the Result.
func (s *Service) Reconcile(ctx context.Context, ev *AsaasWebhookEvent) Result {
	target := MapAsaasStatus(ev.Payment.Status)
	ref := strings.TrimSpace(ev.Payment.ExternalReference)
	paymentID := strings.TrimSpace(ev.Payment.ID)

	res := Result{Path: PathPrimary, OrderID: ref}
	var (
		order *models.Order
		err   error
	)
	if ref != "" {
		order, err = s.orders.FindOrderByID(ctx, ref)
	} else {
		res.Path = PathFallback
		order, err = s.orders.FindOrderByPaymentID(ctx, paymentID)
	}
	if err != nil {
		return s.failed(res, paymentID, err)
	}
	res.OrderID = order.ID

	from := order.Status
	// A stored status outside the closed set is repaired by the write and
	// reported like an illegal transition, but never skipped.
	unknownSource := !from.IsValid()
	if unknownSource {
		log.Warnf("[PaymentWebhook] Order %s has unknown stored status %q", order.ID, from)
	}
	illegal := !IsLegalTransition(from, target)
	anomalous := illegal || unknownSource
	if illegal && s.policy == RegressionPolicySkip {
		log.Warnf("[PaymentWebhook] Skipping illegal transition for order %s: %s -> %s (event=%s)", order.ID, from, target, ev.Event)
		res.Outcome = OutcomeSkipped
		return res
	}

	now := s.now()
	update := StatusUpdate{
		Status: target,
		Change: &models.OrderStatusChange{
			OrderID:    order.ID,
			FromStatus: from,
			ToStatus:   target,
			EventType:  ev.Event,
			PaymentID:  paymentID,
			Anomalous:  anomalous,
		},
	}
	if target == models.OrderStatusPaid {
		update.PaymentConfirmedAt = &now
	}

	if err := s.orders.UpdateOrderStatus(ctx, order.ID, update); err != nil {
		return s.failed(res, paymentID, err)
	}

	if illegal {
		log.Warnf("[PaymentWebhook] Applied illegal transition for order %s: %s -> %s (event=%s)", order.ID, from, target, ev.Event)
	}
	log.Infof("[PaymentWebhook] Order %s updated to %s via %s key", order.ID, target, res.Path)

	t := Transition{
		OrderID:   order.ID,
		From:      from,
		To:        target,
		Event:     ev.Event,
		PaymentID: paymentID,
		Anomalous: anomalous,
		At:        now,
	}
	res.Outcome = OutcomeResolved
	res.Transition = &t

	if s.notifier != nil {
		if err := s.notifier.NotifyTransition(ctx, t); err != nil {
			log.Errorf("[PaymentWebhook] Transition notification for order %s failed: %v", order.ID, err)
		}
	}
	return res
}

func (s *Service) failed(res Result, paymentID string, err error) Result {
	if errors.Is(err, ErrOrderNotFound) {
		res.Outcome = OutcomeNotFound
		if res.Path == PathPrimary {
			log.Warnf("[PaymentWebhook] No order with id %s", res.OrderID)
		} else {
			log.Warnf("[PaymentWebhook] No order with asaas_payment_id %s", paymentID)
		}
		return res
	}
	res.Outcome = OutcomeStorageError
	res.Err = err
	if res.Path == PathPrimary {
		log.Errorf("[PaymentWebhook] Failed to update order %s: %v", res.OrderID, err)
	} else {
		log.Errorf("[PaymentWebhook] Failed to update order by payment %s: %v", paymentID, err)
	}
	return res
}

// DeadLetter hands an unmatched event to the configured sink.
func (s *Service) DeadLetter(ctx context.Context, dl DeadLetter) {
	if s.deadLetters == nil {
		return
	}
	if err := s.deadLetters.DeadLetter(ctx, dl); err != nil {
		log.Errorf("[PaymentWebhook] Dead-letter hand-off for event %s failed: %v", dl.ProviderEventID, err)
	}
}

// HasLedger reports whether webhook deliveries are persisted.
func (s *Service) HasLedger() bool {
	return s.ledger != nil
}

// RecordWebhookEvent persists a delivery idempotently by provider event id.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.PaymentWebhookEvent, error) {
	if s.ledger == nil {
		return false, nil, ErrLedgerUnavailable
	}
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		return false, nil, errors.New("provider_event_id is required")
	}

	payload := in.Payload
	if !jsonValid(payload) {
		payload = nil
	}

	event := &models.PaymentWebhookEvent{
		Provider:          provider,
		ProviderEventID:   eventID,
		EventType:         strings.TrimSpace(in.EventType),
		PaymentID:         strings.TrimSpace(in.PaymentID),
		ExternalReference: strings.TrimSpace(in.ExternalReference),
		Payload:           payload,
		TokenValid:        in.TokenValid,
		Outcome:           models.WebhookOutcomeReceived,
	}
	return s.ledger.CreateWebhookEventIfNotExists(ctx, event)
}

// MarkWebhookProcessed stores the outcome of a delivery.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, outcome string, processingErr error) error {
	if s.ledger == nil {
		return ErrLedgerUnavailable
	}
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.ledger.MarkWebhookProcessed(ctx, webhookEventID, outcome, errMsg)
}

// GetWebhookEvent loads a ledger row.
func (s *Service) GetWebhookEvent(ctx context.Context, id uint) (*models.PaymentWebhookEvent, error) {
	if s.ledger == nil {
		return nil, ErrLedgerUnavailable
	}
	return s.ledger.GetWebhookEvent(ctx, id)
}

// ListWebhookEvents returns recent ledger rows.
func (s *Service) ListWebhookEvents(ctx context.Context, filter WebhookEventFilter) ([]models.PaymentWebhookEvent, error) {
	if s.ledger == nil {
		return nil, ErrLedgerUnavailable
	}
	return s.ledger.ListWebhookEvents(ctx, filter)
}

// Replay re-runs reconciliation for a stored delivery, typically a dead
// letter whose order exists by now.
func (s *Service) Replay(ctx context.Context, webhookEventID uint) (Result, error) {
	stored, err := s.GetWebhookEvent(ctx, webhookEventID)
	if err != nil {
		return Result{}, err
	}
	ev, err := ParseAsaasWebhookEvent(stored.Payload)
	if err != nil {
		return Result{}, fmt.Errorf("stored payload of event %d is not valid JSON: %w", webhookEventID, err)
	}
	if !ev.HasPaymentData() {
		return Result{}, fmt.Errorf("event %d carries no payment data", webhookEventID)
	}
	if !IsHandledAsaasEvent(ev.Event) {
		return Result{}, fmt.Errorf("event %d has unhandled type %q", webhookEventID, ev.Event)
	}

	res := s.Reconcile(ctx, ev)
	outcome, procErr := LedgerOutcome(res)
	if err := s.MarkWebhookProcessed(ctx, stored.ID, outcome, procErr); err != nil {
		log.Errorf("[PaymentWebhook] Failed to mark replayed event %d: %v", stored.ID, err)
	}
	return res, nil
}

// LedgerOutcome translates a reconciliation result into the ledger outcome
// and processing error stored for the delivery.
func LedgerOutcome(res Result) (string, error) {
	switch res.Outcome {
	case OutcomeResolved:
		return models.WebhookOutcomeResolved, nil
	case OutcomeSkipped:
		return models.WebhookOutcomeSkipped, nil
	case OutcomeNotFound:
		if res.Path == PathPrimary {
			return models.WebhookOutcomeNotFound, fmt.Errorf("no order with id %s", res.OrderID)
		}
		return models.WebhookOutcomeNotFound, errors.New("no order matches the payment id")
	default:
		if res.Err == nil {
			return models.WebhookOutcomeStorageError, errors.New("storage error")
		}
		return models.WebhookOutcomeStorageError, res.Err
	}
}
