package billing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/vitrine/storefront/app/models"
)

var errStoreDown = errors.New("connection refused")

// memoryOrderStore is an in-memory OrderRepository that records every write.
type memoryOrderStore struct {
	mu        sync.Mutex
	orders    map[string]*models.Order
	updates   []StatusUpdate
	findErr   error
	updateErr error
}

func newMemoryOrderStore(orders ...models.Order) *memoryOrderStore {
	s := &memoryOrderStore{orders: make(map[string]*models.Order)}
	for i := range orders {
		o := orders[i]
		s.orders[o.ID] = &o
	}
	return s
}

func (s *memoryOrderStore) FindOrderByID(_ context.Context, orderID string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	o, ok := s.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *memoryOrderStore) FindOrderByPaymentID(_ context.Context, paymentID string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	var matches []models.Order
	for _, o := range s.orders {
		if o.AsaasPaymentID != nil && *o.AsaasPaymentID == paymentID {
			matches = append(matches, *o)
		}
	}
	return SingleOrder(matches, paymentID)
}

func (s *memoryOrderStore) UpdateOrderStatus(_ context.Context, orderID string, update StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	o, ok := s.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	o.Status = update.Status
	o.PaymentConfirmedAt = update.PaymentConfirmedAt
	s.updates = append(s.updates, update)
	return nil
}

func (s *memoryOrderStore) order(id string) models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.orders[id]
}

func (s *memoryOrderStore) writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.updates)
}

// memoryLedger is an in-memory Ledger keyed by provider and event id.
type memoryLedger struct {
	mu     sync.Mutex
	nextID uint
	rows   map[uint]*models.PaymentWebhookEvent
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{rows: make(map[uint]*models.PaymentWebhookEvent)}
}

func (l *memoryLedger) CreateWebhookEventIfNotExists(_ context.Context, event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, row := range l.rows {
		if row.Provider == event.Provider && row.ProviderEventID == event.ProviderEventID {
			cp := *row
			return false, &cp, nil
		}
	}
	l.nextID++
	event.ID = l.nextID
	event.CreatedAt = time.Now()
	stored := *event
	l.rows[stored.ID] = &stored
	cp := stored
	return true, &cp, nil
}

func (l *memoryLedger) MarkWebhookProcessed(_ context.Context, id uint, outcome, processingError string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	row, ok := l.rows[id]
	if !ok {
		return ErrWebhookEventNotFound
	}
	now := time.Now()
	row.Outcome = outcome
	row.ProcessedAt = &now
	row.ProcessingError = processingError
	return nil
}

func (l *memoryLedger) GetWebhookEvent(_ context.Context, id uint) (*models.PaymentWebhookEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	row, ok := l.rows[id]
	if !ok {
		return nil, ErrWebhookEventNotFound
	}
	cp := *row
	return &cp, nil
}

func (l *memoryLedger) ListWebhookEvents(_ context.Context, filter WebhookEventFilter) ([]models.PaymentWebhookEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.PaymentWebhookEvent
	for id := l.nextID; id > 0; id-- {
		row, ok := l.rows[id]
		if !ok {
			continue
		}
		if filter.Outcome != "" && row.Outcome != filter.Outcome {
			continue
		}
		out = append(out, *row)
	}
	return out, nil
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyTransition(ctx context.Context, t Transition) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

type mockDeadLetterSink struct {
	mock.Mock
}

func (m *mockDeadLetterSink) DeadLetter(ctx context.Context, dl DeadLetter) error {
	args := m.Called(ctx, dl)
	return args.Error(0)
}

func strPtr(s string) *string { return &s }

var fixedNow = time.Date(2024, 6, 12, 16, 45, 3, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }
