package controllers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vitrine/storefront/app/models"
	"github.com/vitrine/storefront/internal/pkg/billing"
)

var errDatabaseDown = errors.New("database unavailable")

type stubOrderStore struct {
	mu        sync.Mutex
	orders    map[string]*models.Order
	findErr   error
	calls     int
	writes    int
	lastWrite billing.StatusUpdate
}

func newStubOrderStore(orders ...models.Order) *stubOrderStore {
	s := &stubOrderStore{orders: make(map[string]*models.Order)}
	for i := range orders {
		o := orders[i]
		s.orders[o.ID] = &o
	}
	return s
}

func (s *stubOrderStore) FindOrderByID(_ context.Context, orderID string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.findErr != nil {
		return nil, s.findErr
	}
	o, ok := s.orders[orderID]
	if !ok {
		return nil, billing.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *stubOrderStore) FindOrderByPaymentID(_ context.Context, paymentID string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.findErr != nil {
		return nil, s.findErr
	}
	for _, o := range s.orders {
		if o.AsaasPaymentID != nil && *o.AsaasPaymentID == paymentID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, billing.ErrOrderNotFound
}

func (s *stubOrderStore) UpdateOrderStatus(_ context.Context, orderID string, update billing.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	o, ok := s.orders[orderID]
	if !ok {
		return billing.ErrOrderNotFound
	}
	o.Status = update.Status
	o.PaymentConfirmedAt = update.PaymentConfirmedAt
	s.writes++
	s.lastWrite = update
	return nil
}

func (s *stubOrderStore) status(id string) models.OrderStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id].Status
}

func (s *stubOrderStore) stats() (calls, writes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls, s.writes
}

type stubLedger struct {
	mu     sync.Mutex
	nextID uint
	rows   map[uint]*models.PaymentWebhookEvent
}

func newStubLedger() *stubLedger {
	return &stubLedger{rows: make(map[uint]*models.PaymentWebhookEvent)}
}

func (l *stubLedger) CreateWebhookEventIfNotExists(_ context.Context, event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, row := range l.rows {
		if row.Provider == event.Provider && row.ProviderEventID == event.ProviderEventID {
			cp := *row
			return false, &cp, nil
		}
	}
	l.nextID++
	cp := *event
	cp.ID = l.nextID
	l.rows[cp.ID] = &cp
	out := cp
	return true, &out, nil
}

func (l *stubLedger) MarkWebhookProcessed(_ context.Context, id uint, outcome, processingError string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	row, ok := l.rows[id]
	if !ok {
		return billing.ErrWebhookEventNotFound
	}
	now := time.Now()
	row.Outcome = outcome
	row.ProcessingError = processingError
	row.ProcessedAt = &now
	return nil
}

func (l *stubLedger) GetWebhookEvent(_ context.Context, id uint) (*models.PaymentWebhookEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	row, ok := l.rows[id]
	if !ok {
		return nil, billing.ErrWebhookEventNotFound
	}
	cp := *row
	return &cp, nil
}

func (l *stubLedger) ListWebhookEvents(_ context.Context, filter billing.WebhookEventFilter) ([]models.PaymentWebhookEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.PaymentWebhookEvent
	for id := uint(1); id <= l.nextID; id++ {
		row, ok := l.rows[id]
		if !ok || (filter.Outcome != "" && row.Outcome != filter.Outcome) {
			continue
		}
		out = append(out, *row)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (l *stubLedger) row(id uint) models.PaymentWebhookEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return *l.rows[id]
}

type countingRecorder struct {
	mu      sync.Mutex
	counts map[string]int64
	daily  map[string]map[string]int64
}

func (r *countingRecorder) AddWebhookOutcome(_ context.Context, outcome string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[string]int64)
	}
	r.counts[outcome]++
	return nil
}

func (r *countingRecorder) Totals(_ context.Context) (map[string]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int64, len(r.counts))
	for k, v := range r.counts {
		out[k] = v
	}
	return out, nil
}

func (r *countingRecorder) Day(_ context.Context, day time.Time) (map[string]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]int64{}
	for k, v := range r.daily[day.UTC().Format("2006-01-02")] {
		out[k] = v
	}
	return out, nil
}

type recordingDeadLetters struct {
	mu      sync.Mutex
	letters []billing.DeadLetter
}

func (d *recordingDeadLetters) DeadLetter(_ context.Context, dl billing.DeadLetter) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.letters = append(d.letters, dl)
	return nil
}

func (d *recordingDeadLetters) all() []billing.DeadLetter {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]billing.DeadLetter(nil), d.letters...)
}

func strPtr(s string) *string { return &s }
