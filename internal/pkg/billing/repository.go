package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vitrine/storefront/app/models"
)

var (
	// ErrOrderNotFound is returned by order stores when no order matches a key.
	ErrOrderNotFound = errors.New("order not found")
	// ErrAmbiguousPayment is returned when a gateway payment id matches more
	// than one order. Each order owns its own Asaas payment.
	ErrAmbiguousPayment = errors.New("payment id matches more than one order")
	// ErrWebhookEventNotFound is returned when a ledger row does not exist.
	ErrWebhookEventNotFound = errors.New("webhook event not found")
)

// OrderRepository is the order store used by reconciliation.
type OrderRepository interface {
	FindOrderByID(ctx context.Context, orderID string) (*models.Order, error)
	// FindOrderByPaymentID returns ErrAmbiguousPayment when more than one
	// order carries the payment id.
	FindOrderByPaymentID(ctx context.Context, paymentID string) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, update StatusUpdate) error
}

// Ledger persists webhook deliveries.
type Ledger interface {
	CreateWebhookEventIfNotExists(ctx context.Context, event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, id uint, outcome, processingError string) error
	GetWebhookEvent(ctx context.Context, id uint) (*models.PaymentWebhookEvent, error)
	ListWebhookEvents(ctx context.Context, filter WebhookEventFilter) ([]models.PaymentWebhookEvent, error)
}

// WebhookEventFilter narrows ledger listings.
type WebhookEventFilter struct {
	Outcome string
	Limit   int
}

type gormOrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates an order store backed by GORM.
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &gormOrderRepository{db: db}
}

func (r *gormOrderRepository) FindOrderByID(ctx context.Context, orderID string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Where("id = ?", orderID).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *gormOrderRepository) FindOrderByPaymentID(ctx context.Context, paymentID string) (*models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).Where("asaas_payment_id = ?", paymentID).Limit(2).Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return SingleOrder(orders, paymentID)
}

// SingleOrder picks the one order a payment id lookup resolves to. Stores
// query with a limit of two so a duplicated payment id is reported instead of
// silently updating an arbitrary row.
func SingleOrder(orders []models.Order, paymentID string) (*models.Order, error) {
	switch len(orders) {
	case 0:
		return nil, ErrOrderNotFound
	case 1:
		return &orders[0], nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguousPayment, paymentID)
	}
}


func (r *gormOrderRepository) UpdateOrderStatus(ctx context.Context, orderID string, update StatusUpdate) error {
	var confirmedAt interface{}
	if update.PaymentConfirmedAt != nil {
		confirmedAt = *update.PaymentConfirmedAt
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.Order{}).
			Where("id = ?", orderID).
			Updates(map[string]interface{}{
				"status":               update.Status,
				"payment_confirmed_at": confirmedAt,
			}).Error
		if err != nil {
			return err
		}
		if update.Change != nil {
			return tx.Create(update.Change).Error
		}
		return nil
	})
}

type gormLedger struct {
	db *gorm.DB
}

// NewLedger creates a webhook ledger backed by GORM.
func NewLedger(db *gorm.DB) Ledger {
	return &gormLedger{db: db}
}

func (r *gormLedger) CreateWebhookEventIfNotExists(ctx context.Context, event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	db := r.db.WithContext(ctx)
	tx := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.PaymentWebhookEvent
	if err := db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormLedger) MarkWebhookProcessed(ctx context.Context, id uint, outcome, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"outcome":          outcome,
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.WithContext(ctx).Model(&models.PaymentWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormLedger) GetWebhookEvent(ctx context.Context, id uint) (*models.PaymentWebhookEvent, error) {
	var event models.PaymentWebhookEvent
	if err := r.db.WithContext(ctx).First(&event, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWebhookEventNotFound
		}
		return nil, err
	}
	return &event, nil
}

func (r *gormLedger) ListWebhookEvents(ctx context.Context, filter WebhookEventFilter) ([]models.PaymentWebhookEvent, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q := r.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit)
	if filter.Outcome != "" {
		q = q.Where("outcome = ?", filter.Outcome)
	}
	var events []models.PaymentWebhookEvent
	err := q.Find(&events).Error
	return events, err
}
