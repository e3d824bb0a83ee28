package billing

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vitrine/storefront/app/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Order{}, &models.OrderStatusChange{}, &models.PaymentWebhookEvent{}))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestGormOrderRepository_FindAndUpdate(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.Create(&models.Order{ID: "o1", Status: models.OrderStatusAwaitingPayment, AsaasPaymentID: strPtr("pay_1")}).Error)
	repo := NewOrderRepository(db)
	ctx := context.Background()

	byID, err := repo.FindOrderByID(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusAwaitingPayment, byID.Status)

	byPayment, err := repo.FindOrderByPaymentID(ctx, "pay_1")
	require.NoError(t, err)
	assert.Equal(t, "o1", byPayment.ID)

	_, err = repo.FindOrderByID(ctx, "nope")
	assert.ErrorIs(t, err, ErrOrderNotFound)
	_, err = repo.FindOrderByPaymentID(ctx, "pay_nope")
	assert.ErrorIs(t, err, ErrOrderNotFound)

	now := fixedNow
	err = repo.UpdateOrderStatus(ctx, "o1", StatusUpdate{
		Status:             models.OrderStatusPaid,
		PaymentConfirmedAt: &now,
		Change: &models.OrderStatusChange{
			OrderID:    "o1",
			FromStatus: models.OrderStatusAwaitingPayment,
			ToStatus:   models.OrderStatusPaid,
			EventType:  EventPaymentConfirmed,
			PaymentID:  "pay_1",
		},
	})
	require.NoError(t, err)

	var stored models.Order
	require.NoError(t, db.First(&stored, "id = ?", "o1").Error)
	assert.Equal(t, models.OrderStatusPaid, stored.Status)
	require.NotNil(t, stored.PaymentConfirmedAt)

	var changes []models.OrderStatusChange
	require.NoError(t, db.Find(&changes).Error)
	require.Len(t, changes, 1)
	assert.Equal(t, models.OrderStatusPaid, changes[0].ToStatus)

	require.NoError(t, repo.UpdateOrderStatus(ctx, "o1", StatusUpdate{Status: models.OrderStatusRefunded}))
	require.NoError(t, db.First(&stored, "id = ?", "o1").Error)
	assert.Equal(t, models.OrderStatusRefunded, stored.Status)
	assert.Nil(t, stored.PaymentConfirmedAt)
}

func TestGormOrderRepository_PaymentIDIsUnique(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.Create(&models.Order{ID: "o1", Status: models.OrderStatusPending, AsaasPaymentID: strPtr("pay_1")}).Error)
	assert.Error(t, db.Create(&models.Order{ID: "o2", Status: models.OrderStatusPending, AsaasPaymentID: strPtr("pay_1")}).Error)

	require.NoError(t, db.Create(&models.Order{ID: "o3", Status: models.OrderStatusPending}).Error)
	require.NoError(t, db.Create(&models.Order{ID: "o4", Status: models.OrderStatusPending}).Error, "orders without a payment id")
}

func TestSingleOrder(t *testing.T) {
	_, err := SingleOrder(nil, "pay_1")
	assert.ErrorIs(t, err, ErrOrderNotFound)

	order, err := SingleOrder([]models.Order{{ID: "o1"}}, "pay_1")
	require.NoError(t, err)
	assert.Equal(t, "o1", order.ID)

	_, err = SingleOrder([]models.Order{{ID: "o1"}, {ID: "o2"}}, "pay_1")
	assert.ErrorIs(t, err, ErrAmbiguousPayment)
	assert.Contains(t, err.Error(), "pay_1")
}

func TestGormLedger_CreateIfNotExists(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(db)
	ctx := context.Background()

	first := &models.PaymentWebhookEvent{
		Provider:        models.PaymentProviderAsaas,
		ProviderEventID: "evt_1",
		EventType:       EventPaymentConfirmed,
		Payload:         []byte(`{"id":"evt_1"}`),
		Outcome:         models.WebhookOutcomeReceived,
	}
	created, stored, err := ledger.CreateWebhookEventIfNotExists(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)
	require.NotZero(t, stored.ID)

	dup := &models.PaymentWebhookEvent{
		Provider:        models.PaymentProviderAsaas,
		ProviderEventID: "evt_1",
		EventType:       EventPaymentConfirmed,
		Outcome:         models.WebhookOutcomeReceived,
	}
	created, again, err := ledger.CreateWebhookEventIfNotExists(ctx, dup)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, stored.ID, again.ID)

	var count int64
	require.NoError(t, db.Model(&models.PaymentWebhookEvent{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestGormLedger_MarkGetList(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(db)
	ctx := context.Background()

	for i, outcome := range []string{models.WebhookOutcomeResolved, models.WebhookOutcomeNotFound, models.WebhookOutcomeResolved} {
		_, row, err := ledger.CreateWebhookEventIfNotExists(ctx, &models.PaymentWebhookEvent{
			Provider:        models.PaymentProviderAsaas,
			ProviderEventID: fmt.Sprintf("evt_%d", i),
			EventType:       EventPaymentReceived,
			Outcome:         models.WebhookOutcomeReceived,
		})
		require.NoError(t, err)
		errMsg := ""
		if outcome == models.WebhookOutcomeNotFound {
			errMsg = "no order"
		}
		require.NoError(t, ledger.MarkWebhookProcessed(ctx, row.ID, outcome, errMsg))
	}

	got, err := ledger.GetWebhookEvent(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, models.WebhookOutcomeNotFound, got.Outcome)
	assert.Equal(t, "no order", got.ProcessingError)
	assert.NotNil(t, got.ProcessedAt)
	assert.False(t, got.ProcessedCleanly())

	_, err = ledger.GetWebhookEvent(ctx, 99)
	assert.ErrorIs(t, err, ErrWebhookEventNotFound)

	all, err := ledger.ListWebhookEvents(ctx, WebhookEventFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	deadLetters, err := ledger.ListWebhookEvents(ctx, WebhookEventFilter{Outcome: models.WebhookOutcomeNotFound})
	require.NoError(t, err)
	require.Len(t, deadLetters, 1)
	assert.Equal(t, "evt_1", deadLetters[0].ProviderEventID)

	limited, err := ledger.ListWebhookEvents(ctx, WebhookEventFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestNewServiceFromDB_EndToEnd(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.Create(&models.Order{ID: "o1", Status: models.OrderStatusPaid}).Error)
	svc := NewServiceFromDB(db, WithRegressionPolicy(RegressionPolicySkip))

	res := svc.Reconcile(context.Background(), event(EventPaymentOverdue, "OVERDUE", "o1", "pay_1"))
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.True(t, svc.HasLedger())

	var stored models.Order
	require.NoError(t, db.First(&stored, "id = ?", "o1").Error)
	assert.Equal(t, models.OrderStatusPaid, stored.Status)
}
