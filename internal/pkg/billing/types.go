package billing

import (
	"time"

	"github.com/vitrine/storefront/app/models"
)

// AsaasPayment holds the payment fields reconciliation reads. Other gateway
// fields are ignored.
type AsaasPayment struct {
	ID                string
	Status            string
	ExternalReference string
}

// AsaasWebhookEvent is the inbound webhook body. ID is the gateway's event id
// and may be empty on older payload versions.
type AsaasWebhookEvent struct {
	ID      string
	Event   string
	Payment AsaasPayment
}

// StatusUpdate is the single write applied to an order per processed event.
// PaymentConfirmedAt nil clears the column.
type StatusUpdate struct {
	Status             models.OrderStatus
	PaymentConfirmedAt *time.Time
	Change             *models.OrderStatusChange
}

// Transition is emitted after a status write succeeds.
type Transition struct {
	OrderID   string
	From      models.OrderStatus
	To        models.OrderStatus
	Event     string
	PaymentID string
	Anomalous bool
	At        time.Time
}

// Outcome classifies how an event was resolved against the order store.
type Outcome string

const (
	OutcomeResolved     Outcome = "resolved"
	OutcomeNotFound     Outcome = "not_found"
	OutcomeStorageError Outcome = "storage_error"
	OutcomeSkipped      Outcome = "skipped"
)

// ResolutionPath names the correlation key used to find the order.
type ResolutionPath string

const (
	PathPrimary  ResolutionPath = "primary"
	PathFallback ResolutionPath = "fallback"
)

// Result describes a reconciliation attempt. Err is set for storage_error.
type Result struct {
	Outcome    Outcome
	Path       ResolutionPath
	OrderID    string
	Transition *Transition
	Err        error
}

// Retryable reports whether the gateway should redeliver the event. Only a
// storage failure on the primary key path qualifies.
func (r Result) Retryable() bool {
	return r.Outcome == OutcomeStorageError && r.Path == PathPrimary
}

// DeadLetter is an event that could not be matched to an order.
type DeadLetter struct {
	Provider        string
	ProviderEventID string
	Event           string
	PaymentID       string
	Path            ResolutionPath
	Reason          string
	Payload         []byte
	ReceivedAt      time.Time
}

// WebhookEventInput is the normalized input for webhook ledger persistence.
type WebhookEventInput struct {
	Provider          string
	ProviderEventID   string
	EventType         string
	PaymentID         string
	ExternalReference string
	Payload           []byte
	TokenValid        bool
}
