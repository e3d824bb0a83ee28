package models

import (
	"time"

	"gorm.io/datatypes"
)

// Payment provider constants.
const (
	PaymentProviderAsaas = "asaas"
)

// Webhook outcomes stored on the ledger row.
const (
	WebhookOutcomeReceived     = "received"
	WebhookOutcomeIgnored      = "ignored"
	WebhookOutcomeNoPayment    = "no_payment_data"
	WebhookOutcomeResolved     = "resolved"
	WebhookOutcomeNotFound     = "not_found"
	WebhookOutcomeStorageError = "storage_error"
	WebhookOutcomeSkipped      = "skipped"
	WebhookOutcomeDuplicate    = "duplicate"
)

// PaymentWebhookEvent stores gateway webhook deliveries with deduplication
// metadata. Rows with outcome not_found are the dead-letter set.
type PaymentWebhookEvent struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	Provider          string         `gorm:"type:varchar(20);not null;index:ux_payment_webhook_events_provider_event,unique,priority:1" json:"provider"`
	ProviderEventID   string         `gorm:"type:varchar(191);not null;default:'';index:ux_payment_webhook_events_provider_event,unique,priority:2" json:"provider_event_id"`
	EventType         string         `gorm:"type:varchar(100);not null;index" json:"event_type"`
	PaymentID         string         `gorm:"type:varchar(64);not null;default:'';index" json:"payment_id"`
	ExternalReference string         `gorm:"type:varchar(64);not null;default:''" json:"external_reference"`
	Payload           datatypes.JSON `json:"payload"`
	TokenValid        bool           `gorm:"default:false" json:"token_valid"`
	Outcome           string         `gorm:"type:varchar(32);not null;default:'received';index" json:"outcome"`
	ProcessedAt       *time.Time     `gorm:"default:null" json:"processed_at,omitempty"`
	ProcessingError   string         `gorm:"type:text" json:"processing_error"`
	CreatedAt         time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// ProcessedCleanly reports whether a previous delivery of this event was
// applied without error, so a redelivery can be acknowledged without work.
func (e *PaymentWebhookEvent) ProcessedCleanly() bool {
	if e == nil || e.ProcessedAt == nil || e.ProcessingError != "" {
		return false
	}
	switch e.Outcome {
	case WebhookOutcomeResolved, WebhookOutcomeSkipped, WebhookOutcomeIgnored, WebhookOutcomeNoPayment:
		return true
	default:
		return false
	}
}
