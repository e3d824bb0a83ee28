package billing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/vitrine/storefront/app/models"
)

// AccessTokenHeader carries the shared secret configured in the Asaas panel.
const AccessTokenHeader = "asaas-access-token"

// Asaas webhook event names handled by the receiver.
const (
	EventPaymentConfirmed       = "PAYMENT_CONFIRMED"
	EventPaymentReceived        = "PAYMENT_RECEIVED"
	EventPaymentOverdue         = "PAYMENT_OVERDUE"
	EventPaymentRefunded        = "PAYMENT_REFUNDED"
	EventPaymentDeleted         = "PAYMENT_DELETED"
	EventPaymentUpdated         = "PAYMENT_UPDATED"
	EventPaymentDunningReceived = "PAYMENT_DUNNING_RECEIVED"
)

var handledAsaasEvents = map[string]struct{}{
	EventPaymentConfirmed:       {},
	EventPaymentReceived:        {},
	EventPaymentOverdue:         {},
	EventPaymentRefunded:        {},
	EventPaymentDeleted:         {},
	EventPaymentUpdated:         {},
	EventPaymentDunningReceived: {},
}

// IsHandledAsaasEvent reports whether an event name triggers reconciliation.
// Everything else is acknowledged and ignored.
func IsHandledAsaasEvent(event string) bool {
	_, ok := handledAsaasEvents[event]
	return ok
}

// ParseAsaasWebhookEvent decodes a webhook body. Only JSON validity is
// required: a body that is not an object, or fields of an unexpected type,
// leave the affected values empty for the caller to judge.
func ParseAsaasWebhookEvent(payload []byte) (*AsaasWebhookEvent, error) {
	var body json.RawMessage
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, err
	}

	ev := &AsaasWebhookEvent{}
	top := rawObject(body)
	ev.ID = rawString(top["id"])
	ev.Event = rawString(top["event"])

	payment := rawObject(top["payment"])
	ev.Payment = AsaasPayment{
		ID:                rawString(payment["id"]),
		Status:            rawString(payment["status"]),
		ExternalReference: rawString(payment["externalReference"]),
	}
	return ev, nil
}

// rawObject returns the members of a JSON object, or nil for any other value.
func rawObject(raw json.RawMessage) map[string]json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	return obj
}

// rawString returns a JSON string value, or "" for anything else.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// HasPaymentData reports whether the event identifies a gateway payment.
func (e *AsaasWebhookEvent) HasPaymentData() bool {
	return e != nil && strings.TrimSpace(e.Payment.ID) != ""
}

// ProviderEventID returns the gateway event id, or a payload hash when the
// gateway did not send one.
func ProviderEventID(ev *AsaasWebhookEvent, payload []byte) string {
	if ev != nil {
		if id := strings.TrimSpace(ev.ID); id != "" {
			return id
		}
	}
	sum := sha256.Sum256(payload)
	return "hash:" + hex.EncodeToString(sum[:])
}

// MapAsaasStatus translates a gateway payment status into an order status.
// The match is exact and unknown values map to pending.
func MapAsaasStatus(status string) models.OrderStatus {
	switch status {
	case "CONFIRMED", "RECEIVED", "RECEIVED_IN_CASH":
		return models.OrderStatusPaid
	case "PENDING":
		return models.OrderStatusAwaitingPayment
	case "OVERDUE":
		return models.OrderStatusPaymentOverdue
	case "REFUNDED", "REFUND_REQUESTED", "CHARGEBACK_REQUESTED", "CHARGEBACK_DISPUTE":
		return models.OrderStatusRefunded
	case "DUNNING_REQUESTED", "DUNNING_RECEIVED":
		return models.OrderStatusDunning
	default:
		return models.OrderStatusPending
	}
}
