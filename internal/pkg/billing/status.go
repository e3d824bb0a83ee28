package billing

import (
	"strings"

	"github.com/vitrine/storefront/app/models"
)

// Regression policies for transitions outside the legal table.
const (
	RegressionPolicyApply = "apply"
	RegressionPolicySkip  = "skip"
)

// legalTransitions lists the statuses reachable from each status. A status
// may always be re-applied to itself.
var legalTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPending: {
		models.OrderStatusAwaitingPayment,
		models.OrderStatusPaid,
		models.OrderStatusPaymentOverdue,
		models.OrderStatusDunning,
		models.OrderStatusRefunded,
		models.OrderStatusCancelled,
	},
	models.OrderStatusAwaitingPayment: {
		models.OrderStatusPending,
		models.OrderStatusPaid,
		models.OrderStatusPaymentOverdue,
		models.OrderStatusDunning,
		models.OrderStatusRefunded,
		models.OrderStatusCancelled,
	},
	models.OrderStatusPaymentOverdue: {
		models.OrderStatusPending,
		models.OrderStatusAwaitingPayment,
		models.OrderStatusPaid,
		models.OrderStatusDunning,
		models.OrderStatusRefunded,
		models.OrderStatusCancelled,
	},
	models.OrderStatusDunning: {
		models.OrderStatusPaid,
		models.OrderStatusPaymentOverdue,
		models.OrderStatusRefunded,
		models.OrderStatusCancelled,
	},
	models.OrderStatusPaid: {
		models.OrderStatusRefunded,
		models.OrderStatusProcessing,
		models.OrderStatusShipped,
		models.OrderStatusDelivered,
	},
	models.OrderStatusProcessing: {
		models.OrderStatusRefunded,
		models.OrderStatusShipped,
		models.OrderStatusCancelled,
	},
	models.OrderStatusShipped: {
		models.OrderStatusDelivered,
		models.OrderStatusRefunded,
	},
	models.OrderStatusDelivered: {
		models.OrderStatusRefunded,
	},
	models.OrderStatusRefunded:  {},
	models.OrderStatusCancelled: {},
}

// IsLegalTransition reports whether moving an order from one status to
// another is part of the lifecycle. Unknown source statuses accept anything,
// since the webhook cannot reason about rows written outside the closed set.
func IsLegalTransition(from, to models.OrderStatus) bool {
	if from == to {
		return true
	}
	next, ok := legalTransitions[from]
	if !ok {
		return true
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

func normalizeRegressionPolicy(policy string) string {
	switch strings.ToLower(strings.TrimSpace(policy)) {
	case RegressionPolicySkip:
		return RegressionPolicySkip
	default:
		return RegressionPolicyApply
	}
}
