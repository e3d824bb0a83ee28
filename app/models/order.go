package models

import "time"

// OrderStatus is the closed set of order lifecycle states.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusAwaitingPayment OrderStatus = "awaiting_payment"
	OrderStatusPaid            OrderStatus = "paid"
	OrderStatusPaymentOverdue  OrderStatus = "payment_overdue"
	OrderStatusDunning         OrderStatus = "dunning"
	OrderStatusRefunded        OrderStatus = "refunded"
	OrderStatusProcessing      OrderStatus = "processing"
	OrderStatusShipped         OrderStatus = "shipped"
	OrderStatusDelivered       OrderStatus = "delivered"
	OrderStatusCancelled       OrderStatus = "cancelled"
)

// OrderStatuses lists every valid status in lifecycle order.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusAwaitingPayment,
	OrderStatusPaid,
	OrderStatusPaymentOverdue,
	OrderStatusDunning,
	OrderStatusRefunded,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// IsValid reports whether s belongs to the closed status set.
func (s OrderStatus) IsValid() bool {
	for _, known := range OrderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

func (s OrderStatus) String() string {
	return string(s)
}

// Order is the storefront order record. Only Status and PaymentConfirmedAt are
// written by the payment webhook; everything else belongs to checkout.
type Order struct {
	ID                 string      `gorm:"type:varchar(36);primaryKey" json:"id"`
	CustomerName       string      `gorm:"type:varchar(200);default:''" json:"customer_name"`
	CustomerEmail      string      `gorm:"type:varchar(200);default:''" json:"customer_email"`
	TotalCents         int64       `gorm:"not null;default:0" json:"total_cents"`
	Status             OrderStatus `gorm:"type:varchar(32);not null;default:'pending';index" json:"status"`
	AsaasPaymentID     *string     `gorm:"type:varchar(64);uniqueIndex:idx_orders_asaas_payment_id" json:"asaas_payment_id,omitempty"`
	PaymentConfirmedAt *time.Time  `gorm:"default:null" json:"payment_confirmed_at,omitempty"`
	CreatedAt          time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}
