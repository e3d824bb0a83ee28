package models

import "time"

// OrderStatusChange is the audit trail of status writes applied by payment
// webhooks. Anomalous marks writes outside the legal transition table.
type OrderStatusChange struct {
	ID         uint        `gorm:"primaryKey" json:"id"`
	OrderID    string      `gorm:"type:varchar(36);not null;index" json:"order_id"`
	FromStatus OrderStatus `gorm:"type:varchar(32);not null" json:"from_status"`
	ToStatus   OrderStatus `gorm:"type:varchar(32);not null" json:"to_status"`
	EventType  string      `gorm:"type:varchar(100);not null;default:''" json:"event_type"`
	PaymentID  string      `gorm:"type:varchar(64);not null;default:''" json:"payment_id"`
	Anomalous  bool        `gorm:"default:false;index" json:"anomalous"`
	CreatedAt  time.Time   `gorm:"autoCreateTime;index" json:"created_at"`
}
