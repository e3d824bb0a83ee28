package mail

import (
	"fmt"
	"html"
	"time"

	"github.com/vitrine/storefront/app/models"
)

// PaymentConfirmed renders the customer notice sent when an order is paid.
func PaymentConfirmed(storeName string, order *models.Order, confirmedAt time.Time) (string, string) {
	subject := fmt.Sprintf("%s: payment confirmed for order %s", storeName, order.ID)
	name := order.CustomerName
	if name == "" {
		name = "customer"
	}
	body := fmt.Sprintf(
		"<p>Hello %s,</p>"+
			"<p>We received your payment of <strong>%s</strong> for order <code>%s</code> on %s.</p>"+
			"<p>Your order is now being prepared.</p>"+
			"<p>%s</p>",
		html.EscapeString(name),
		FormatCents(order.TotalCents),
		html.EscapeString(order.ID),
		confirmedAt.UTC().Format("2006-01-02 15:04 MST"),
		html.EscapeString(storeName),
	)
	return subject, body
}

// StatusAnomaly renders the admin alert for a transition outside the
// lifecycle table.
func StatusAnomaly(storeName, orderID string, from, to models.OrderStatus, event, paymentID string, at time.Time) (string, string) {
	subject := fmt.Sprintf("[%s] Unexpected order status change on %s: %s -> %s", storeName, orderID, from, to)
	body := fmt.Sprintf(
		"<p>A payment webhook moved order <code>%s</code> from <strong>%s</strong> to <strong>%s</strong>.</p>"+
			"<ul><li>Event: %s</li><li>Payment: %s</li><li>At: %s</li></ul>"+
			"<p>Check the payment in the gateway panel before shipping or refunding.</p>",
		html.EscapeString(orderID),
		html.EscapeString(string(from)),
		html.EscapeString(string(to)),
		html.EscapeString(event),
		html.EscapeString(paymentID),
		at.UTC().Format(time.RFC3339),
	)
	return subject, body
}

// FormatCents renders an amount in BRL.
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%sR$ %d,%02d", sign, cents/100, cents%100)
}
