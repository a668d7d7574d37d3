package notify

import (
	"fmt"
	"html"
	"strings"
)

// Render turns an event into the customer email. ok is false for events
// that do not notify the customer or carry no address.
func Render(ev Event) (m Message, ok bool) {
	if ev.Email == "" {
		return Message{}, false
	}
	amount := strings.TrimSpace(ev.Amount + " " + strings.ToUpper(ev.Currency))

	var subject, body string
	switch ev.Type {
	case OrderCreated:
		subject = "We received your order"
		body = fmt.Sprintf("Thanks for your order %q (%s). We will let you know once payment is confirmed.", ev.Title, amount)
	case OrderPaid:
		subject = "Payment confirmed"
		body = fmt.Sprintf("Your payment of %s for %q has been received.", amount, ev.Title)
	case OrderStatus:
		subject = "Your order was updated"
		body = fmt.Sprintf("Your order %q is now %s.", ev.Title, ev.Status)
	case RefundRequested:
		subject = "Refund request received"
		body = fmt.Sprintf("We received your refund request for %s on order %s. We will review it shortly.", amount, ev.OrderID)
	case RefundApproved:
		subject = "Refund approved"
		body = fmt.Sprintf("Your refund request for %s on order %s was approved and will be processed soon.", amount, ev.OrderID)
	case RefundRejected:
		subject = "Refund request declined"
		body = fmt.Sprintf("Your refund request for %s on order %s was declined.", amount, ev.OrderID)
		if ev.Reason != "" {
			body += " Reason: " + ev.Reason
		}
	case RefundProcessed:
		subject = "Refund issued"
		body = fmt.Sprintf("A refund of %s for order %s has been issued to your original payment method.", amount, ev.OrderID)
	default:
		return Message{}, false
	}

	return Message{
		To:       ev.Email,
		Subject:  subject,
		Text:     body,
		HTML:     "<p>" + html.EscapeString(body) + "</p>",
		CustomID: ev.Type + ":" + ev.OrderID,
	}, true
}
