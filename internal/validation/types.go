package validation

import "github.com/imrishuroy/storefront-payments/internal/money"

// CheckoutRequest is the payload for POST /api/create-checkout-session.
// Store orders send orderId, request tickets send ticketId.
type CheckoutRequest struct {
	Amount        money.Raw `json:"amount" validate:"money"`
	TicketID      string    `json:"ticketId" validate:"required_without=OrderID"`
	OrderID       string    `json:"orderId"`
	OrderTitle    string    `json:"orderTitle" validate:"required"`
	CustomerEmail string    `json:"customerEmail" validate:"omitempty,email"`
	IsStoreOrder  bool      `json:"isStoreOrder"`
}

// Reference returns the order or ticket id the checkout is for.
func (r CheckoutRequest) Reference() string {
	if r.OrderID != "" {
		return r.OrderID
	}
	return r.TicketID
}

// FindIntentRequest is the payload for POST /api/find-payment-intent.
// Dates are RFC 3339 timestamps or YYYY-MM-DD.
type FindIntentRequest struct {
	Amount        money.Raw `json:"amount" validate:"money"`
	StartDate     string    `json:"startDate" validate:"required"`
	EndDate       string    `json:"endDate" validate:"required"`
	CustomerEmail string    `json:"customerEmail" validate:"omitempty,email"`
}

// ProcessRefundRequest is the payload for POST /api/process-refund. When
// orderId and refundRequestId are given the refund settles that request.
type ProcessRefundRequest struct {
	PaymentIntentID string    `json:"paymentIntentId" validate:"required"`
	Amount          money.Raw `json:"amount" validate:"money"`
	Reason          string    `json:"reason" validate:"max=500"`
	OrderID         string    `json:"orderId"`
	RefundRequestID string    `json:"refundRequestId" validate:"required_with=OrderID"`
}

type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content" validate:"required,max=8000"`
}

// ChatRequest is the payload for POST /api/chat.
type ChatRequest struct {
	Messages []ChatMessage `json:"messages" validate:"required,min=1,max=50,dive"`
	Model    string        `json:"model" validate:"max=100"`
}

// EmailRequest is the payload for POST /api/send-email. One of text or
// html is required.
type EmailRequest struct {
	To      string `json:"to" validate:"required,email"`
	Name    string `json:"name" validate:"max=200"`
	Subject string `json:"subject" validate:"required,max=200"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
}

// Item represents a single order line item.
type Item struct {
	SKU      string    `json:"sku" validate:"required"`            // stock keeping unit
	Quantity int       `json:"quantity" validate:"required,min=1"` // must be >= 1
	Price    money.Raw `json:"price" validate:"money"`             // price per unit
}

// CreateOrderRequest is the payload for POST /api/orders. When items are
// sent, amount must equal their total.
type CreateOrderRequest struct {
	Amount       money.Raw `json:"amount" validate:"money"`
	Title        string    `json:"title" validate:"required,max=200"`
	UserID       string    `json:"userId" validate:"max=128"`
	Email        string    `json:"email" validate:"omitempty,email"`
	IsStoreOrder bool      `json:"isStoreOrder"`
	Items        []Item    `json:"items,omitempty" validate:"omitempty,dive"`
}

// ConfirmPaymentRequest is the payload for POST /api/orders/:orderId/confirm-payment.
type ConfirmPaymentRequest struct {
	SessionID string `json:"sessionId" validate:"required"`
}

// RefundRequestRequest is the payload for POST /api/orders/:orderId/refund-requests.
type RefundRequestRequest struct {
	Amount money.Raw `json:"amount" validate:"money"`
	Reason string    `json:"reason" validate:"max=500"`
}
