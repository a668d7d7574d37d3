package orders

import (
	"errors"
	"time"
)

// Order statuses
const (
	StatusPending   = "pending"
	StatusPaid      = "paid"
	StatusShipped   = "shipped"
	StatusDelivered = "delivered"
	StatusCancelled = "cancelled"
)

// Refund request statuses. processed and rejected are terminal.
const (
	RefundRequested = "requested"
	RefundApproved  = "approved"
	RefundProcessed = "processed"
	RefundRejected  = "rejected"
)

var (
	// ErrStatusMismatch is returned when a conditional status update finds
	// a status other than the expected one.
	ErrStatusMismatch = errors.New("status mismatch/conditional failed")
	// ErrVersionConflict is returned by Save when the stored version moved.
	ErrVersionConflict = errors.New("order was modified concurrently")
	// ErrDuplicate is returned by Create when the idempotency key or order
	// id already exists.
	ErrDuplicate = errors.New("order already exists for this idempotency key")
)

// Order is the item stored in the orders table or collection.
type Order struct {
	OrderID           string          `dynamodbav:"order_id" firestore:"order_id" json:"orderId"` // PK
	UserID            string          `dynamodbav:"user_id,omitempty" firestore:"user_id" json:"userId,omitempty"`
	Email             string          `dynamodbav:"email,omitempty" firestore:"email" json:"email,omitempty"`
	Title             string          `dynamodbav:"title" firestore:"title" json:"title"`
	AmountMinor       int64           `dynamodbav:"amount_minor" firestore:"amount_minor" json:"-"`
	Currency          string          `dynamodbav:"currency" firestore:"currency" json:"currency"`
	Status            string          `dynamodbav:"status" firestore:"status" json:"status"`
	StoreOrder        bool            `dynamodbav:"is_store_order" firestore:"is_store_order" json:"isStoreOrder"`
	PaymentIntentID   string          `dynamodbav:"payment_intent_id,omitempty" firestore:"payment_intent_id" json:"paymentIntentId,omitempty"`
	CheckoutSessionID string          `dynamodbav:"checkout_session_id,omitempty" firestore:"checkout_session_id" json:"checkoutSessionId,omitempty"`
	RefundRequests    []RefundRequest `dynamodbav:"refund_requests,omitempty" firestore:"refund_requests" json:"refundRequests"`
	Version           int64           `dynamodbav:"version" firestore:"version" json:"version"`
	CreatedAt         time.Time       `dynamodbav:"created_at" firestore:"created_at" json:"createdAt"`
	UpdatedAt         time.Time       `dynamodbav:"updated_at" firestore:"updated_at" json:"updatedAt"`
}

// RefundRequest is a customer refund claim against an order.
type RefundRequest struct {
	ID              string    `dynamodbav:"id" firestore:"id" json:"id"`
	AmountMinor     int64     `dynamodbav:"amount_minor" firestore:"amount_minor" json:"-"`
	Reason          string    `dynamodbav:"reason,omitempty" firestore:"reason" json:"reason,omitempty"`
	Status          string    `dynamodbav:"status" firestore:"status" json:"status"`
	PaymentIntentID string    `dynamodbav:"payment_intent_id,omitempty" firestore:"payment_intent_id" json:"paymentIntentId,omitempty"`
	RefundID        string    `dynamodbav:"refund_id,omitempty" firestore:"refund_id" json:"refundId,omitempty"`
	Note            string    `dynamodbav:"note,omitempty" firestore:"note" json:"note,omitempty"`
	CreatedAt       time.Time `dynamodbav:"created_at" firestore:"created_at" json:"createdAt"`
	UpdatedAt       time.Time `dynamodbav:"updated_at" firestore:"updated_at" json:"updatedAt"`
}

var orderTransitions = map[string][]string{
	StatusPending: {StatusPaid, StatusCancelled},
	StatusPaid:    {StatusShipped, StatusCancelled},
	StatusShipped: {StatusDelivered},
}

var refundTransitions = map[string][]string{
	RefundRequested: {RefundApproved, RefundRejected},
	RefundApproved:  {RefundProcessed, RefundRejected},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to string) bool {
	return allowed(orderTransitions, from, to)
}

// CanTransitionRefund reports whether a refund request may move between statuses.
func CanTransitionRefund(from, to string) bool {
	return allowed(refundTransitions, from, to)
}

func allowed(table map[string][]string, from, to string) bool {
	for _, next := range table[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidStatus reports whether s is a known order status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusPaid, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Refundable reports whether refund requests may be filed for the order.
func (o *Order) Refundable() bool {
	switch o.Status {
	case StatusPaid, StatusShipped, StatusDelivered:
		return true
	}
	return false
}

// RefundCommitted is the sum of refund requests that are not rejected.
func (o *Order) RefundCommitted() int64 {
	var total int64
	for _, r := range o.RefundRequests {
		if r.Status != RefundRejected {
			total += r.AmountMinor
		}
	}
	return total
}

// FindRefund returns a pointer into o.RefundRequests, or nil.
func (o *Order) FindRefund(id string) *RefundRequest {
	for i := range o.RefundRequests {
		if o.RefundRequests[i].ID == id {
			return &o.RefundRequests[i]
		}
	}
	return nil
}
