// Package payments holds the checkout, payment-intent lookup and refund
// workflows. They depend only on the Provider port; the Stripe binding
// lives in payments/stripepay.
package payments

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Provider is the narrow surface of the payment provider used by the
// workflows. Amounts are always integer minor units.
type Provider interface {
	CreateSession(ctx context.Context, p SessionParams) (*Session, error)
	RetrieveSession(ctx context.Context, id string) (*Session, error)
	RetrieveIntent(ctx context.Context, id string) (*Intent, error)
	ListIntents(ctx context.Context, f IntentFilter) ([]Intent, error)
	CreateRefund(ctx context.Context, p RefundParams) (*Refund, error)
}

type SessionParams struct {
	UnitAmount     int64
	Currency       string
	ProductName    string
	SuccessURL     string
	CancelURL      string
	CustomerEmail  string
	Metadata       map[string]string
	IdempotencyKey string
}

type Session struct {
	ID              string
	URL             string
	PaymentIntentID string
	Status          string
	PaymentStatus   string
	AmountTotal     int64
	CustomerEmail   string
	Metadata        map[string]string
}

// Intent statuses the workflows care about.
const (
	IntentSucceeded = "succeeded"
)

type Intent struct {
	ID           string
	Amount       int64
	Currency     string
	Status       string
	ReceiptEmail string
	Created      time.Time
}

// IntentFilter selects intents by creation time, inclusive on both ends.
type IntentFilter struct {
	CreatedFrom time.Time
	CreatedTo   time.Time
	Limit       int64
}

// Refund reasons accepted by the provider. The free-text reason travels in
// metadata under MetadataRefundReason.
const (
	RefundReasonRequestedByCustomer = "requested_by_customer"
	MetadataRefundReason            = "refund_reason"
)

type RefundParams struct {
	PaymentIntentID string
	Amount          int64
	Reason          string
	Metadata        map[string]string
	IdempotencyKey  string
}

type Refund struct {
	ID       string
	Amount   int64
	Currency string
	Status   string
}

// ProviderError carries the provider's diagnostics for a failed call.
type ProviderError struct {
	Op          string
	Code        string
	DeclineCode string
	Param       string
	Type        string
	Message     string
	HTTPStatus  int
	RequestID   string
	Err         error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Op, msg, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Missing reports whether the provider rejected the call because the
// requested object does not exist.
func (e *ProviderError) Missing() bool {
	return e.HTTPStatus == http.StatusNotFound || e.Code == "resource_missing"
}

// Detail returns the fields passed through to operators.
func (e *ProviderError) Detail() map[string]any {
	d := map[string]any{"op": e.Op}
	if e.Code != "" {
		d["code"] = e.Code
	}
	if e.DeclineCode != "" {
		d["decline_code"] = e.DeclineCode
	}
	if e.Param != "" {
		d["param"] = e.Param
	}
	if e.Type != "" {
		d["type"] = e.Type
	}
	if e.Message != "" {
		d["message"] = e.Message
	}
	if e.HTTPStatus != 0 {
		d["http_status"] = e.HTTPStatus
	}
	if e.RequestID != "" {
		d["request_id"] = e.RequestID
	}
	return d
}
