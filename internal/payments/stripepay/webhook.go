package stripepay

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/imrishuroy/storefront-payments/internal/apperr"
	"github.com/imrishuroy/storefront-payments/internal/payments"
)

const EventCheckoutSessionCompleted = "checkout.session.completed"

var ErrBadSignature = errors.New("stripepay: webhook signature verification failed")

// Event is a verified webhook event. Session is set for checkout.session.*
// events.
type Event struct {
	ID      string
	Type    string
	Session *payments.Session
}

type WebhookVerifier struct {
	secret string
}

func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: secret}
}

// Verify checks the Stripe-Signature header against payload and decodes
// the event.
func (v *WebhookVerifier) Verify(payload []byte, signature string) (*Event, error) {
	if v.secret == "" {
		return nil, apperr.Config("STRIPE_WEBHOOK_SECRET")
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signature, v.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	out := &Event{ID: ev.ID, Type: string(ev.Type)}
	if ev.Data != nil && len(ev.Data.Raw) > 0 && strings.HasPrefix(out.Type, "checkout.session.") {
		var s stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
			return nil, fmt.Errorf("stripepay: decode %s: %w", out.Type, err)
		}
		out.Session = sessionOf(&s)
	}
	return out, nil
}
