// Package stripepay binds payments.Provider to the Stripe API.
package stripepay

import (
	"context"
	"errors"
	"time"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
	"go.uber.org/zap"

	"github.com/imrishuroy/storefront-payments/internal/apperr"
	"github.com/imrishuroy/storefront-payments/internal/payments"
)

// Client implements payments.Provider. A Client built without a secret key
// is valid; every call then fails with a config error so the other routes
// keep working.
type Client struct {
	api *client.API
}

type Option func(*stripe.BackendConfig)

// WithBaseURL points the client at another API host, e.g. stripe-mock.
func WithBaseURL(url string) Option {
	return func(c *stripe.BackendConfig) { c.URL = stripe.String(url) }
}

func WithMaxRetries(n int64) Option {
	return func(c *stripe.BackendConfig) { c.MaxNetworkRetries = stripe.Int64(n) }
}

func New(secretKey string, logger *zap.Logger, opts ...Option) *Client {
	if secretKey == "" {
		return &Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := &stripe.BackendConfig{LeveledLogger: logger.Sugar()}
	for _, o := range opts {
		o(cfg)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, cfg)

	api := &client.API{}
	api.Init(secretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	return &Client{api: api}
}

func (c *Client) ready() error {
	if c.api == nil {
		return apperr.Config("STRIPE_SECRET_KEY")
	}
	return nil
}

func (c *Client) CreateSession(ctx context.Context, p payments.SessionParams) (*payments.Session, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		SuccessURL:         stripe.String(p.SuccessURL),
		CancelURL:          stripe.String(p.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(p.Currency),
				UnitAmount: stripe.Int64(p.UnitAmount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(p.ProductName),
				},
			},
			Quantity: stripe.Int64(1),
		}},
	}
	if p.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(p.CustomerEmail)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}

	s, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, wrap("checkout.create", err)
	}
	return sessionOf(s), nil
}

func (c *Client) RetrieveSession(ctx context.Context, id string) (*payments.Session, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := c.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, wrap("session.retrieve", err)
	}
	return sessionOf(s), nil
}

func (c *Client) RetrieveIntent(ctx context.Context, id string) (*payments.Intent, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := c.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, wrap("intent.retrieve", err)
	}
	in := intentOf(pi)
	return &in, nil
}

// ListIntents pages through intents newest first and stops after f.Limit.
func (c *Client) ListIntents(ctx context.Context, f payments.IntentFilter) ([]payments.Intent, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	params := &stripe.PaymentIntentListParams{
		CreatedRange: &stripe.RangeQueryParams{
			GreaterThanOrEqual: f.CreatedFrom.Unix(),
			LesserThanOrEqual:  f.CreatedTo.Unix(),
		},
	}
	params.Context = ctx
	if f.Limit > 0 {
		params.Limit = stripe.Int64(f.Limit)
	}

	var out []payments.Intent
	it := c.api.PaymentIntents.List(params)
	for it.Next() {
		out = append(out, intentOf(it.PaymentIntent()))
		if f.Limit > 0 && int64(len(out)) >= f.Limit {
			break
		}
	}
	if err := it.Err(); err != nil {
		return nil, wrap("intent.list", err)
	}
	return out, nil
}

func (c *Client) CreateRefund(ctx context.Context, p payments.RefundParams) (*payments.Refund, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(p.PaymentIntentID),
		Amount:        stripe.Int64(p.Amount),
	}
	if p.Reason != "" {
		params.Reason = stripe.String(p.Reason)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}

	r, err := c.api.Refunds.New(params)
	if err != nil {
		return nil, wrap("refund.create", err)
	}
	return &payments.Refund{
		ID:       r.ID,
		Amount:   r.Amount,
		Currency: string(r.Currency),
		Status:   string(r.Status),
	}, nil
}

func sessionOf(s *stripe.CheckoutSession) *payments.Session {
	out := &payments.Session{
		ID:            s.ID,
		URL:           s.URL,
		Status:        string(s.Status),
		PaymentStatus: string(s.PaymentStatus),
		AmountTotal:   s.AmountTotal,
		CustomerEmail: s.CustomerEmail,
		Metadata:      s.Metadata,
	}
	if s.PaymentIntent != nil {
		out.PaymentIntentID = s.PaymentIntent.ID
	}
	if out.CustomerEmail == "" && s.CustomerDetails != nil {
		out.CustomerEmail = s.CustomerDetails.Email
	}
	return out
}

func intentOf(pi *stripe.PaymentIntent) payments.Intent {
	return payments.Intent{
		ID:           pi.ID,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Status:       string(pi.Status),
		ReceiptEmail: pi.ReceiptEmail,
		Created:      time.Unix(pi.Created, 0).UTC(),
	}
}

// wrap converts Stripe API errors into payments.ProviderError.
func wrap(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		return &payments.ProviderError{
			Op:          op,
			Code:        string(se.Code),
			DeclineCode: string(se.DeclineCode),
			Param:       se.Param,
			Type:        string(se.Type),
			Message:     se.Msg,
			HTTPStatus:  se.HTTPStatusCode,
			RequestID:   se.RequestID,
			Err:         err,
		}
	}
	return &payments.ProviderError{Op: op, Err: err}
}
