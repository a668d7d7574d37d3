package payments

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/imrishuroy/storefront-payments/internal/apperr"
	"github.com/imrishuroy/storefront-payments/internal/money"
)

// Session metadata keys attached at checkout and read back on resolution.
const (
	MetadataOrderID    = "orderId"
	MetadataStoreOrder = "isStoreOrder"
)

// sessionPlaceholder is expanded by the provider on redirect.
const sessionPlaceholder = "{CHECKOUT_SESSION_ID}"

type CheckoutRequest struct {
	Amount         string
	OrderID        string
	Title          string
	CustomerEmail  string
	StoreOrder     bool
	IdempotencyKey string
}

type CheckoutResult struct {
	SessionID  string
	URL        string
	UnitAmount int64
	SuccessURL string
	CancelURL  string
}

// CheckoutService creates hosted checkout sessions. It writes no local
// state, so an abandoned or failed checkout leaves nothing behind.
type CheckoutService struct {
	provider    Provider
	frontendURL string
	currency    string
	deps
}

func NewCheckoutService(p Provider, frontendURL, currency string, opts ...Option) *CheckoutService {
	return &CheckoutService{
		provider:    p,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		currency:    currency,
		deps:        newDeps(opts),
	}
}

// CreateSession validates req and asks the provider for a checkout session.
func (s *CheckoutService) CreateSession(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	amount, err := money.Parse(req.Amount)
	if err != nil {
		return nil, apperr.Validation(apperr.CodeInvalidAmount, "amount must be a positive number")
	}
	orderID := strings.TrimSpace(req.OrderID)
	title := strings.TrimSpace(req.Title)
	if orderID == "" || title == "" {
		return nil, apperr.Validation(apperr.CodeMissingFields, "orderId and orderTitle are required")
	}
	unit := money.ToMinor(amount)
	if unit <= 0 {
		// e.g. 0.004 rounds to zero minor units
		return nil, apperr.Validation(apperr.CodeInvalidAmount, "amount is below the smallest currency unit")
	}

	successURL, cancelURL := s.redirectURLs(orderID, req.StoreOrder)
	params := SessionParams{
		UnitAmount:    unit,
		Currency:      s.currency,
		ProductName:   title,
		SuccessURL:    successURL,
		CancelURL:     cancelURL,
		CustomerEmail: strings.TrimSpace(req.CustomerEmail),
		Metadata: map[string]string{
			MetadataOrderID:    orderID,
			MetadataStoreOrder: strconv.FormatBool(req.StoreOrder),
		},
		IdempotencyKey: req.IdempotencyKey,
	}

	sess, err := s.provider.CreateSession(ctx, params)
	if err != nil {
		return nil, s.providerFailure(ctx, "checkout.create", apperr.CodeCheckoutCreateFailed,
			"failed to create checkout session", err)
	}

	s.logger.Info("checkout session created",
		zap.String("session_id", sess.ID),
		zap.String("order_id", orderID),
		zap.Bool("store_order", req.StoreOrder),
		zap.Int64("unit_amount", unit),
	)
	s.metrics.Count(ctx, MetricCheckoutCreated, nil)

	return &CheckoutResult{
		SessionID:  sess.ID,
		URL:        sess.URL,
		UnitAmount: unit,
		SuccessURL: successURL,
		CancelURL:  cancelURL,
	}, nil
}

// redirectURLs builds success/cancel URLs keyed by orderId for store
// orders and ticketId for request tickets.
func (s *CheckoutService) redirectURLs(orderID string, store bool) (string, string) {
	key := "ticketId"
	if store {
		key = "orderId"
	}
	q := key + "=" + url.QueryEscape(orderID)
	success := fmt.Sprintf("%s/payment-success?session_id=%s&%s", s.frontendURL, sessionPlaceholder, q)
	cancel := fmt.Sprintf("%s/payment-cancelled?%s", s.frontendURL, q)
	return success, cancel
}
