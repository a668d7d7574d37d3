package payments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/imrishuroy/storefront-payments/internal/apperr"
	"github.com/imrishuroy/storefront-payments/internal/money"
)

// listLimit caps how many intents a heuristic lookup inspects.
const listLimit = 100

// Resolution is a normalized view of a payment intent.
type Resolution struct {
	PaymentIntentID string
	Amount          decimal.Decimal
	AmountMinor     int64
	Currency        string
	Status          string
	ReceiptEmail    string
	Created         time.Time

	// Set only by BySession, from the checkout session metadata.
	SessionID  string
	OrderID    string
	StoreOrder bool
}

// HeuristicQuery finds an intent without a session id.
type HeuristicQuery struct {
	Amount        string
	Start         string
	End           string
	CustomerEmail string
}

// Resolver maps checkout sessions, or amount/time heuristics, to payment
// intents.
type Resolver struct {
	provider Provider
	deps
}

func NewResolver(p Provider, opts ...Option) *Resolver {
	return &Resolver{provider: p, deps: newDeps(opts)}
}

// BySession resolves the payment intent behind a checkout session.
func (r *Resolver) BySession(ctx context.Context, sessionID string) (*Resolution, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, apperr.Validation(apperr.CodeMissingFields, "sessionId is required")
	}

	sess, err := r.provider.RetrieveSession(ctx, sessionID)
	if missing(err) {
		return nil, apperr.NotFound(apperr.CodePaymentIntentNotFound, "checkout session not found")
	}
	if err != nil {
		return nil, r.providerFailure(ctx, "session.retrieve", apperr.CodeLookupFailed,
			"failed to retrieve payment intent", err)
	}
	if sess.PaymentIntentID == "" {
		return nil, apperr.NotFound(apperr.CodePaymentIntentNotFound, "no payment intent for this session")
	}

	pi, err := r.provider.RetrieveIntent(ctx, sess.PaymentIntentID)
	if missing(err) {
		return nil, apperr.NotFound(apperr.CodePaymentIntentNotFound, "payment intent not found")
	}
	if err != nil {
		return nil, r.providerFailure(ctx, "intent.retrieve", apperr.CodeLookupFailed,
			"failed to retrieve payment intent", err)
	}

	res := resolutionOf(*pi)
	res.SessionID = sess.ID
	res.OrderID = sess.Metadata[MetadataOrderID]
	res.StoreOrder = sess.Metadata[MetadataStoreOrder] == "true"
	r.metrics.Count(ctx, MetricIntentResolved, map[string]string{"Mode": "session"})
	return res, nil
}

// ByHeuristic lists intents created in [Start, End] and returns the first,
// in provider order (newest first), whose amount equals the requested
// amount in minor units and which either succeeded or, when an email is
// given, carries that receipt email. Several intents can match; the first
// one wins, so prefer BySession whenever a session id is available.
func (r *Resolver) ByHeuristic(ctx context.Context, q HeuristicQuery) (*Resolution, error) {
	amount, err := money.Parse(q.Amount)
	if err != nil {
		return nil, apperr.Validation(apperr.CodeInvalidAmount, "amount must be a positive number")
	}
	if strings.TrimSpace(q.Start) == "" || strings.TrimSpace(q.End) == "" {
		return nil, apperr.Validation(apperr.CodeMissingFields, "startDate and endDate are required")
	}
	start, err := parseBound(q.Start, false)
	if err != nil {
		return nil, apperr.Validation(apperr.CodeInvalidDateRange, "startDate is not a valid date")
	}
	end, err := parseBound(q.End, true)
	if err != nil {
		return nil, apperr.Validation(apperr.CodeInvalidDateRange, "endDate is not a valid date")
	}
	if end.Before(start) {
		return nil, apperr.Validation(apperr.CodeInvalidDateRange, "endDate is before startDate")
	}

	intents, err := r.provider.ListIntents(ctx, IntentFilter{CreatedFrom: start, CreatedTo: end, Limit: listLimit})
	if err != nil {
		return nil, r.providerFailure(ctx, "intent.list", apperr.CodeLookupFailed,
			"failed to search payment intents", err)
	}

	want := money.ToMinor(amount)
	email := strings.TrimSpace(q.CustomerEmail)
	for _, pi := range intents {
		if pi.Amount != want {
			continue
		}
		if email != "" {
			if pi.ReceiptEmail != email {
				continue
			}
		} else if pi.Status != IntentSucceeded {
			continue
		}
		r.logger.Info("payment intent matched by heuristic",
			zap.String("payment_intent_id", pi.ID),
			zap.Int("candidates", len(intents)),
		)
		r.metrics.Count(ctx, MetricIntentResolved, map[string]string{"Mode": "heuristic"})
		return resolutionOf(pi), nil
	}

	r.metrics.Count(ctx, MetricIntentNotMatched, nil)
	return nil, apperr.NotFound(apperr.CodePaymentIntentNotFound, "no matching payment intent found")
}

func missing(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Missing()
}

func resolutionOf(pi Intent) *Resolution {
	return &Resolution{
		PaymentIntentID: pi.ID,
		Amount:          money.FromMinor(pi.Amount),
		AmountMinor:     pi.Amount,
		Currency:        pi.Currency,
		Status:          pi.Status,
		ReceiptEmail:    pi.ReceiptEmail,
		Created:         pi.Created,
	}
}

// parseBound accepts RFC 3339 timestamps or plain dates. A plain date used
// as an upper bound covers the whole day.
func parseBound(s string, upper bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, err
	}
	if upper {
		t = t.Add(24*time.Hour - time.Second)
	}
	return t, nil
}
