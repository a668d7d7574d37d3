package payments

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/imrishuroy/storefront-payments/internal/apperr"
	"github.com/imrishuroy/storefront-payments/internal/money"
)

type RefundRequest struct {
	PaymentIntentID string
	Amount          string
	Reason          string
	IdempotencyKey  string
	// Metadata is attached to the provider refund next to the reason.
	Metadata map[string]string
}

type RefundResult struct {
	RefundID    string
	Status      string
	Amount      decimal.Decimal
	AmountMinor int64
}

// RefundService submits refunds against payment intents. Double refunds
// are prevented by the provider, not here.
type RefundService struct {
	provider Provider
	deps
}

func NewRefundService(p Provider, opts ...Option) *RefundService {
	return &RefundService{provider: p, deps: newDeps(opts)}
}

// Process refunds amount against the payment intent. The provider only
// accepts a closed set of reasons, so the free-text reason is kept in
// metadata.
func (s *RefundService) Process(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	intentID := strings.TrimSpace(req.PaymentIntentID)
	if intentID == "" {
		return nil, apperr.Validation(apperr.CodeMissingFields, "paymentIntentId is required")
	}
	amount, err := money.Parse(req.Amount)
	if err != nil {
		return nil, apperr.Validation(apperr.CodeInvalidAmount, "amount must be a positive number")
	}
	minor := money.ToMinor(amount)
	if minor <= 0 {
		return nil, apperr.Validation(apperr.CodeInvalidAmount, "amount is below the smallest currency unit")
	}

	meta := make(map[string]string, len(req.Metadata)+1)
	for k, v := range req.Metadata {
		meta[k] = v
	}
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		meta[MetadataRefundReason] = reason
	}

	ref, err := s.provider.CreateRefund(ctx, RefundParams{
		PaymentIntentID: intentID,
		Amount:          minor,
		Reason:          RefundReasonRequestedByCustomer,
		Metadata:        meta,
		IdempotencyKey:  req.IdempotencyKey,
	})
	if err != nil {
		return nil, s.providerFailure(ctx, "refund.create", apperr.CodeRefundFailed, "failed to process refund", err)
	}

	s.logger.Info("refund created",
		zap.String("refund_id", ref.ID),
		zap.String("payment_intent_id", intentID),
		zap.String("status", ref.Status),
		zap.Int64("amount", ref.Amount),
	)
	s.metrics.Count(ctx, MetricRefundProcessed, map[string]string{"Status": ref.Status})

	return &RefundResult{
		RefundID:    ref.ID,
		Status:      ref.Status,
		Amount:      money.FromMinor(ref.Amount),
		AmountMinor: ref.Amount,
	}, nil
}
