package payments

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/imrishuroy/storefront-payments/internal/apperr"
)

// Metrics receives workflow counters. Implementations must not block for long.
type Metrics interface {
	Count(ctx context.Context, name string, dims map[string]string)
}

type nopMetrics struct{}

func (nopMetrics) Count(context.Context, string, map[string]string) {}

// Metric names.
const (
	MetricCheckoutCreated  = "CheckoutSessionCreated"
	MetricIntentResolved   = "PaymentIntentResolved"
	MetricRefundProcessed  = "RefundProcessed"
	MetricProviderError    = "ProviderError"
	MetricIntentNotMatched = "PaymentIntentNotMatched"
)

type deps struct {
	logger  *zap.Logger
	metrics Metrics
}

// Option configures the workflow services.
type Option func(*deps)

func WithLogger(l *zap.Logger) Option {
	return func(d *deps) { d.logger = l }
}

func WithMetrics(m Metrics) Option {
	return func(d *deps) { d.metrics = m }
}

func newDeps(opts []Option) deps {
	d := deps{logger: zap.NewNop(), metrics: nopMetrics{}}
	for _, o := range opts {
		o(&d)
	}
	return d
}

// providerFailure logs err with full detail and converts it to an
// apperr.Error. Config errors raised by the adapter pass through unchanged.
func (d deps) providerFailure(ctx context.Context, op, code, msg string, err error) error {
	if ae, ok := apperr.As(err); ok {
		d.logger.Error("provider call not attempted", zap.String("op", op), zap.Error(err))
		return ae
	}
	d.metrics.Count(ctx, MetricProviderError, map[string]string{"Operation": op})

	var pe *ProviderError
	if errors.As(err, &pe) {
		d.logger.Error("provider call failed",
			zap.String("op", op),
			zap.String("code", pe.Code),
			zap.String("decline_code", pe.DeclineCode),
			zap.String("param", pe.Param),
			zap.Int("http_status", pe.HTTPStatus),
			zap.String("provider_request_id", pe.RequestID),
			zap.Error(err),
		)
		return apperr.Provider(code, msg, err, pe.Detail())
	}
	d.logger.Error("provider call failed", zap.String("op", op), zap.Error(err))
	return apperr.Provider(code, msg, err, map[string]any{"op": op})
}
