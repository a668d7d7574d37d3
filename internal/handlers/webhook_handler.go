package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/storefront-payments/internal/apperr"
	"github.com/imrishuroy/storefront-payments/internal/payments/stripepay"
)

const maxWebhookBody = 256 << 10

// stripeWebhook applies completed checkout sessions to their orders.
// Business rejections (unknown order, amount mismatch) are acknowledged so
// the provider stops retrying; storage failures answer 500 so it retries.
func (h *handler) stripeWebhook(c *gin.Context) {
	if h.cfg.Webhooks == nil {
		h.fail(c, apperr.Config("STRIPE_WEBHOOK_SECRET"))
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large", "code": "PAYLOAD_TOO_LARGE"})
		return
	}
	if err != nil {
		h.fail(c, apperr.Validation(apperr.CodeInvalidRequest, "unreadable body"))
		return
	}

	ev, err := h.cfg.Webhooks.Verify(payload, c.GetHeader("Stripe-Signature"))
	if errors.Is(err, stripepay.ErrBadSignature) {
		h.logger.Warn("webhook signature rejected", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid signature", "code": "INVALID_SIGNATURE"})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	if ev.Type == stripepay.EventCheckoutSessionCompleted && ev.Session != nil {
		o, err := h.cfg.Orders.MarkPaidFromWebhook(c.Request.Context(), ev.Session)
		if err != nil {
			if _, ok := apperr.As(err); !ok {
				h.fail(c, err)
				return
			}
			h.logger.Warn("webhook not applied",
				zap.String("event_id", ev.ID),
				zap.String("session_id", ev.Session.ID),
				zap.Error(err),
			)
		} else if o != nil {
			h.logger.Info("webhook applied", zap.String("event_id", ev.ID), zap.String("order_id", o.OrderID))
		}
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
