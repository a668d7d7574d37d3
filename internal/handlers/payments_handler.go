package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/storefront-payments/internal/apperr"
	"github.com/imrishuroy/storefront-payments/internal/idempotency"
	"github.com/imrishuroy/storefront-payments/internal/money"
	"github.com/imrishuroy/storefront-payments/internal/payments"
	"github.com/imrishuroy/storefront-payments/internal/validation"
)

func (h *handler) csrfToken(c *gin.Context) {
	if h.cfg.CSRF == nil {
		h.fail(c, apperr.Config("CSRF_SECRET"))
		return
	}
	token, err := h.cfg.CSRF.Issue()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *handler) createCheckoutSession(c *gin.Context) {
	var req validation.CheckoutRequest
	if err := validation.BindAndValidate(c, &req, h.validator); err != nil {
		h.fail(c, err)
		return
	}

	res, err := h.cfg.Checkout.CreateSession(c.Request.Context(), payments.CheckoutRequest{
		Amount:         string(req.Amount),
		OrderID:        req.Reference(),
		Title:          req.OrderTitle,
		CustomerEmail:  req.CustomerEmail,
		StoreOrder:     req.IsStoreOrder,
		IdempotencyKey: c.GetHeader(IdempotencyHeader),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": res.URL, "sessionId": res.SessionID})
}

func (h *handler) getPaymentIntent(c *gin.Context) {
	res, err := h.cfg.Resolver.BySession(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"paymentIntentId": res.PaymentIntentID,
		"amount":          money.Float(res.Amount),
		"status":          res.Status,
		"created":         res.Created.Format(time.RFC3339),
		"orderId":         res.OrderID,
		"isStoreOrder":    res.StoreOrder,
	})
}

func (h *handler) findPaymentIntent(c *gin.Context) {
	var req validation.FindIntentRequest
	if err := validation.BindAndValidate(c, &req, h.validator); err != nil {
		h.fail(c, err)
		return
	}

	res, err := h.cfg.Resolver.ByHeuristic(c.Request.Context(), payments.HeuristicQuery{
		Amount:        string(req.Amount),
		Start:         req.StartDate,
		End:           req.EndDate,
		CustomerEmail: req.CustomerEmail,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"paymentIntentId": res.PaymentIntentID,
		"amount":          money.Float(res.Amount),
		"status":          res.Status,
		"created":         res.Created.Format(time.RFC3339),
	})
}

type refundResponse struct {
	RefundID        string  `json:"refundId"`
	Status          string  `json:"status"`
	Amount          float64 `json:"amount"`
	OrderID         string  `json:"orderId,omitempty"`
	RefundRequestID string  `json:"refundRequestId,omitempty"`
}

// processRefund submits a refund to the provider. With an Idempotency-Key
// header a repeated request replays the first response. With orderId and
// refundRequestId the refund settles that approved request.
func (h *handler) processRefund(c *gin.Context) {
	ctx := c.Request.Context()

	var req validation.ProcessRefundRequest
	if err := validation.BindAndValidate(c, &req, h.validator); err != nil {
		h.fail(c, err)
		return
	}

	key := c.GetHeader(IdempotencyHeader)
	claimed := key != "" && h.cfg.RefundKeys != nil
	if claimed {
		decision, rec, err := h.cfg.RefundKeys.Begin(ctx, key, fingerprint(req))
		switch {
		case errors.Is(err, idempotency.ErrKeyReused):
			h.fail(c, apperr.Conflict(apperr.CodeIdempotencyKeyReused, "idempotency key was used with a different request"))
			return
		case err != nil:
			h.fail(c, err)
			return
		case decision == idempotency.Replay:
			c.Header("Idempotent-Replayed", "true")
			c.Data(rec.ResponseStatus, "application/json; charset=utf-8", []byte(rec.ResponseBody))
			return
		case decision == idempotency.Busy:
			h.fail(c, apperr.Conflict(apperr.CodeRequestInProgress, "a request with this idempotency key is still in progress"))
			return
		}
	}

	resp, err := h.refund(ctx, req, key)
	if err != nil {
		if claimed {
			if mfErr := h.cfg.RefundKeys.MarkFailed(ctx, key, err.Error()); mfErr != nil {
				h.logger.Warn("mark idempotency failed", zap.String("idempotency_key", key), zap.Error(mfErr))
			}
		}
		h.fail(c, err)
		return
	}

	body, _ := json.Marshal(resp)
	if claimed {
		if err := h.cfg.RefundKeys.MarkDone(ctx, key, resp.RefundID, string(body), http.StatusOK); err != nil {
			h.logger.Warn("mark idempotency done", zap.String("idempotency_key", key), zap.Error(err))
		}
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

func (h *handler) refund(ctx context.Context, req validation.ProcessRefundRequest, key string) (*refundResponse, error) {
	meta := map[string]string{}
	if req.OrderID != "" {
		o, rr, err := h.cfg.Orders.ApprovedRefund(ctx, req.OrderID, req.RefundRequestID)
		if err != nil {
			return nil, err
		}
		if o.PaymentIntentID == "" || o.PaymentIntentID != req.PaymentIntentID {
			return nil, apperr.Conflict(apperr.CodePaymentMismatch, "payment intent does not belong to this order")
		}
		amount, err := money.Parse(string(req.Amount))
		if err == nil && money.ToMinor(amount) != rr.AmountMinor {
			return nil, apperr.Validation(apperr.CodeInvalidAmount, "amount does not match the refund request")
		}
		meta[payments.MetadataOrderID] = req.OrderID
		meta["refundRequestId"] = req.RefundRequestID
	}

	res, err := h.cfg.Refunds.Process(ctx, payments.RefundRequest{
		PaymentIntentID: req.PaymentIntentID,
		Amount:          string(req.Amount),
		Reason:          req.Reason,
		IdempotencyKey:  key,
		Metadata:        meta,
	})
	if err != nil {
		return nil, err
	}

	out := &refundResponse{RefundID: res.RefundID, Status: res.Status, Amount: money.Float(res.Amount)}
	if req.OrderID != "" {
		// The provider refund exists at this point; a failed order update
		// is reported in the logs and left for an operator.
		if _, err := h.cfg.Orders.CompleteRefund(ctx, req.OrderID, req.RefundRequestID, req.PaymentIntentID, res.RefundID); err != nil {
			h.logger.Error("refund processed but order not updated",
				zap.String("order_id", req.OrderID),
				zap.String("refund_request_id", req.RefundRequestID),
				zap.String("refund_id", res.RefundID),
				zap.Error(err),
			)
		} else {
			out.OrderID = req.OrderID
			out.RefundRequestID = req.RefundRequestID
		}
	}
	return out, nil
}

// fingerprint identifies a refund request body for idempotency checks.
func fingerprint(req validation.ProcessRefundRequest) string {
	b, _ := json.Marshal(req)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
