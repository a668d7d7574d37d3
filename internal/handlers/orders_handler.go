package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/storefront-payments/internal/apperr"
	"github.com/imrishuroy/storefront-payments/internal/orders"
	"github.com/imrishuroy/storefront-payments/internal/validation"
)

func (h *handler) createOrder(c *gin.Context) {
	// Bind + validate request
	var req validation.CreateOrderRequest
	if err := validation.BindAndValidate(c, &req, h.validator); err != nil {
		h.fail(c, err)
		return
	}

	// Require idempotency key header
	key := c.GetHeader(IdempotencyHeader)
	if key == "" {
		h.fail(c, apperr.Validation(apperr.CodeMissingFields, "Idempotency-Key header is required"))
		return
	}

	// The order and the key are written in one transaction; a repeated
	// key returns the order created the first time.
	o, replayed, err := h.cfg.Orders.Create(c.Request.Context(), orders.CreateInput{
		UserID:     req.UserID,
		Email:      req.Email,
		Title:      req.Title,
		Amount:     string(req.Amount),
		StoreOrder: req.IsStoreOrder,
	}, key)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Header("Location", fmt.Sprintf("/api/orders/%s", o.OrderID))
	if replayed {
		c.Header("Idempotent-Replayed", "true")
		c.JSON(http.StatusOK, orderView(o))
		return
	}
	c.JSON(http.StatusCreated, orderView(o))
}

func (h *handler) getOrder(c *gin.Context) {
	o, err := h.cfg.Orders.Get(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, orderView(o))
}

func (h *handler) confirmPayment(c *gin.Context) {
	var req validation.ConfirmPaymentRequest
	if err := validation.BindAndValidate(c, &req, h.validator); err != nil {
		h.fail(c, err)
		return
	}
	o, err := h.cfg.Orders.ConfirmPayment(c.Request.Context(), c.Param("orderId"), req.SessionID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, orderView(o))
}

func (h *handler) createRefundRequest(c *gin.Context) {
	var req validation.RefundRequestRequest
	if err := validation.BindAndValidate(c, &req, h.validator); err != nil {
		h.fail(c, err)
		return
	}
	r, err := h.cfg.Orders.RequestRefund(c.Request.Context(), c.Param("orderId"), string(req.Amount), req.Reason)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, refundView(*r))
}
