package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/imrishuroy/storefront-payments/internal/chat"
	"github.com/imrishuroy/storefront-payments/internal/csrf"
	"github.com/imrishuroy/storefront-payments/internal/idempotency"
	"github.com/imrishuroy/storefront-payments/internal/notify"
	"github.com/imrishuroy/storefront-payments/internal/orders"
	"github.com/imrishuroy/storefront-payments/internal/payments"
	"github.com/imrishuroy/storefront-payments/internal/payments/stripepay"
	"github.com/imrishuroy/storefront-payments/internal/ratelimit"
	"github.com/imrishuroy/storefront-payments/internal/validation"
)

// IdempotencyHeader carries the client's idempotency key.
const IdempotencyHeader = "Idempotency-Key"

// IdempotencyStore claims and completes idempotency keys.
type IdempotencyStore interface {
	Begin(ctx context.Context, key, fingerprint string) (idempotency.Decision, *idempotency.Record, error)
	MarkDone(ctx context.Context, key, resourceID, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, key, note string) error
}

// ChatCompleter forwards chat requests upstream.
type ChatCompleter interface {
	Complete(ctx context.Context, model string, messages []chat.Message) (*chat.Response, error)
}

// HandlerConfig groups dependencies for the API routes. Nil limiters
// disable rate limiting; a nil RefundKeys disables idempotency on refunds.
type HandlerConfig struct {
	Logger     *zap.Logger
	Production bool

	// Function, when set, registers only the route with that name so each
	// endpoint can be deployed as its own function.
	Function string

	CSRF        *csrf.Issuer
	Limiter     *ratelimit.Limiter
	ChatLimiter *ratelimit.Limiter

	Checkout   *payments.CheckoutService
	Resolver   *payments.Resolver
	Refunds    *payments.RefundService
	Orders     *orders.Service
	RefundKeys IdempotencyStore
	Webhooks   *stripepay.WebhookVerifier
	Chat       ChatCompleter
	Mailer     notify.Sender
}

type handler struct {
	cfg       HandlerConfig
	logger    *zap.Logger
	validator *validatorv10.Validate
}

type route struct {
	name   string
	method string
	path   string
	csrf   bool

	// unlimited routes skip the global rate limiter
	unlimited bool
	extra     []gin.HandlerFunc
	handle    gin.HandlerFunc
}

// Route names accepted by API_FUNCTION.
const (
	FuncCSRFToken     = "csrf-token"
	FuncCheckout      = "create-checkout-session"
	FuncGetIntent     = "get-payment-intent"
	FuncFindIntent    = "find-payment-intent"
	FuncProcessRefund = "process-refund"
	FuncChat          = "chat"
	FuncSendEmail     = "send-email"
	FuncOrders        = "orders"
	FuncStripeWebhook = "stripe-webhook"
)

// RegisterRoutes registers the API routes on r. Unknown paths answer 404
// and known paths with the wrong method answer 405, both as JSON.
func RegisterRoutes(r *gin.Engine, cfg HandlerConfig) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	h := &handler{cfg: cfg, logger: cfg.Logger, validator: validation.New()}

	var chatLimit []gin.HandlerFunc
	if cfg.ChatLimiter != nil {
		chatLimit = append(chatLimit, ratelimit.Middleware(cfg.ChatLimiter))
	}

	routes := []route{
		{name: FuncCSRFToken, method: http.MethodGet, path: "/api/csrf-token", handle: h.csrfToken},
		{name: FuncCheckout, method: http.MethodPost, path: "/api/create-checkout-session", csrf: true, handle: h.createCheckoutSession},
		{name: FuncGetIntent, method: http.MethodGet, path: "/api/get-payment-intent/:sessionId", handle: h.getPaymentIntent},
		{name: FuncFindIntent, method: http.MethodPost, path: "/api/find-payment-intent", csrf: true, handle: h.findPaymentIntent},
		{name: FuncProcessRefund, method: http.MethodPost, path: "/api/process-refund", csrf: true, handle: h.processRefund},
		{name: FuncChat, method: http.MethodPost, path: "/api/chat", csrf: true, extra: chatLimit, handle: h.chat},
		{name: FuncSendEmail, method: http.MethodPost, path: "/api/send-email", csrf: true, handle: h.sendEmail},
		{name: FuncOrders, method: http.MethodPost, path: "/api/orders", csrf: true, handle: h.createOrder},
		{name: FuncOrders, method: http.MethodGet, path: "/api/orders/:orderId", handle: h.getOrder},
		{name: FuncOrders, method: http.MethodPost, path: "/api/orders/:orderId/confirm-payment", csrf: true, handle: h.confirmPayment},
		{name: FuncOrders, method: http.MethodPost, path: "/api/orders/:orderId/refund-requests", csrf: true, handle: h.createRefundRequest},
		{name: FuncStripeWebhook, method: http.MethodPost, path: "/api/webhooks/stripe", unlimited: true, handle: h.stripeWebhook},
	}

	var csrfCheck gin.HandlerFunc
	if cfg.CSRF != nil {
		csrfCheck = csrf.Middleware(cfg.CSRF)
	}

	for _, rt := range routes {
		if cfg.Function != "" && cfg.Function != rt.name {
			continue
		}
		var chain []gin.HandlerFunc
		if cfg.Limiter != nil && !rt.unlimited {
			chain = append(chain, ratelimit.Middleware(cfg.Limiter))
		}
		chain = append(chain, rt.extra...)
		if rt.csrf {
			if csrfCheck == nil {
				// without an issuer no token can ever validate
				chain = append(chain, rejectCSRF)
			} else {
				chain = append(chain, csrfCheck)
			}
		}
		chain = append(chain, rt.handle)
		r.Handle(rt.method, rt.path, chain...)
	}

	r.HandleMethodNotAllowed = true
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed", "code": "METHOD_NOT_ALLOWED"})
	})
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found", "code": "NOT_FOUND"})
	})
}

func rejectCSRF(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid csrf token", "code": "CSRF_INVALID"})
}
