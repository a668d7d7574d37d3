package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/storefront-payments/internal/aws"
	"github.com/imrishuroy/storefront-payments/internal/chat"
	"github.com/imrishuroy/storefront-payments/internal/config"
	"github.com/imrishuroy/storefront-payments/internal/csrf"
	"github.com/imrishuroy/storefront-payments/internal/handlers"
	"github.com/imrishuroy/storefront-payments/internal/idempotency"
	"github.com/imrishuroy/storefront-payments/internal/logging"
	"github.com/imrishuroy/storefront-payments/internal/notify"
	"github.com/imrishuroy/storefront-payments/internal/orders"
	"github.com/imrishuroy/storefront-payments/internal/payments"
	"github.com/imrishuroy/storefront-payments/internal/payments/stripepay"
	"github.com/imrishuroy/storefront-payments/internal/ratelimit"
)

func setupRouter(cfg config.Config, hc handlers.HandlerConfig, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logging.Middleware(logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Origins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", csrf.HeaderName, handlers.IdempotencyHeader, logging.RequestIDHeader},
		ExposeHeaders:    []string{logging.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterRoutes(r, hc)

	return r
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	// AWS clients are only needed for DynamoDB, SQS and CloudWatch.
	var clients *aws.Clients
	if cfg.Store.Backend == "dynamodb" || cfg.Queue != "" || cfg.Metrics.Enabled {
		clients, err = aws.NewClients(ctx, cfg.AWS.Region, cfg.AWS.EndpointOverride)
		if err != nil {
			logger.Fatal("failed to init aws clients", zap.Error(err))
		}
	}

	var metrics payments.Metrics = nopMetrics{}
	if cfg.Metrics.Enabled {
		metrics = aws.NewMetrics(clients.CloudWatch, cfg.Metrics.Namespace, logger)
	}
	opts := []payments.Option{payments.WithLogger(logger), payments.WithMetrics(metrics)}

	provider := stripepay.New(cfg.Stripe.SecretKey, logger)
	if cfg.Stripe.SecretKey == "" {
		logger.Warn("STRIPE_SECRET_KEY is not set; payment routes will answer with a config error")
	}
	resolver := payments.NewResolver(provider, opts...)

	var publisher notify.Publisher = notify.Nop{}
	if cfg.Queue != "" {
		publisher = notify.NewQueuePublisher(aws.NewPublisher(clients.SQS, cfg.Queue), logger)
	}

	hc := handlers.HandlerConfig{
		Logger:      logger,
		Production:  cfg.Production(),
		Function:    cfg.Function,
		CSRF:        newIssuer(cfg, logger),
		Limiter:     ratelimit.New(cfg.RateLimit.Max, cfg.RateLimit.Window),
		ChatLimiter: ratelimit.New(cfg.RateLimit.ChatMax, cfg.RateLimit.ChatWindow),
		Checkout:    payments.NewCheckoutService(provider, cfg.FrontendURL, cfg.Currency, opts...),
		Resolver:    resolver,
		Refunds:     payments.NewRefundService(provider, opts...),
		Webhooks:    stripepay.NewWebhookVerifier(cfg.Stripe.WebhookSecret),
		Chat:        chat.NewClient(cfg.Chat.APIKey, cfg.Chat.BaseURL, cfg.Chat.DefaultModel, cfg.FrontendURL, logger),
		Mailer:      notify.NewMailjetSender(cfg.Mailjet.APIKey, cfg.Mailjet.SecretKey, cfg.Mailjet.FromEmail, cfg.Mailjet.FromName),
	}

	repo, closeRepo := newRepository(ctx, cfg, clients, logger)
	defer closeRepo()
	hc.Orders = orders.NewService(repo, resolver, publisher, cfg.Currency, logger)
	if cfg.Store.Backend == "dynamodb" {
		hc.RefundKeys = idempotency.NewStore(clients.DynamoDB, cfg.Store.IdempotencyTable, cfg.Store.IdempotencyTTL)
	}

	r := setupRouter(cfg, hc, logger)

	// if RUN_LOCAL is true, run local HTTP server for development.
	if cfg.RunLocal {
		addr := ":" + cfg.Port
		logger.Info("running local server", zap.String("addr", addr), zap.String("store", cfg.Store.Backend))
		if err := r.Run(addr); err != nil {
			logger.Fatal("failed to run local server", zap.Error(err))
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (interface{}, error) {
		// the adapter handles proxying; use adapter.ProxyWithContext for proper context propagation
		return adapter.ProxyWithContext(ctx, req)
	})
}

// newIssuer builds the CSRF issuer. Without CSRF_SECRET a random secret is
// generated, so tokens do not survive a restart and are not shared between
// function instances.
func newIssuer(cfg config.Config, logger *zap.Logger) *csrf.Issuer {
	secret := []byte(cfg.CSRF.Secret)
	if len(secret) == 0 {
		generated, err := csrf.GenerateSecret()
		if err != nil {
			logger.Fatal("failed to generate csrf secret", zap.Error(err))
		}
		secret = generated
		logger.Warn("CSRF_SECRET is not set; using a per-process secret, issued tokens will not survive a restart")
	}
	issuer, err := csrf.New(secret, cfg.CSRF.TokenTTL)
	if err != nil {
		logger.Fatal("invalid csrf secret", zap.Error(err))
	}
	return issuer
}

// newRepository selects the order store named by ORDER_STORE.
func newRepository(ctx context.Context, cfg config.Config, clients *aws.Clients, logger *zap.Logger) (orders.Repository, func()) {
	switch cfg.Store.Backend {
	case "firestore":
		fs, err := orders.NewFirestoreClient(ctx, cfg.Store.FirestoreProject, cfg.Store.CredentialsFile)
		if err != nil {
			logger.Fatal("failed to init firestore", zap.Error(err))
		}
		return orders.NewFirestoreStore(fs, cfg.Store.FirestoreCollection), func() { _ = fs.Close() }
	case "memory":
		logger.Warn("using in-memory order store; orders are lost on restart")
		return orders.NewMemoryStore(), func() {}
	default:
		keys := idempotency.NewStore(clients.DynamoDB, cfg.Store.IdempotencyTable, cfg.Store.IdempotencyTTL)
		return orders.NewDynamoStore(clients.DynamoDB, cfg.Store.OrdersTable, keys), func() {}
	}
}

type nopMetrics struct{}

func (nopMetrics) Count(context.Context, string, map[string]string) {}
