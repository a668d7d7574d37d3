package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/imrishuroy/storefront-payments/internal/aws"
	"github.com/imrishuroy/storefront-payments/internal/config"
	"github.com/imrishuroy/storefront-payments/internal/idempotency"
	"github.com/imrishuroy/storefront-payments/internal/logging"
	"github.com/imrishuroy/storefront-payments/internal/notify"
)

const localBody = `{"type":"order.paid","orderId":"local-order-1","email":"customer@example.com","title":"Local order","amount":"49.99","currency":"usd"}`

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

	sender := notify.NewMailjetSender(cfg.Mailjet.APIKey, cfg.Mailjet.SecretKey, cfg.Mailjet.FromEmail, cfg.Mailjet.FromName)

	var keys deliveryKeys
	if cfg.Store.Backend == "dynamodb" {
		clients, err := aws.NewClients(context.Background(), cfg.AWS.Region, cfg.AWS.EndpointOverride)
		if err != nil {
			logger.Fatal("failed to init aws clients", zap.Error(err))
		}
		keys = idempotency.NewStore(clients.DynamoDB, cfg.Store.IdempotencyTable, cfg.Store.IdempotencyTTL)
	}

	p := NewProcessor(sender, keys, logger)

	// If RUN_LOCAL=true, process a single simulated event and exit.
	if cfg.RunLocal {
		body := localBody
		if v := cfg.LocalSQSBody; v != "" {
			body = v
		}
		resp, err := p.Handle(context.Background(), events.SQSEvent{
			Records: []events.SQSMessage{{Body: body}},
		})
		if err != nil || len(resp.BatchItemFailures) > 0 {
			logger.Fatal("local handler error", zap.Error(err), zap.Int("failures", len(resp.BatchItemFailures)))
		}
		return
	}

	lambda.Start(p.Handle)
}
