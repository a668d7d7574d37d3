// Command storectl is the operator CLI for orders and refund requests.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/imrishuroy/storefront-payments/internal/aws"
	"github.com/imrishuroy/storefront-payments/internal/config"
	"github.com/imrishuroy/storefront-payments/internal/idempotency"
	"github.com/imrishuroy/storefront-payments/internal/logging"
	"github.com/imrishuroy/storefront-payments/internal/notify"
	"github.com/imrishuroy/storefront-payments/internal/orders"
	"github.com/imrishuroy/storefront-payments/internal/payments"
	"github.com/imrishuroy/storefront-payments/internal/payments/stripepay"
)

var Version = "dev"

// app holds what the subcommands operate on.
type app struct {
	orders  *orders.Service
	refunds *payments.RefundService
	close   func()
}

// loader builds the app lazily so --help works without configuration.
type loader func(ctx context.Context) (*app, error)

func main() {
	rootCmd := newRootCmd(loadApp)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(load loader) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "storectl",
		Short:         "Inspect and administer storefront orders and refunds",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(orderCmd(load))
	rootCmd.AddCommand(refundCmd(load))
	return rootCmd
}

func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	var clients *aws.Clients
	if cfg.Store.Backend == "dynamodb" || cfg.Queue != "" {
		clients, err = aws.NewClients(ctx, cfg.AWS.Region, cfg.AWS.EndpointOverride)
		if err != nil {
			return nil, fmt.Errorf("init aws clients: %w", err)
		}
	}

	closeFn := func() { _ = logger.Sync() }
	var repo orders.Repository
	switch cfg.Store.Backend {
	case "firestore":
		fs, err := orders.NewFirestoreClient(ctx, cfg.Store.FirestoreProject, cfg.Store.CredentialsFile)
		if err != nil {
			return nil, err
		}
		repo = orders.NewFirestoreStore(fs, cfg.Store.FirestoreCollection)
		closeFn = func() { _ = fs.Close(); _ = logger.Sync() }
	case "memory":
		return nil, fmt.Errorf("ORDER_STORE=memory has no shared state to administer")
	default:
		keys := idempotency.NewStore(clients.DynamoDB, cfg.Store.IdempotencyTable, cfg.Store.IdempotencyTTL)
		repo = orders.NewDynamoStore(clients.DynamoDB, cfg.Store.OrdersTable, keys)
	}

	var publisher notify.Publisher = notify.Nop{}
	if cfg.Queue != "" {
		publisher = notify.NewQueuePublisher(aws.NewPublisher(clients.SQS, cfg.Queue), logger)
	}

	provider := stripepay.New(cfg.Stripe.SecretKey, logger)
	resolver := payments.NewResolver(provider, payments.WithLogger(logger))
	return &app{
		orders:  orders.NewService(repo, resolver, publisher, cfg.Currency, logger.With(zap.String("component", "storectl"))),
		refunds: payments.NewRefundService(provider, payments.WithLogger(logger)),
		close:   closeFn,
	}, nil
}

// withApp loads the app, runs fn and releases it.
func withApp(cmd *cobra.Command, load loader, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := load(ctx)
	if err != nil {
		return err
	}
	if a.close != nil {
		defer a.close()
	}
	return fn(ctx, a)
}
