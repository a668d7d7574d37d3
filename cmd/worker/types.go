package main

import (
	"context"

	"github.com/imrishuroy/storefront-payments/internal/idempotency"
)

// deliveryKeys records which queue messages already produced an email, so
// redelivered messages do not notify the customer twice.
type deliveryKeys interface {
	Begin(ctx context.Context, key, fingerprint string) (idempotency.Decision, *idempotency.Record, error)
	MarkDone(ctx context.Context, key, resourceID, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, key, note string) error
}

// deliveryKeyPrefix namespaces worker keys inside the idempotency table.
const deliveryKeyPrefix = "notify:"
