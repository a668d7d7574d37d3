package orders

import "context"

// Repository persists orders. Get returns (nil, nil) when the order does
// not exist.
type Repository interface {
	// Create writes a new order together with its idempotency key in one
	// atomic step. A reused key or order id yields ErrDuplicate.
	Create(ctx context.Context, o *Order, idempotencyKey string) error
	// OrderIDForKey returns the order created under key, or "".
	OrderIDForKey(ctx context.Context, key string) (string, error)
	Get(ctx context.Context, orderID string) (*Order, error)
	// UpdateStatus moves expected -> next or fails with ErrStatusMismatch.
	UpdateStatus(ctx context.Context, orderID, expected, next string) error
	// Save replaces the order if its stored version equals o.Version, then
	// bumps o.Version. Fails with ErrVersionConflict otherwise.
	Save(ctx context.Context, o *Order) error
	Delete(ctx context.Context, orderID string) error
}
