package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// keysCollection holds one document per idempotency key used to create an order.
const keysCollection = "order_idempotency_keys"

type keyDoc struct {
	OrderID   string    `firestore:"order_id"`
	CreatedAt time.Time `firestore:"created_at"`
}

// FirestoreStore keeps orders in a Firestore collection. Multi-document
// changes run in Firestore transactions.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	nowFunc    func() time.Time
}

var _ Repository = (*FirestoreStore)(nil)

// NewFirestoreClient connects to projectID. credentialsFile is optional;
// application default credentials (or FIRESTORE_EMULATOR_HOST) are used
// when it is empty.
func NewFirestoreClient(ctx context.Context, projectID, credentialsFile string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("firestore project id not configured")
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	return firestore.NewClient(ctx, projectID, opts...)
}

func NewFirestoreStore(client *firestore.Client, collection string) *FirestoreStore {
	return &FirestoreStore{client: client, collection: collection, nowFunc: time.Now}
}

func (s *FirestoreStore) doc(id string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(id)
}

func (s *FirestoreStore) Create(ctx context.Context, o *Order, idempotencyKey string) error {
	now := s.nowFunc().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	o.Version = 1

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if idempotencyKey != "" {
			keyRef := s.client.Collection(keysCollection).Doc(idempotencyKey)
			if _, err := tx.Get(keyRef); err == nil {
				return ErrDuplicate
			} else if status.Code(err) != codes.NotFound {
				return err
			}
			if err := tx.Create(keyRef, keyDoc{OrderID: o.OrderID, CreatedAt: now}); err != nil {
				return err
			}
		}
		return tx.Create(s.doc(o.OrderID), o)
	})
	if err != nil {
		if errors.Is(err, ErrDuplicate) || status.Code(err) == codes.AlreadyExists {
			return ErrDuplicate
		}
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (s *FirestoreStore) OrderIDForKey(ctx context.Context, key string) (string, error) {
	snap, err := s.client.Collection(keysCollection).Doc(key).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get idempotency key: %w", err)
	}
	var k keyDoc
	if err := snap.DataTo(&k); err != nil {
		return "", fmt.Errorf("decode idempotency key: %w", err)
	}
	return k.OrderID, nil
}

// Get fetches an order by id. Returns (nil, nil) if not found.
func (s *FirestoreStore) Get(ctx context.Context, orderID string) (*Order, error) {
	snap, err := s.doc(orderID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	var o Order
	if err := snap.DataTo(&o); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	return &o, nil
}

func (s *FirestoreStore) UpdateStatus(ctx context.Context, orderID, expected, next string) error {
	ref := s.doc(orderID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return ErrStatusMismatch
			}
			return err
		}
		cur, err := snap.DataAt("status")
		if err != nil || cur != expected {
			return ErrStatusMismatch
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "status", Value: next},
			{Path: "updated_at", Value: s.nowFunc().UTC()},
			{Path: "version", Value: firestore.Increment(1)},
		})
	})
	if errors.Is(err, ErrStatusMismatch) {
		return ErrStatusMismatch
	}
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

func (s *FirestoreStore) Save(ctx context.Context, o *Order) error {
	ref := s.doc(o.OrderID)
	prev := o.Version
	now := s.nowFunc().UTC()
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		v, err := snap.DataAt("version")
		if err != nil {
			return err
		}
		if stored, ok := v.(int64); !ok || stored != prev {
			return ErrVersionConflict
		}
		next := *o
		next.Version = prev + 1
		next.UpdatedAt = now
		return tx.Set(ref, &next)
	})
	if errors.Is(err, ErrVersionConflict) {
		return ErrVersionConflict
	}
	if err != nil {
		return fmt.Errorf("save order: %w", err)
	}
	o.Version = prev + 1
	o.UpdatedAt = now
	return nil
}

func (s *FirestoreStore) Delete(ctx context.Context, orderID string) error {
	if _, err := s.doc(orderID).Delete(ctx); err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	return nil
}
