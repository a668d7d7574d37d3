package orders

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/storefront-payments/internal/aws"
	"github.com/imrishuroy/storefront-payments/internal/idempotency"
)

// DynamoStore keeps orders in DynamoDB. Idempotency keys for order
// creation live in the idempotency table and are written in the same
// transaction as the order.
type DynamoStore struct {
	client    aws.DynamoDBAPI
	tableName string
	keys      *idempotency.Store
	nowFunc   func() time.Time
}

var _ Repository = (*DynamoStore)(nil)

func NewDynamoStore(client aws.DynamoDBAPI, tableName string, keys *idempotency.Store) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		keys:      keys,
		nowFunc:   time.Now,
	}
}

// orderKeyPrefix namespaces order-create keys inside the idempotency
// table, which process-refund and the worker share.
const orderKeyPrefix = "order:"

// Create atomically writes:
//   - the idempotency record (attribute_not_exists(idempotency_key))
//   - the order (attribute_not_exists(order_id))
//
// The record is written DONE with the order id as its resource, since
// the order exists once the transaction commits. An empty key writes the
// order alone.
func (s *DynamoStore) Create(ctx context.Context, o *Order, idempotencyKey string) error {
	now := s.nowFunc().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	o.Version = 1

	orderMap, err := attributevalue.MarshalMap(o)
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}
	orderPut := types.TransactWriteItem{
		Put: &types.Put{
			TableName:           &s.tableName,
			Item:                orderMap,
			ConditionExpression: awsString("attribute_not_exists(order_id)"),
		},
	}

	if idempotencyKey == "" {
		_, err := s.client.PutItem(ctx, &dyn.PutItemInput{
			TableName:           orderPut.Put.TableName,
			Item:                orderMap,
			ConditionExpression: orderPut.Put.ConditionExpression,
		})
		if err != nil {
			var ccf *types.ConditionalCheckFailedException
			if errors.As(err, &ccf) {
				return ErrDuplicate
			}
			return fmt.Errorf("put order: %w", err)
		}
		return nil
	}

	rec := s.keys.NewRecord(orderKeyPrefix+idempotencyKey, o.OrderID, "")
	rec.Status = idempotency.StatusDone
	rec.ResponseStatus = http.StatusCreated
	idempMap, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal idempotency item: %w", err)
	}
	input := &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           awsString(s.keys.TableName()),
					Item:                idempMap,
					ConditionExpression: awsString("attribute_not_exists(idempotency_key)"),
				},
			},
			orderPut,
		},
	}

	if _, err := s.client.TransactWriteItems(ctx, input); err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			return fmt.Errorf("%w: %v", ErrDuplicate, err)
		}
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

func (s *DynamoStore) OrderIDForKey(ctx context.Context, key string) (string, error) {
	rec, err := s.keys.Get(ctx, orderKeyPrefix+key)
	if err != nil || rec == nil {
		return "", err
	}
	return rec.ResourceID, nil
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *DynamoStore) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            orderKey(orderID),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// UpdateStatus conditionally updates the order status from expected -> next
// and bumps the version so concurrent Saves notice.
func (s *DynamoStore) UpdateStatus(ctx context.Context, orderID, expected, next string) error {
	now := s.nowFunc().UTC()
	input := &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      orderKey(orderID),
		UpdateExpression:         awsString("SET #s = :new, updated_at = :ua, #v = #v + :one"),
		ConditionExpression:      awsString("#s = :expected"),
		ExpressionAttributeNames: map[string]string{"#s": "status", "#v": "version"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new":      &types.AttributeValueMemberS{Value: next},
			":expected": &types.AttributeValueMemberS{Value: expected},
			":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
			":one":      &types.AttributeValueMemberN{Value: "1"},
		},
	}

	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		var sc *types.ConditionalCheckFailedException
		if errors.As(err, &sc) {
			return ErrStatusMismatch
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// Save writes the whole order guarded by version = o.Version.
func (s *DynamoStore) Save(ctx context.Context, o *Order) error {
	prev := o.Version
	o.Version = prev + 1
	o.UpdatedAt = s.nowFunc().UTC()

	item, err := attributevalue.MarshalMap(o)
	if err != nil {
		o.Version = prev
		return fmt.Errorf("marshal order item: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("#v = :v"),
		ExpressionAttributeNames: map[string]string{
			"#v": "version",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberN{Value: strconv.FormatInt(prev, 10)},
		},
	})
	if err != nil {
		o.Version = prev
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrVersionConflict
		}
		return fmt.Errorf("put order: %w", err)
	}
	return nil
}

func (s *DynamoStore) Delete(ctx context.Context, orderID string) error {
	_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName: &s.tableName,
		Key:       orderKey(orderID),
	})
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

func orderKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: id},
	}
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
