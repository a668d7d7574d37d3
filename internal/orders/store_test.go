package orders

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/storefront-payments/internal/idempotency"
)

// mockDynamo stores items per table: table -> pk -> item. It evaluates the
// handful of condition and update expressions the stores issue.
type mockDynamo struct {
	mu     sync.Mutex
	tables map[string]map[string]map[string]types.AttributeValue
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{
		tables: map[string]map[string]map[string]types.AttributeValue{},
	}
}

func (m *mockDynamo) ensureTable(tbl string) map[string]map[string]types.AttributeValue {
	if _, ok := m.tables[tbl]; !ok {
		m.tables[tbl] = map[string]map[string]types.AttributeValue{}
	}
	return m.tables[tbl]
}

func pkOf(item map[string]types.AttributeValue) (string, error) {
	for _, name := range []string{"order_id", "idempotency_key"} {
		if v, ok := item[name].(*types.AttributeValueMemberS); ok {
			return v.Value, nil
		}
	}
	return "", errors.New("no primary key")
}

// check evaluates cond against the current item (nil when absent).
func check(cond *string, cur map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) bool {
	if cond == nil {
		return true
	}
	c := *cond
	if strings.HasPrefix(c, "attribute_not_exists(") {
		return cur == nil
	}
	if cur == nil {
		return false
	}
	parts := strings.SplitN(c, " = ", 2)
	attr := parts[0]
	if real, ok := names[attr]; ok {
		attr = real
	}
	switch want := values[parts[1]].(type) {
	case *types.AttributeValueMemberS:
		got, ok := cur[attr].(*types.AttributeValueMemberS)
		return ok && got.Value == want.Value
	case *types.AttributeValueMemberN:
		got, ok := cur[attr].(*types.AttributeValueMemberN)
		return ok && got.Value == want.Value
	}
	return false
}

func (m *mockDynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tbl := m.ensureTable(*params.TableName)
	pk, err := pkOf(params.Item)
	if err != nil {
		return nil, err
	}
	if !check(params.ConditionExpression, tbl[pk], params.ExpressionAttributeNames, params.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{}
	}
	tbl[pk] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tbl := m.ensureTable(*params.TableName)
	pk, err := pkOf(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := tbl[pk]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *mockDynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tbl := m.ensureTable(*params.TableName)
	pk, err := pkOf(params.Key)
	if err != nil {
		return nil, err
	}
	cur, exists := tbl[pk]
	if !exists || !check(params.ConditionExpression, cur, params.ExpressionAttributeNames, params.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{}
	}

	resolve := func(n string) string {
		if real, ok := params.ExpressionAttributeNames[n]; ok {
			return real
		}
		return n
	}
	item := make(map[string]types.AttributeValue, len(cur))
	for k, v := range cur {
		item[k] = v
	}
	for _, assign := range strings.Split(strings.TrimPrefix(*params.UpdateExpression, "SET "), ", ") {
		lhs, rhs, _ := strings.Cut(assign, " = ")
		if base, inc, ok := strings.Cut(rhs, " + "); ok {
			n, _ := strconv.ParseInt(item[resolve(base)].(*types.AttributeValueMemberN).Value, 10, 64)
			d, _ := strconv.ParseInt(params.ExpressionAttributeValues[inc].(*types.AttributeValueMemberN).Value, 10, 64)
			item[resolve(lhs)] = &types.AttributeValueMemberN{Value: strconv.FormatInt(n+d, 10)}
			continue
		}
		item[resolve(lhs)] = params.ExpressionAttributeValues[rhs]
	}
	tbl[pk] = item
	return &dyn.UpdateItemOutput{Attributes: item}, nil
}

func (m *mockDynamo) DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tbl := m.ensureTable(*params.TableName)
	pk, err := pkOf(params.Key)
	if err != nil {
		return nil, err
	}
	delete(tbl, pk)
	return &dyn.DeleteItemOutput{}, nil
}

func (m *mockDynamo) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// First pass: verify every condition
	for _, it := range params.TransactItems {
		p := it.Put
		if p == nil {
			continue
		}
		pk, err := pkOf(p.Item)
		if err != nil {
			return nil, err
		}
		if !check(p.ConditionExpression, m.ensureTable(*p.TableName)[pk], p.ExpressionAttributeNames, p.ExpressionAttributeValues) {
			return nil, &types.TransactionCanceledException{}
		}
	}
	// Second pass: apply all puts
	for _, it := range params.TransactItems {
		if p := it.Put; p != nil {
			pk, _ := pkOf(p.Item)
			m.ensureTable(*p.TableName)[pk] = p.Item
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

func newTestStore(mock *mockDynamo) *DynamoStore {
	return NewDynamoStore(mock, "orders", idempotency.NewStore(mock, "idempotency", 48*time.Hour))
}

func TestCreate_WithIdempotencyKey(t *testing.T) {
	mock := newMockDynamo()
	store := newTestStore(mock)
	ctx := context.Background()

	order := &Order{OrderID: "order-1", Title: "Widget", AmountMinor: 12345, Currency: "usd", Status: StatusPending}
	if err := store.Create(ctx, order, "key-1"); err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if order.Version != 1 || order.CreatedAt.IsZero() {
		t.Fatalf("expected version 1 and timestamps, got %+v", order)
	}

	var rec idempotency.Record
	if err := attributevalue.UnmarshalMap(mock.tables["idempotency"]["order:key-1"], &rec); err != nil {
		t.Fatalf("unmarshal idempotency item: %v", err)
	}
	if rec.Status != idempotency.StatusDone || rec.ResourceID != "order-1" {
		t.Fatalf("expected DONE record for order-1, got %+v", rec)
	}
	var got Order
	if err := attributevalue.UnmarshalMap(mock.tables["orders"]["order-1"], &got); err != nil {
		t.Fatalf("unmarshal order: %v", err)
	}
	if got.OrderID != "order-1" || got.AmountMinor != 12345 {
		t.Fatalf("stored order mismatch: %+v", got)
	}

	id, err := store.OrderIDForKey(ctx, "key-1")
	if err != nil || id != "order-1" {
		t.Fatalf("OrderIDForKey = %q, %v", id, err)
	}
}

func TestCreate_ExistingIdempotencyKey_Fails(t *testing.T) {
	mock := newMockDynamo()
	mock.ensureTable("idempotency")["order:key-2"] = map[string]types.AttributeValue{
		"idempotency_key": &types.AttributeValueMemberS{Value: "order:key-2"},
		"status":          &types.AttributeValueMemberS{Value: "DONE"},
	}
	store := newTestStore(mock)

	err := store.Create(context.Background(), &Order{OrderID: "order-2", Status: StatusPending}, "key-2")
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if _, ok := mock.tables["orders"]["order-2"]; ok {
		t.Fatalf("order must not be written when the transaction is cancelled")
	}
}

func TestCreate_KeyDoesNotBlockOtherFlows(t *testing.T) {
	mock := newMockDynamo()
	keys := idempotency.NewStore(mock, "idempotency", 48*time.Hour)
	store := NewDynamoStore(mock, "orders", keys)
	ctx := context.Background()

	if err := store.Create(ctx, &Order{OrderID: "order-3", Status: StatusPending}, "shared"); err != nil {
		t.Fatalf("create: %v", err)
	}

	// the same client key on a refund is a fresh claim, not an
	// in-progress order record
	decision, _, err := keys.Begin(ctx, "shared", "fp")
	if err != nil || decision != idempotency.Proceed {
		t.Fatalf("Begin = %v, %v; want Proceed", decision, err)
	}

	if err := store.Create(ctx, &Order{OrderID: "order-4", Status: StatusPending}, "shared"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate on a repeated order key, got %v", err)
	}
	id, err := store.OrderIDForKey(ctx, "shared")
	if err != nil || id != "order-3" {
		t.Fatalf("OrderIDForKey = %q, %v", id, err)
	}
}

func TestCreate_WithoutKey(t *testing.T) {
	mock := newMockDynamo()
	store := newTestStore(mock)
	ctx := context.Background()

	if err := store.Create(ctx, &Order{OrderID: "o", Status: StatusPending}, ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, &Order{OrderID: "o", Status: StatusPending}, ""); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for a reused order id, got %v", err)
	}
}

func TestUpdateStatus_Condition_SuccessAndFail(t *testing.T) {
	mock := newMockDynamo()
	store := newTestStore(mock)
	ctx := context.Background()
	if err := store.Create(ctx, &Order{OrderID: "order-10", Status: StatusPending, AmountMinor: 100}, ""); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.UpdateStatus(ctx, "order-10", StatusPending, StatusPaid); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	err := store.UpdateStatus(ctx, "order-10", StatusPending, StatusCancelled)
	if !errors.Is(err, ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch, got %v", err)
	}

	o, err := store.Get(ctx, "order-10")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if o.Status != StatusPaid || o.Version != 2 {
		t.Fatalf("expected paid at version 2, got %s v%d", o.Status, o.Version)
	}

	if err := store.UpdateStatus(ctx, "missing", StatusPending, StatusPaid); !errors.Is(err, ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch for a missing order, got %v", err)
	}
}

func TestSave_OptimisticVersion(t *testing.T) {
	mock := newMockDynamo()
	store := newTestStore(mock)
	ctx := context.Background()
	if err := store.Create(ctx, &Order{OrderID: "o", Status: StatusPaid, AmountMinor: 100}, ""); err != nil {
		t.Fatalf("create: %v", err)
	}

	a, _ := store.Get(ctx, "o")
	b, _ := store.Get(ctx, "o")

	a.RefundRequests = append(a.RefundRequests, RefundRequest{ID: "r1", AmountMinor: 50, Status: RefundRequested})
	if err := store.Save(ctx, a); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if a.Version != 2 {
		t.Fatalf("expected version 2 after save, got %d", a.Version)
	}

	b.RefundRequests = append(b.RefundRequests, RefundRequest{ID: "r2", AmountMinor: 80, Status: RefundRequested})
	if err := store.Save(ctx, b); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	if b.Version != 1 {
		t.Fatalf("failed save must not bump the version, got %d", b.Version)
	}

	got, _ := store.Get(ctx, "o")
	if len(got.RefundRequests) != 1 || got.RefundRequests[0].ID != "r1" {
		t.Fatalf("unexpected refund requests: %+v", got.RefundRequests)
	}
}

func TestGet_MissingAndDelete(t *testing.T) {
	mock := newMockDynamo()
	store := newTestStore(mock)
	ctx := context.Background()

	o, err := store.Get(ctx, "nope")
	if err != nil || o != nil {
		t.Fatalf("expected (nil, nil), got %+v, %v", o, err)
	}

	_ = store.Create(ctx, &Order{OrderID: "o", Status: StatusPending}, "")
	if err := store.Delete(ctx, "o"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if o, _ := store.Get(ctx, "o"); o != nil {
		t.Fatalf("expected order to be gone")
	}
}

func TestTransitions(t *testing.T) {
	allowed := [][2]string{
		{StatusPending, StatusPaid}, {StatusPaid, StatusShipped}, {StatusShipped, StatusDelivered},
		{StatusPending, StatusCancelled}, {StatusPaid, StatusCancelled},
	}
	for _, tr := range allowed {
		if !CanTransition(tr[0], tr[1]) {
			t.Errorf("%s -> %s should be allowed", tr[0], tr[1])
		}
	}
	denied := [][2]string{
		{StatusPaid, StatusPending}, {StatusShipped, StatusCancelled}, {StatusDelivered, StatusShipped},
		{StatusCancelled, StatusPaid}, {StatusPending, StatusShipped}, {StatusDelivered, StatusCancelled},
	}
	for _, tr := range denied {
		if CanTransition(tr[0], tr[1]) {
			t.Errorf("%s -> %s should be denied", tr[0], tr[1])
		}
	}

	if !CanTransitionRefund(RefundRequested, RefundApproved) || !CanTransitionRefund(RefundApproved, RefundProcessed) {
		t.Errorf("refund happy path should be allowed")
	}
	if CanTransitionRefund(RefundRequested, RefundProcessed) || CanTransitionRefund(RefundProcessed, RefundRejected) ||
		CanTransitionRefund(RefundRejected, RefundApproved) {
		t.Errorf("refund shortcuts and moves out of terminal states must be denied")
	}
}
