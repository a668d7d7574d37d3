package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func TestCreateIfNotExists_Get_MarkDone_MarkFailed(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "idempotency-table", 48*time.Hour)

	ctx := context.Background()
	key := "test-key-1"
	orderID := "order-123"

	created, err := s.CreateIfNotExists(ctx, s.NewRecord(key, orderID, "fp"))
	if err != nil {
		t.Fatalf("CreateIfNotExists error: %v", err)
	}
	if !created {
		t.Fatalf("expected created=true")
	}

	// second create should return created=false (exists)
	created2, err := s.CreateIfNotExists(ctx, s.NewRecord(key, orderID, "fp"))
	if err != nil {
		t.Fatalf("second CreateIfNotExists error: %v", err)
	}
	if created2 {
		t.Fatalf("expected created=false on duplicate create")
	}

	rec, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if rec == nil {
		t.Fatalf("expected record, got nil")
	}
	if rec.Status != StatusInProgress {
		t.Fatalf("expected IN_PROGRESS, got %s", rec.Status)
	}
	if rec.ResourceID != orderID {
		t.Fatalf("resource id mismatch")
	}

	if err := s.MarkDone(ctx, key, orderID, `{"ok":true}`, 201); err != nil {
		t.Fatalf("MarkDone error: %v", err)
	}

	item := mock.table[key]
	if st, ok := item["status"].(*types.AttributeValueMemberS); !ok || st.Value != StatusDone {
		t.Fatalf("status not updated to DONE, got %+v", item["status"])
	}
	if rb, ok := item["response_body"].(*types.AttributeValueMemberS); !ok || rb.Value != `{"ok":true}` {
		t.Fatalf("response_body not set correctly: %+v", item["response_body"])
	}

	// a DONE record cannot be completed twice
	if err := s.MarkDone(ctx, key, orderID, `{"ok":false}`, 500); err == nil {
		t.Fatalf("expected MarkDone on a DONE record to fail")
	}

	if err := s.MarkFailed(ctx, key, "failed-reason"); err != nil {
		t.Fatalf("MarkFailed error: %v", err)
	}
	item2 := mock.table[key]
	if st, ok := item2["status"].(*types.AttributeValueMemberS); !ok || st.Value != StatusFailed {
		t.Fatalf("status not updated to FAILED, got %+v", item2["status"])
	}
	if n, ok := item2["note"].(*types.AttributeValueMemberS); !ok || n.Value != "failed-reason" {
		t.Fatalf("note not set, got %+v", item2["note"])
	}
}

func TestBegin_Lifecycle(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "idempotency", time.Hour)
	ctx := context.Background()

	d, _, err := s.Begin(ctx, "k", "fp-1")
	if err != nil || d != Proceed {
		t.Fatalf("first Begin: decision=%v err=%v", d, err)
	}

	d, rec, err := s.Begin(ctx, "k", "fp-1")
	if err != nil || d != Busy || rec == nil {
		t.Fatalf("concurrent Begin: decision=%v err=%v", d, err)
	}

	if _, _, err := s.Begin(ctx, "k", "fp-2"); !errors.Is(err, ErrKeyReused) {
		t.Fatalf("expected ErrKeyReused, got %v", err)
	}

	if err := s.MarkDone(ctx, "k", "re_1", `{"refundId":"re_1"}`, 200); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}
	d, rec, err = s.Begin(ctx, "k", "fp-1")
	if err != nil || d != Replay {
		t.Fatalf("Begin after done: decision=%v err=%v", d, err)
	}
	if rec.ResponseBody != `{"refundId":"re_1"}` || rec.ResponseStatus != 200 || rec.ResourceID != "re_1" {
		t.Fatalf("unexpected replay record: %+v", rec)
	}
}

func TestBegin_FailedIsReclaimed(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "idempotency", time.Hour)
	ctx := context.Background()

	if d, _, _ := s.Begin(ctx, "k", ""); d != Proceed {
		t.Fatalf("expected Proceed")
	}
	if err := s.MarkFailed(ctx, "k", "provider down"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	d, _, err := s.Begin(ctx, "k", "")
	if err != nil || d != Proceed {
		t.Fatalf("expected the failed key to be re-claimed, got decision=%v err=%v", d, err)
	}
	rec, _ := s.Get(ctx, "k")
	if rec.Status != StatusInProgress {
		t.Fatalf("expected IN_PROGRESS after reclaim, got %s", rec.Status)
	}

	// only one of two racing retries wins the reclaim
	if err := s.MarkFailed(ctx, "k", "again"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if ok, _ := s.Reclaim(ctx, "k"); !ok {
		t.Fatalf("first reclaim should win")
	}
	if ok, _ := s.Reclaim(ctx, "k"); ok {
		t.Fatalf("second reclaim should lose")
	}
}

func TestGet_ExpiredRecordIsAbsent(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "idempotency", time.Hour)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return base }
	if d, _, _ := s.Begin(ctx, "k", ""); d != Proceed {
		t.Fatalf("expected Proceed")
	}

	s.nowFunc = func() time.Time { return base.Add(2 * time.Hour) }
	rec, err := s.Get(ctx, "k")
	if err != nil || rec != nil {
		t.Fatalf("expected expired record to be absent, got %+v err=%v", rec, err)
	}
	if d, _, _ := s.Begin(ctx, "k", ""); d != Proceed {
		t.Fatalf("expected an expired key to be claimable")
	}
}

func TestAttributevalueMarshal_Unmarshal(t *testing.T) {
	rec := Record{
		IdempotencyKey: "k1",
		Status:         StatusInProgress,
		ResourceID:     "o1",
		Fingerprint:    "abc",
		CreatedAt:      time.Now().Round(time.Second),
		UpdatedAt:      time.Now().Round(time.Second),
		ExpiresAt:      time.Now().Add(24 * time.Hour).Unix(),
	}
	m, err := attributevalue.MarshalMap(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, ok := m["expires_at"].(*types.AttributeValueMemberN); !ok {
		t.Fatalf("expires_at must be a number for the table TTL")
	}
	var out Record
	if err := attributevalue.UnmarshalMap(m, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.IdempotencyKey != rec.IdempotencyKey || out.Fingerprint != rec.Fingerprint {
		t.Fatalf("unmarshal mismatch")
	}
}
