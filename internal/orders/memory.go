package orders

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Repository for local runs and tests.
type MemoryStore struct {
	mu     sync.Mutex
	orders map[string]Order
	keys   map[string]string
	now    func() time.Time
}

var _ Repository = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: map[string]Order{}, keys: map[string]string{}, now: time.Now}
}

func (m *MemoryStore) Create(_ context.Context, o *Order, idempotencyKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.OrderID]; ok {
		return ErrDuplicate
	}
	if idempotencyKey != "" {
		if _, ok := m.keys[idempotencyKey]; ok {
			return ErrDuplicate
		}
		m.keys[idempotencyKey] = o.OrderID
	}
	now := m.now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	o.Version = 1
	m.orders[o.OrderID] = clone(*o)
	return nil
}

func (m *MemoryStore) OrderIDForKey(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[key], nil
}

func (m *MemoryStore) Get(_ context.Context, orderID string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, nil
	}
	c := clone(o)
	return &c, nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, orderID, expected, next string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.Status != expected {
		return ErrStatusMismatch
	}
	o.Status = next
	o.Version++
	o.UpdatedAt = m.now().UTC()
	m.orders[orderID] = o
	return nil
}

func (m *MemoryStore) Save(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.orders[o.OrderID]
	if !ok || cur.Version != o.Version {
		return ErrVersionConflict
	}
	o.Version++
	o.UpdatedAt = m.now().UTC()
	m.orders[o.OrderID] = clone(*o)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.orders, orderID)
	return nil
}

func clone(o Order) Order {
	o.RefundRequests = append([]RefundRequest(nil), o.RefundRequests...)
	return o
}
