// Package ordertest provides an in-memory order.Repository for tests.
package ordertest

import (
	"context"
	"sort"
	"sync"

	"github.com/SG-Fashion/sgfashion/internal/domain/order"
)

// Memory is a concurrency-safe order.Repository with the same conditional
// write semantics as the SQL repository.
type Memory struct {
	mu     sync.Mutex
	orders map[string]order.Order
}

var _ order.Repository = (*Memory)(nil)

// NewMemory creates an empty Memory.
func NewMemory() *Memory {
	return &Memory{orders: make(map[string]order.Order)}
}

// Put stores o as is.
func (m *Memory) Put(o order.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
}

// Len returns the number of stored orders.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

func (m *Memory) Create(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = *o
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return &o, nil
}

func (m *Memory) List(_ context.Context, f order.Filter) ([]order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]order.Order, 0, len(m.orders))
	for _, o := range m.orders {
		if f.UserID != "" && o.UserID != f.UserID {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].ID > out[j].ID
		}
		return out[i].Date.After(out[j].Date)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func matches(o order.Order, expect order.Precondition) bool {
	if o.Status != expect.Status {
		return false
	}
	if expect.Payment != nil && o.Payment != *expect.Payment {
		return false
	}
	if expect.Refunded != nil && o.Refunded != *expect.Refunded {
		return false
	}
	return true
}

func (m *Memory) Update(_ context.Context, id string, expect order.Precondition, ch order.Change) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	if !matches(o, expect) {
		return nil, order.ErrConflict
	}
	if ch.Status != nil {
		o.Status = *ch.Status
	}
	if ch.Payment != nil {
		o.Payment = *ch.Payment
	}
	if ch.TrackingURL != nil {
		o.TrackingURL = *ch.TrackingURL
	}
	if ch.Refunded != nil {
		o.Refunded = *ch.Refunded
	}
	if ch.RefundDate != nil {
		t := *ch.RefundDate
		o.RefundDate = &t
	}
	if ch.GatewayOrderID != nil {
		o.GatewayOrderID = *ch.GatewayOrderID
	}
	if ch.GatewayPaymentID != nil {
		o.GatewayPaymentID = *ch.GatewayPaymentID
	}
	m.orders[id] = o
	return &o, nil
}

func (m *Memory) Delete(_ context.Context, id string, expect order.Precondition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	if !matches(o, expect) {
		return order.ErrConflict
	}
	delete(m.orders, id)
	return nil
}
