// Package memory provides in-process realtime stores. They stand in for the
// hosted database when no DATABASE_URL is configured and back the handler
// tests.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/xenking/quickeats/internal/domain/order"
)

var _ order.Repository = (*OrderStore)(nil)

// OrderStore keeps orders in a map and pushes the full collection to every
// subscriber after each write.
type OrderStore struct {
	mu     sync.Mutex
	orders map[string]order.Order
	hub    *hub[[]order.Order]
	newID  func() string
}

// NewOrderStore returns an empty OrderStore.
func NewOrderStore() *OrderStore {
	s := &OrderStore{
		orders: make(map[string]order.Order),
		newID:  uuid.NewString,
	}
	s.hub = newHub(s.snapshot)
	return s
}

func (s *OrderStore) Create(_ context.Context, o *order.Order) (string, error) {
	s.mu.Lock()
	id := s.newID()
	c := o.Clone()
	c.ID = id
	s.orders[id] = c
	s.mu.Unlock()

	s.hub.publish()
	return id, nil
}

func (s *OrderStore) Get(_ context.Context, id string) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	c := o.Clone()
	return &c, nil
}

func (s *OrderStore) List(_ context.Context) ([]order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(), nil
}

func (s *OrderStore) Update(_ context.Context, id string, p order.Patch) error {
	s.mu.Lock()
	o, ok := s.orders[id]
	if !ok {
		s.mu.Unlock()
		return order.ErrNotFound
	}
	p.Apply(&o)
	s.orders[id] = o
	s.mu.Unlock()

	s.hub.publish()
	return nil
}

func (s *OrderStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.orders[id]; !ok {
		s.mu.Unlock()
		return order.ErrNotFound
	}
	delete(s.orders, id)
	s.mu.Unlock()

	s.hub.publish()
	return nil
}

func (s *OrderStore) Subscribe(ctx context.Context, fn func([]order.Order)) (func(), error) {
	return s.hub.subscribe(ctx, fn), nil
}

func (s *OrderStore) snapshot() []order.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// snapshotLocked returns deep copies ordered by creation time.
func (s *OrderStore) snapshotLocked() []order.Order {
	out := make([]order.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o.Clone())
	}
	slices.SortFunc(out, func(a, b order.Order) int {
		if a.CreatedAt != b.CreatedAt {
			if a.CreatedAt < b.CreatedAt {
				return -1
			}
			return 1
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out
}
