package order

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// Viewer identifies a customer for the "my orders" projection. Any
// non-empty field may match.
type Viewer struct {
	UID       string
	Email     string
	SessionID string
	// OrderIDs are orders the session remembers placing, for anonymous
	// viewers whose session id changed.
	OrderIDs []string
}

// Projection derives a read-only view from the full order collection.
type Projection func([]Order) []Order

// ForCustomer returns the orders placed by v, newest first.
func ForCustomer(orders []Order, v Viewer) []Order {
	out := make([]Order, 0)
	for _, o := range orders {
		if o.PlacedBy(v) {
			out = append(out, o.Clone())
		}
	}
	sortNewestFirst(out)
	return out
}

// PlacedBy reports whether v is the customer of o.
func (o Order) PlacedBy(v Viewer) bool {
	switch {
	case v.UID != "" && o.CustomerID == v.UID,
		v.Email != "" && strings.EqualFold(o.CustomerEmail, v.Email),
		v.SessionID != "" && o.ClientSessionID == v.SessionID,
		slices.Contains(v.OrderIDs, o.ID):
		return true
	}
	return false
}

// ForOwner returns the orders of the restaurants in slugs, newest first.
func ForOwner(orders []Order, slugs []string) []Order {
	out := make([]Order, 0)
	if len(slugs) == 0 {
		return out
	}
	for _, o := range orders {
		if o.BelongsTo(slugs) {
			out = append(out, o.Clone())
		}
	}
	sortNewestFirst(out)
	return out
}

// Find returns the order with the given id.
func Find(orders []Order, id string) (Order, bool) {
	for _, o := range orders {
		if o.ID == id {
			return o.Clone(), true
		}
	}
	return Order{}, false
}

func sortNewestFirst(orders []Order) {
	slices.SortStableFunc(orders, func(a, b Order) int {
		switch {
		case a.CreatedAt > b.CreatedAt:
			return -1
		case a.CreatedAt < b.CreatedAt:
			return 1
		}
		return 0
	})
}

// CustomerView is ForCustomer bound to v.
func CustomerView(v Viewer) Projection {
	v.OrderIDs = slices.Clone(v.OrderIDs)
	return func(orders []Order) []Order { return ForCustomer(orders, v) }
}

// OwnerView is ForOwner bound to a copy of slugs.
func OwnerView(slugs []string) Projection {
	owned := slices.Clone(slugs)
	return func(orders []Order) []Order { return ForOwner(orders, owned) }
}

// TrackingView yields the single order with id, or nothing.
func TrackingView(id string) Projection {
	return func(orders []Order) []Order {
		o, ok := Find(orders, id)
		if !ok {
			return []Order{}
		}
		return []Order{o}
	}
}

// Live keeps a projection current. It re-derives and pushes whenever the
// store delivers a new snapshot or the projection inputs change.
type Live struct {
	mu       sync.Mutex
	snapshot []Order
	project  Projection
	push     func([]Order)
	cancel   func()
}

// Watch subscribes to repo and pushes project(snapshot) to push for every
// snapshot the store delivers.
func Watch(ctx context.Context, repo Repository, project Projection, push func([]Order)) (*Live, error) {
	l := &Live{project: project, push: push}
	cancel, err := repo.Subscribe(ctx, l.onSnapshot)
	if err != nil {
		return nil, &PersistenceError{Op: "subscribe orders", Err: err}
	}
	l.mu.Lock()
	l.cancel = cancel
	l.mu.Unlock()
	return l, nil
}

func (l *Live) onSnapshot(orders []Order) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snapshot = orders
	l.push(l.project(orders))
}

// Watch keeps project applied to the live order collection.
func (s *Service) Watch(ctx context.Context, project Projection, push func([]Order)) (*Live, error) {
	return Watch(ctx, s.orders, project, push)
}

// SetProjection swaps the projection, e.g. after the owned restaurant set
// changed, and pushes the re-derived view.
func (l *Live) SetProjection(p Projection) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.project = p
	l.push(p(l.snapshot))
}

// Close stops the subscription.
func (l *Live) Close() {
	l.mu.Lock()
	cancel := l.cancel
	l.cancel = nil
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
