// Package cart implements the pre-checkout selection of a single session.
package cart

import (
	"encoding/json"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/quickeats/internal/domain/session"
)

// DefaultRestaurantID is assigned to items added without a restaurant.
const DefaultRestaurantID = "default"

var depositRate = decimal.RequireFromString("0.30")

// Item describes a catalog item being added to the cart.
type Item struct {
	ItemID       string `json:"itemId"`
	RestaurantID string `json:"restaurantId"`
	Name         string `json:"name"`
	UnitPrice    int64  `json:"unitPrice"`
	ImageRef     string `json:"imageRef,omitempty"`
}

// Entry is one cart line. At most one entry exists per (ItemID, RestaurantID).
type Entry struct {
	Item
	Quantity int `json:"quantity"`
}

// State is the observable cart state delivered to subscribers.
type State struct {
	Entries []Entry
	Open    bool
}

// Totals holds amounts derived from the cart, in the smallest currency unit.
type Totals struct {
	Subtotal   int64
	Deposit    int64
	BalanceDue int64
}

// Subscriber observes cart state changes.
type Subscriber func(State)

// Store owns the cart of one session. Mutations are serialized; subscribers
// are notified after every change, outside the lock.
type Store struct {
	slot session.Slot
	lg   *zap.Logger

	mu      sync.Mutex
	entries []Entry
	open    bool
	subs    map[uint64]Subscriber
	nextSub uint64
}

// NewStore restores the cart persisted in slot. Unreadable data yields an
// empty cart.
func NewStore(slot session.Slot, lg *zap.Logger) *Store {
	s := &Store{
		slot: slot,
		lg:   lg,
		subs: make(map[uint64]Subscriber),
	}
	s.entries = s.load()
	return s
}

func (s *Store) load() []Entry {
	raw, err := s.slot.Load(session.KeyCart)
	if err != nil {
		return nil
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		s.lg.Debug("Discard unreadable cart", zap.Error(err))
		return nil
	}
	return entries
}

// persist writes entries to the slot. Failures are swallowed: the cart keeps
// working in memory for the rest of the session.
func (s *Store) persist(entries []Entry) {
	raw, err := json.Marshal(entries)
	if err == nil {
		err = s.slot.Save(session.KeyCart, raw)
	}
	if err != nil {
		s.lg.Debug("Persist cart", zap.Error(err))
	}
}

// mutate applies fn under the lock, persists when entries changed and
// notifies subscribers.
func (s *Store) mutate(fn func() bool) {
	s.mu.Lock()
	changed := fn()
	state := s.snapshotLocked()
	subs := make([]Subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	if changed {
		s.persist(state.Entries)
	}
	for _, sub := range subs {
		s.deliver(sub, state)
	}
}

func (s *Store) deliver(sub Subscriber, state State) {
	defer func() {
		if r := recover(); r != nil {
			s.lg.Warn("Cart subscriber panicked", zap.Any("panic", r))
		}
	}()
	sub(state)
}

func (s *Store) snapshotLocked() State {
	entries := make([]Entry, len(s.entries))
	copy(entries, s.entries)
	return State{Entries: entries, Open: s.open}
}

func matches(e Entry, itemID, restaurantID string) bool {
	if e.ItemID != itemID {
		return false
	}
	return restaurantID == "" || e.RestaurantID == restaurantID
}

// AddItem adds qty units of item. An existing entry for the same
// (ItemID, RestaurantID) pair has its quantity increased instead.
func (s *Store) AddItem(item Item, qty int) {
	if qty <= 0 {
		return
	}
	if item.RestaurantID == "" {
		item.RestaurantID = DefaultRestaurantID
	}
	s.mutate(func() bool {
		for i := range s.entries {
			if s.entries[i].ItemID == item.ItemID && s.entries[i].RestaurantID == item.RestaurantID {
				s.entries[i].Quantity += qty
				return true
			}
		}
		s.entries = append(s.entries, Entry{Item: item, Quantity: qty})
		return true
	})
}

// UpdateQuantity sets the quantity of the matching entry; qty <= 0 removes
// it. An empty restaurantID matches the item in every restaurant.
func (s *Store) UpdateQuantity(itemID, restaurantID string, qty int) {
	s.mutate(func() bool {
		out := s.entries[:0]
		changed := false
		for _, e := range s.entries {
			if matches(e, itemID, restaurantID) {
				changed = true
				if qty <= 0 {
					continue
				}
				e.Quantity = qty
			}
			out = append(out, e)
		}
		s.entries = out
		return changed
	})
}

// RemoveItem removes the matching entry. An empty restaurantID removes the
// item from every restaurant.
func (s *Store) RemoveItem(itemID, restaurantID string) {
	s.UpdateQuantity(itemID, restaurantID, 0)
}

// RemoveEntries takes the quantities of taken out of the cart, matching on
// (ItemID, RestaurantID). Entries whose quantity drops to zero are removed;
// anything added since taken was read stays.
func (s *Store) RemoveEntries(taken []Entry) {
	if len(taken) == 0 {
		return
	}
	s.mutate(func() bool {
		out := s.entries[:0]
		changed := false
		for _, e := range s.entries {
			for _, t := range taken {
				if t.ItemID == e.ItemID && t.RestaurantID == e.RestaurantID {
					e.Quantity -= t.Quantity
					changed = true
				}
			}
			if e.Quantity > 0 {
				out = append(out, e)
			}
		}
		s.entries = out
		return changed
	})
}

// Clear empties the cart.
func (s *Store) Clear() {
	s.mutate(func() bool {
		s.entries = nil
		return true
	})
}

// Open marks the cart as visible.
func (s *Store) Open() {
	s.mutate(func() bool {
		s.open = true
		return false
	})
}

// Close marks the cart as hidden.
func (s *Store) Close() {
	s.mutate(func() bool {
		s.open = false
		return false
	})
}

// ToggleOpen flips cart visibility.
func (s *Store) ToggleOpen() {
	s.mutate(func() bool {
		s.open = !s.open
		return false
	})
}

// Subscribe registers fn. It immediately receives the current state and then
// every subsequent change until the returned function is called.
func (s *Store) Subscribe(fn Subscriber) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	state := s.snapshotLocked()
	s.mu.Unlock()

	s.deliver(fn, state)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// State returns the current cart state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Items returns a copy of the cart entries.
func (s *Store) Items() []Entry {
	return s.State().Entries
}

// Count returns the total number of units in the cart.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.entries {
		n += e.Quantity
	}
	return n
}

// Totals computes subtotal, the 30% deposit and the balance due at pickup.
func (s *Store) Totals() Totals {
	return ComputeTotals(s.Items())
}

// ComputeTotals derives amounts for entries. The deposit is rounded half up
// to the nearest unit.
func ComputeTotals(entries []Entry) Totals {
	var subtotal int64
	for _, e := range entries {
		subtotal += e.UnitPrice * int64(e.Quantity)
	}
	deposit := decimal.NewFromInt(subtotal).Mul(depositRate).Round(0).IntPart()
	return Totals{
		Subtotal:   subtotal,
		Deposit:    deposit,
		BalanceDue: subtotal - deposit,
	}
}
