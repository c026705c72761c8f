// Package session holds the per-browser-session state that lives outside of
// the order store: the client correlation token and the local order history
// used to find orders again without authentication.
package session

import (
	"encoding/json"
	"slices"
	"sync"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// Slot keys.
const (
	KeyCart            = "cart"
	KeyClientSessionID = "clientSessionId"
	KeyLastOrder       = "lastOrder"
	KeyRecentOrders    = "recentOrders"
)

// MaxRecentOrders bounds the local order history.
const MaxRecentOrders = 20

// Session wraps a Slot with typed accessors. Read-modify-write accessors
// are serialized, so concurrent requests of one session agree on the
// client session id and keep every recorded order.
type Session struct {
	slot  Slot
	newID func() string

	mu       sync.Mutex
	clientID string
}

// New returns a Session stored in slot.
func New(slot Slot) *Session {
	return &Session{
		slot:  slot,
		newID: func() string { return uuid.New().String() },
	}
}

// Slot returns the underlying slot, e.g. for the cart store.
func (s *Session) Slot() Slot {
	return s.slot
}

// ClientSessionID returns the correlation token of this session, generating
// and caching one on first use. A failed write still returns the generated
// token; it just won't survive a reload.
func (s *Session) ClientSessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clientID != "" {
		return s.clientID
	}
	if raw, err := s.slot.Load(KeyClientSessionID); err == nil && len(raw) > 0 {
		s.clientID = string(raw)
		return s.clientID
	}
	s.clientID = s.newID()
	_ = s.slot.Save(KeyClientSessionID, []byte(s.clientID))
	return s.clientID
}

type lastOrder struct {
	ID string `json:"id"`
}

// RecordOrder stores id as the last placed order and prepends it to the
// recent order history, keeping at most MaxRecentOrders unique entries.
func (s *Session) RecordOrder(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(lastOrder{ID: id})
	if err != nil {
		return errors.Wrap(err, "marshal last order")
	}
	if err := s.slot.Save(KeyLastOrder, raw); err != nil {
		return errors.Wrap(err, "save last order")
	}

	recent := s.RecentOrders()
	recent = slices.DeleteFunc(recent, func(v string) bool { return v == id })
	recent = append([]string{id}, recent...)
	if len(recent) > MaxRecentOrders {
		recent = recent[:MaxRecentOrders]
	}

	raw, err = json.Marshal(recent)
	if err != nil {
		return errors.Wrap(err, "marshal recent orders")
	}
	if err := s.slot.Save(KeyRecentOrders, raw); err != nil {
		return errors.Wrap(err, "save recent orders")
	}
	return nil
}

// LastOrder returns the id of the most recently placed order, if any.
func (s *Session) LastOrder() (string, bool) {
	raw, err := s.slot.Load(KeyLastOrder)
	if err != nil {
		return "", false
	}
	var v lastOrder
	if err := json.Unmarshal(raw, &v); err != nil || v.ID == "" {
		return "", false
	}
	return v.ID, true
}

// RecentOrders returns the recent order ids, newest first. Unreadable history
// is treated as empty.
func (s *Session) RecentOrders() []string {
	raw, err := s.slot.Load(KeyRecentOrders)
	if err != nil {
		return nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil
	}
	return ids
}
