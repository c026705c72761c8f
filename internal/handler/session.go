package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/quickeats/internal/domain/cart"
	"github.com/xenking/quickeats/internal/domain/session"
)

// HeaderSessionID carries the browser session token. The server mints one
// when the client has none and echoes it on every response.
const HeaderSessionID = "X-Session-ID"

// SlotProvider hands out the durable slot of a session.
type SlotProvider interface {
	Slot(id string) session.Slot
}

type clientSession struct {
	id      string
	cart    *cart.Store
	session *session.Session
	seen    time.Time
}

// Sessions caches the cart store of active sessions. Carts are rebuilt from
// the slot after eviction, so only the open/closed flag is lost.
type Sessions struct {
	slots SlotProvider
	lg    *zap.Logger
	now   func() time.Time

	mu     sync.Mutex
	active map[string]*clientSession
}

// NewSessions returns a session registry over slots.
func NewSessions(slots SlotProvider, lg *zap.Logger) *Sessions {
	return &Sessions{
		slots:  slots,
		lg:     lg,
		now:    time.Now,
		active: make(map[string]*clientSession),
	}
}

// resolve returns the session of r, minting an id for new clients.
func (s *Sessions) resolve(w http.ResponseWriter, r *http.Request) *clientSession {
	id := r.Header.Get(HeaderSessionID)
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}
	w.Header().Set(HeaderSessionID, id)
	return s.get(id)
}

func (s *Sessions) get(id string) *clientSession {
	now := s.now()
	s.mu.Lock()
	if cs, ok := s.active[id]; ok {
		cs.seen = now
		s.mu.Unlock()
		return cs
	}
	s.mu.Unlock()

	// Restoring the cart reads the slot; keep that outside the lock.
	slot := s.slots.Slot(id)
	fresh := &clientSession{
		id:      id,
		cart:    cart.NewStore(slot, s.lg.With(zap.String("session_id", id))),
		session: session.New(slot),
		seen:    now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cs, ok := s.active[id]; ok {
		return cs
	}
	s.active[id] = fresh
	return fresh
}

// Evict forgets sessions idle for longer than idle.
func (s *Sessions) Evict(idle time.Duration) int {
	deadline := s.now().Add(-idle)
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, cs := range s.active {
		if cs.seen.Before(deadline) {
			delete(s.active, id)
			n++
		}
	}
	return n
}

// Run evicts idle sessions every interval until ctx ends.
func (s *Sessions) Run(ctx context.Context, interval, idle time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.Evict(idle); n > 0 {
				s.lg.Debug("Evicted idle sessions", zap.Int("count", n))
			}
		}
	}
}
