package memory

import "github.com/xenking/quickeats/internal/domain/session"

// SessionStore keeps the slots of every session in one process-local map.
// Contents are lost on restart; use the redis store to keep carts.
type SessionStore struct {
	backing *session.Memory
}

// NewSessionStore returns an empty SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{backing: session.NewMemory()}
}

// Slot returns the slot of session id.
func (s *SessionStore) Slot(id string) session.Slot {
	return session.Scoped(s.backing, id)
}
