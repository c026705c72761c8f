package memory

import (
	"context"
	"sync"

	"github.com/xenking/quickeats/internal/domain/identity"
)

var _ identity.ProfileRepository = (*ProfileStore)(nil)

// ProfileStore keeps user profiles keyed by uid.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]identity.Profile
}

// NewProfileStore returns an empty ProfileStore.
func NewProfileStore() *ProfileStore {
	return &ProfileStore{profiles: make(map[string]identity.Profile)}
}

func (s *ProfileStore) Get(_ context.Context, uid string) (*identity.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[uid]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return &p, nil
}

func (s *ProfileStore) CreateIfAbsent(_ context.Context, p identity.Profile) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.UID]; ok {
		return false, nil
	}
	s.profiles[p.UID] = p
	return true, nil
}
