package memory

import (
	"context"
	"maps"
	"strings"
	"sync"

	"github.com/xenking/quickeats/internal/domain/owner"
)

var (
	_ owner.Repository    = (*OwnerStore)(nil)
	_ owner.BusinessUsers = (*BusinessUserStore)(nil)
)

// OwnerStore maps restaurant slugs to owner emails.
type OwnerStore struct {
	mu     sync.Mutex
	owners map[string]string
	hub    *hub[map[string]string]
}

// NewOwnerStore returns an empty OwnerStore.
func NewOwnerStore() *OwnerStore {
	s := &OwnerStore{owners: make(map[string]string)}
	s.hub = newHub(s.snapshot)
	return s
}

func (s *OwnerStore) Assign(_ context.Context, restaurant, email string) error {
	s.mu.Lock()
	s.owners[restaurant] = email
	s.mu.Unlock()

	s.hub.publish()
	return nil
}

func (s *OwnerStore) Assignments(_ context.Context) (map[string]string, error) {
	return s.snapshot(), nil
}

func (s *OwnerStore) Subscribe(ctx context.Context, fn func(map[string]string)) (func(), error) {
	return s.hub.subscribe(ctx, fn), nil
}

func (s *OwnerStore) snapshot() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.owners)
}

// BusinessUserStore is a case-insensitive set of business emails.
type BusinessUserStore struct {
	mu     sync.RWMutex
	emails map[string]struct{}
}

// NewBusinessUserStore returns a store seeded with emails.
func NewBusinessUserStore(emails ...string) *BusinessUserStore {
	s := &BusinessUserStore{emails: make(map[string]struct{}, len(emails))}
	for _, e := range emails {
		s.emails[normalizeEmail(e)] = struct{}{}
	}
	return s
}

func (s *BusinessUserStore) Exists(_ context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.emails[normalizeEmail(email)]
	return ok, nil
}

func (s *BusinessUserStore) Add(_ context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return nil
	}
	s.mu.Lock()
	s.emails[email] = struct{}{}
	s.mu.Unlock()
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
