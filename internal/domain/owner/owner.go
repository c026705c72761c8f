// Package owner maps restaurants to the business accounts allowed to run them.
package owner

import (
	"context"
	"slices"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/quickeats/internal/domain/identity"
	"github.com/xenking/quickeats/internal/domain/slug"
)

// Sentinel errors for owner assignment.
var (
	ErrInvalidAssignment   = errors.New("restaurantId and email required")
	ErrBusinessUserMissing = errors.New("business user does not exist")
	ErrForbidden           = errors.New("caller not authorized to assign this owner")
)

// Repository stores the restaurant slug to owner email mapping.
type Repository interface {
	Assign(ctx context.Context, restaurantSlug, email string) error
	Assignments(ctx context.Context) (map[string]string, error)
	// Subscribe calls fn with the current mapping and again after every
	// change until the returned cancel func is called or ctx is done.
	Subscribe(ctx context.Context, fn func(map[string]string)) (func(), error)
}

// BusinessUsers is the registry of emails allowed to hold restaurants.
type BusinessUsers interface {
	Exists(ctx context.Context, email string) (bool, error)
	Add(ctx context.Context, email string) error
}

// Allowlist lists restaurants whose catalog entry names email as contact.
type Allowlist interface {
	OwnedBy(email string) []string
}

// Service resolves and changes restaurant ownership.
type Service struct {
	owners    Repository
	users     BusinessUsers
	allowlist Allowlist
}

// NewService creates an owner Service.
func NewService(owners Repository, users BusinessUsers, allowlist Allowlist) *Service {
	return &Service{
		owners:    owners,
		users:     users,
		allowlist: allowlist,
	}
}

// Assign makes email the owner of restaurantID. The email must belong to a
// registered business user, and unless the caller is an admin it must be the
// caller's own.
func (s *Service) Assign(ctx context.Context, caller identity.Identity, restaurantID, email string) error {
	restaurantID = strings.TrimSpace(restaurantID)
	email = strings.TrimSpace(email)
	if restaurantID == "" || email == "" {
		return ErrInvalidAssignment
	}
	if !caller.Authenticated() {
		return identity.ErrUnauthenticated
	}

	exists, err := s.users.Exists(ctx, email)
	if err != nil {
		return errors.Wrap(err, "check business user")
	}
	if !exists {
		return ErrBusinessUserMissing
	}
	if !caller.Admin && !strings.EqualFold(caller.Email, email) {
		return ErrForbidden
	}

	if err := s.owners.Assign(ctx, slug.Canonicalize(restaurantID), email); err != nil {
		return errors.Wrap(err, "assign owner")
	}
	return nil
}

// OwnedRestaurants returns the canonical slugs id may manage.
func (s *Service) OwnedRestaurants(ctx context.Context, id identity.Identity) ([]string, error) {
	if strings.TrimSpace(id.Email) == "" {
		return nil, nil
	}
	assignments, err := s.owners.Assignments(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list assignments")
	}
	return s.Owned(assignments, id.Email), nil
}

// Owned computes the owned slug set for email from an assignment snapshot
// and the catalog allowlist. The result is sorted and free of duplicates.
func (s *Service) Owned(assignments map[string]string, email string) []string {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil
	}
	var out []string
	for restaurant, owner := range assignments {
		if strings.EqualFold(owner, email) {
			out = append(out, slug.Canonicalize(restaurant))
		}
	}
	if s.allowlist != nil {
		out = append(out, s.allowlist.OwnedBy(email)...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Subscribe pushes the owned slug set of email whenever assignments change.
func (s *Service) Subscribe(ctx context.Context, email string, fn func([]string)) (func(), error) {
	return s.owners.Subscribe(ctx, func(assignments map[string]string) {
		fn(s.Owned(assignments, email))
	})
}
