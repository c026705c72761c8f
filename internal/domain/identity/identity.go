// Package identity models the authenticated caller and its stored profile.
package identity

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// Sentinel errors.
var (
	ErrNotFound        = errors.New("profile not found")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrInvalidToken    = errors.New("invalid token")
)

// Identity is the set of claims supplied by the identity provider.
type Identity struct {
	UID         string `json:"uid"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	PhotoURL    string `json:"photoURL,omitempty"`
	Admin       bool   `json:"admin,omitempty"`
}

// Authenticated reports whether the identity carries a uid.
func (i Identity) Authenticated() bool {
	return strings.TrimSpace(i.UID) != ""
}

// Verifier turns a bearer token into an Identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// Role separates customers from restaurant staff.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleBusiness Role = "business"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleBusiness
}

// Profile is the stored user record.
type Profile struct {
	UID         string `json:"uid"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	PhotoURL    string `json:"photoURL,omitempty"`
	Role        Role   `json:"role"`
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	CreatedAt   int64  `json:"createdAt"`
}

// ProfileRepository stores profiles keyed by uid.
type ProfileRepository interface {
	Get(ctx context.Context, uid string) (*Profile, error)
	// CreateIfAbsent writes p unless a profile for p.UID already exists and
	// reports whether it wrote.
	CreateIfAbsent(ctx context.Context, p Profile) (bool, error)
}

// Details are optional sign-up fields.
type Details struct {
	Role        Role
	FirstName   string
	LastName    string
	DisplayName string
}

// Service owns the profile write path.
type Service struct {
	profiles ProfileRepository
	now      func() time.Time
}

// NewService creates a profile Service.
func NewService(profiles ProfileRepository) *Service {
	return &Service{profiles: profiles, now: time.Now}
}

// EnsureProfile writes a profile for id unless one exists, then returns the
// stored profile. First login and explicit sign-up both go through here.
func (s *Service) EnsureProfile(ctx context.Context, id Identity, d Details) (*Profile, error) {
	if !id.Authenticated() {
		return nil, ErrUnauthenticated
	}
	role := d.Role
	if !role.Valid() {
		role = RoleCustomer
	}
	displayName := d.DisplayName
	if displayName == "" {
		displayName = id.DisplayName
	}
	p := Profile{
		UID:         id.UID,
		Email:       id.Email,
		DisplayName: displayName,
		PhotoURL:    id.PhotoURL,
		Role:        role,
		FirstName:   d.FirstName,
		LastName:    d.LastName,
		CreatedAt:   s.now().UnixMilli(),
	}
	if _, err := s.profiles.CreateIfAbsent(ctx, p); err != nil {
		return nil, errors.Wrap(err, "create profile")
	}
	stored, err := s.profiles.Get(ctx, id.UID)
	if err != nil {
		return nil, errors.Wrap(err, "get profile")
	}
	return stored, nil
}

// Profile returns the stored profile with its fields taking precedence over
// the identity claims. Without a stored profile the claims are returned with
// the customer role.
func (s *Service) Profile(ctx context.Context, id Identity) (Profile, error) {
	if !id.Authenticated() {
		return Profile{}, ErrUnauthenticated
	}
	merged := Profile{
		UID:         id.UID,
		Email:       id.Email,
		DisplayName: id.DisplayName,
		PhotoURL:    id.PhotoURL,
		Role:        RoleCustomer,
	}
	stored, err := s.profiles.Get(ctx, id.UID)
	switch {
	case errors.Is(err, ErrNotFound):
		return merged, nil
	case err != nil:
		return Profile{}, errors.Wrap(err, "get profile")
	}

	if stored.Email != "" {
		merged.Email = stored.Email
	}
	if stored.DisplayName != "" {
		merged.DisplayName = stored.DisplayName
	}
	if stored.PhotoURL != "" {
		merged.PhotoURL = stored.PhotoURL
	}
	if stored.Role.Valid() {
		merged.Role = stored.Role
	}
	merged.FirstName = stored.FirstName
	merged.LastName = stored.LastName
	merged.CreatedAt = stored.CreatedAt
	return merged, nil
}
