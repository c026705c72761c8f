package owner

import (
	"context"
	"strings"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/quickeats/internal/domain/identity"
)

type mockOwners struct {
	m   map[string]string
	err error
	fns []func(map[string]string)
}

func (r *mockOwners) Assign(_ context.Context, restaurant, email string) error {
	if r.err != nil {
		return r.err
	}
	r.m[restaurant] = email
	for _, fn := range r.fns {
		fn(r.m)
	}
	return nil
}

func (r *mockOwners) Assignments(context.Context) (map[string]string, error) {
	return r.m, r.err
}

func (r *mockOwners) Subscribe(_ context.Context, fn func(map[string]string)) (func(), error) {
	r.fns = append(r.fns, fn)
	fn(r.m)
	return func() {}, nil
}

type mockUsers map[string]bool

func (u mockUsers) Exists(_ context.Context, email string) (bool, error) {
	return u[strings.ToLower(email)], nil
}

func (u mockUsers) Add(_ context.Context, email string) error {
	u[strings.ToLower(email)] = true
	return nil
}

type allowlist map[string][]string

func (a allowlist) OwnedBy(email string) []string { return a[strings.ToLower(email)] }

func newTestService() (*Service, *mockOwners) {
	repo := &mockOwners{m: make(map[string]string)}
	users := mockUsers{"owner@maddur.in": true, "other@swadh.in": true}
	return NewService(repo, users, allowlist{"owner@maddur.in": {"maddur-tiffins"}}), repo
}

func TestAssign(t *testing.T) {
	tests := []struct {
		name       string
		caller     identity.Identity
		restaurant string
		email      string
		wantErr    error
	}{
		{
			name:       "self assignment",
			caller:     identity.Identity{UID: "u1", Email: "Other@Swadh.in"},
			restaurant: "Swadh Restaurant",
			email:      "other@swadh.in",
		},
		{
			name:       "admin assigns anyone",
			caller:     identity.Identity{UID: "admin", Email: "root@quickeats.in", Admin: true},
			restaurant: "Swadh Restaurant",
			email:      "other@swadh.in",
		},
		{
			name:       "missing fields",
			caller:     identity.Identity{UID: "u1"},
			restaurant: "",
			email:      "other@swadh.in",
			wantErr:    ErrInvalidAssignment,
		},
		{
			name:       "unauthenticated",
			restaurant: "Swadh Restaurant",
			email:      "other@swadh.in",
			wantErr:    identity.ErrUnauthenticated,
		},
		{
			name:       "unknown business user",
			caller:     identity.Identity{UID: "admin", Admin: true},
			restaurant: "Swadh Restaurant",
			email:      "stranger@example.com",
			wantErr:    ErrBusinessUserMissing,
		},
		{
			name:       "assigning someone else",
			caller:     identity.Identity{UID: "u1", Email: "owner@maddur.in"},
			restaurant: "Swadh Restaurant",
			email:      "other@swadh.in",
			wantErr:    ErrForbidden,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, repo := newTestService()

			err := s.Assign(context.Background(), tt.caller, tt.restaurant, tt.email)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, repo.m)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, map[string]string{"swadh-restaurant": tt.email}, repo.m)
		})
	}
}

func TestAssign_RepositoryError(t *testing.T) {
	s, repo := newTestService()
	repo.err = errors.New("connection reset")

	err := s.Assign(context.Background(), identity.Identity{UID: "a", Admin: true}, "x", "other@swadh.in")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "assign owner")
}

func TestOwnedRestaurants(t *testing.T) {
	s, repo := newTestService()
	repo.m["Swadh Restaurant"] = "OWNER@maddur.in"
	repo.m["maddur-tiffins"] = "owner@maddur.in"
	repo.m["corner-chaat"] = "other@swadh.in"

	got, err := s.OwnedRestaurants(context.Background(), identity.Identity{UID: "u1", Email: "owner@maddur.in"})

	require.NoError(t, err)
	assert.Equal(t, []string{"maddur-tiffins", "swadh-restaurant"}, got)
}

func TestOwnedRestaurants_NoEmail(t *testing.T) {
	s, _ := newTestService()

	got, err := s.OwnedRestaurants(context.Background(), identity.Identity{UID: "u1"})

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSubscribe_RecomputesOnAssignment(t *testing.T) {
	s, _ := newTestService()
	var sets [][]string
	_, err := s.Subscribe(context.Background(), "other@swadh.in", func(owned []string) {
		sets = append(sets, owned)
	})
	require.NoError(t, err)

	require.NoError(t, s.Assign(context.Background(),
		identity.Identity{UID: "u2", Email: "other@swadh.in"}, "Swadh Restaurant", "other@swadh.in"))

	require.Len(t, sets, 2)
	assert.Empty(t, sets[0])
	assert.Equal(t, []string{"swadh-restaurant"}, sets[1])
}
