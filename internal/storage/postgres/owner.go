package postgres

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xenking/quickeats/internal/domain/owner"
)

var (
	_ owner.Repository    = (*OwnerRepository)(nil)
	_ owner.BusinessUsers = (*BusinessUserRepository)(nil)
)

// OwnerRepository implements owner.Repository backed by PostgreSQL.
type OwnerRepository struct {
	pool     *pgxpool.Pool
	listener *Listener
	lg       *zap.Logger
}

// NewOwnerRepository returns an OwnerRepository. Subscriptions are fed by
// listener, which must be running on ChannelOwners.
func NewOwnerRepository(pool *pgxpool.Pool, listener *Listener, lg *zap.Logger) *OwnerRepository {
	return &OwnerRepository{pool: pool, listener: listener, lg: lg}
}

// Assign sets or replaces the owner of restaurant.
func (r *OwnerRepository) Assign(ctx context.Context, restaurant, email string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO restaurant_owners (restaurant, email) VALUES ($1, $2)
		ON CONFLICT (restaurant) DO UPDATE SET email = EXCLUDED.email, updated_at = now()`,
		restaurant, email,
	)
	if err != nil {
		return fmt.Errorf("assigning owner of %q: %w", restaurant, err)
	}
	return nil
}

// Assignments returns the full restaurant to email mapping.
func (r *OwnerRepository) Assignments(ctx context.Context) (map[string]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT restaurant, email FROM restaurant_owners`)
	if err != nil {
		return nil, fmt.Errorf("listing owners: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var restaurant, email string
		if err := rows.Scan(&restaurant, &email); err != nil {
			return nil, fmt.Errorf("scanning owner: %w", err)
		}
		out[restaurant] = email
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating owners: %w", err)
	}
	return out, nil
}

// Subscribe delivers the mapping now and after each change.
func (r *OwnerRepository) Subscribe(ctx context.Context, fn func(map[string]string)) (func(), error) {
	m, err := r.Assignments(ctx)
	if err != nil {
		return nil, err
	}
	fn(m)

	// stopped closes the window between cancellation and the listener
	// dropping the callback.
	var stopped atomic.Bool
	remove := r.listener.Subscribe(ChannelOwners, func() {
		m, err := r.Assignments(ctx)
		if err != nil {
			if ctx.Err() == nil {
				r.lg.Warn("Reload owners after notification", zap.Error(err))
			}
			return
		}
		if stopped.Load() || ctx.Err() != nil {
			return
		}
		fn(m)
	})
	unsubscribe := func() {
		stopped.Store(true)
		remove()
	}
	stop := context.AfterFunc(ctx, unsubscribe)
	return func() {
		stop()
		unsubscribe()
	}, nil
}

// BusinessUserRepository implements owner.BusinessUsers backed by
// PostgreSQL. Emails are stored lower-cased.
type BusinessUserRepository struct {
	pool *pgxpool.Pool
}

// NewBusinessUserRepository returns a BusinessUserRepository that uses the
// given pool.
func NewBusinessUserRepository(pool *pgxpool.Pool) *BusinessUserRepository {
	return &BusinessUserRepository{pool: pool}
}

// Exists reports whether email is registered, ignoring case.
func (r *BusinessUserRepository) Exists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM business_users WHERE email = $1)`,
		normalizeEmail(email),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking business user: %w", err)
	}
	return exists, nil
}

// Add registers email. Adding an existing email is a no-op.
func (r *BusinessUserRepository) Add(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return nil
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO business_users (email) VALUES ($1) ON CONFLICT DO NOTHING`, email)
	if err != nil {
		return fmt.Errorf("adding business user: %w", err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
