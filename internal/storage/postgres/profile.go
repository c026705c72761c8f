package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/quickeats/internal/domain/identity"
)

var _ identity.ProfileRepository = (*ProfileRepository)(nil)

// ProfileRepository implements identity.ProfileRepository backed by
// PostgreSQL.
type ProfileRepository struct {
	pool *pgxpool.Pool
}

// NewProfileRepository returns a ProfileRepository that uses the given pool.
func NewProfileRepository(pool *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

// Get returns identity.ErrNotFound when no profile exists for uid.
func (r *ProfileRepository) Get(ctx context.Context, uid string) (*identity.Profile, error) {
	var data []byte
	err := r.pool.QueryRow(ctx, `SELECT data FROM profiles WHERE uid = $1`, uid).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, identity.ErrNotFound
		}
		return nil, fmt.Errorf("getting profile %q: %w", uid, err)
	}
	var p identity.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decoding profile %q: %w", uid, err)
	}
	return &p, nil
}

// CreateIfAbsent inserts p unless a row for p.UID exists.
func (r *ProfileRepository) CreateIfAbsent(ctx context.Context, p identity.Profile) (bool, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return false, fmt.Errorf("marshaling profile: %w", err)
	}
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO profiles (uid, data) VALUES ($1, $2) ON CONFLICT (uid) DO NOTHING`,
		p.UID, data,
	)
	if err != nil {
		return false, fmt.Errorf("creating profile %q: %w", p.UID, err)
	}
	return tag.RowsAffected() == 1, nil
}
