package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xenking/quickeats/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Each
// order is one JSONB document; updates merge the patch into it.
type OrderRepository struct {
	pool     *pgxpool.Pool
	listener *Listener
	lg       *zap.Logger
	newID    func() string
}

// NewOrderRepository returns an OrderRepository using pool. Subscriptions
// are fed by listener, which must be running on ChannelOrders.
func NewOrderRepository(pool *pgxpool.Pool, listener *Listener, lg *zap.Logger) *OrderRepository {
	return &OrderRepository{
		pool:     pool,
		listener: listener,
		lg:       lg,
		newID:    uuid.NewString,
	}
}

// Create persists o under a new id.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) (string, error) {
	doc := o.Clone()
	doc.ID = r.newID()
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshaling order: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO orders (id, data, created_at) VALUES ($1, $2, $3)`,
		doc.ID, data, doc.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("creating order: %w", err)
	}
	return doc.ID, nil
}

// Get returns order.ErrNotFound when id does not exist.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	var data []byte
	err := r.pool.QueryRow(ctx, `SELECT data FROM orders WHERE id = $1`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := decodeOrder(id, data)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// List returns every order ordered by creation time.
func (r *OrderRepository) List(ctx context.Context) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, data FROM orders ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	defer rows.Close()

	out := make([]order.Order, 0)
	for rows.Next() {
		var (
			id   string
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scanning order: %w", err)
		}
		o, err := decodeOrder(id, data)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating orders: %w", err)
	}
	return out, nil
}

func decodeOrder(id string, data []byte) (order.Order, error) {
	var o order.Order
	if err := json.Unmarshal(data, &o); err != nil {
		return order.Order{}, fmt.Errorf("decoding order %q: %w", id, err)
	}
	o.ID = id
	return o, nil
}

// Update merges the set fields of p into the stored document.
func (r *OrderRepository) Update(ctx context.Context, id string, p order.Patch) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshaling patch: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `UPDATE orders SET data = data || $2::jsonb WHERE id = $1`, id, data)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// Delete removes the order.
func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// Subscribe delivers the full collection now and after each notification
// on ChannelOrders.
func (r *OrderRepository) Subscribe(ctx context.Context, fn func([]order.Order)) (func(), error) {
	orders, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	fn(orders)

	// stopped closes the window between cancellation and the listener
	// dropping the callback.
	var stopped atomic.Bool
	remove := r.listener.Subscribe(ChannelOrders, func() {
		orders, err := r.List(ctx)
		if err != nil {
			if ctx.Err() == nil {
				r.lg.Warn("Reload orders after notification", zap.Error(err))
			}
			return
		}
		if stopped.Load() || ctx.Err() != nil {
			return
		}
		fn(orders)
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
