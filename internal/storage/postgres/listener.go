package postgres

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Notification channels raised by the schema triggers.
const (
	ChannelOrders = "orders_changed"
	ChannelOwners = "owners_changed"
)

const listenRetryDelay = time.Second

// Listener holds one connection in LISTEN mode and calls the subscribers of
// a channel whenever a notification arrives on it.
type Listener struct {
	pool *pgxpool.Pool
	lg   *zap.Logger

	mu   sync.Mutex
	next int
	subs map[string]map[int]func()
}

// NewListener creates a Listener. Nothing is received until Run is called.
func NewListener(pool *pgxpool.Pool, lg *zap.Logger) *Listener {
	return &Listener{
		pool: pool,
		lg:   lg,
		subs: make(map[string]map[int]func()),
	}
}

// Subscribe registers fn for channel and returns a func removing it.
func (l *Listener) Subscribe(channel string, fn func()) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.subs[channel] == nil {
		l.subs[channel] = make(map[int]func())
	}
	id := l.next
	l.next++
	l.subs[channel][id] = fn
	return func() {
		l.mu.Lock()
		delete(l.subs[channel], id)
		l.mu.Unlock()
	}
}

// Run listens on channels until ctx is done, reconnecting on failure. After
// a reconnect every channel is dispatched once, since notifications sent
// while disconnected are lost.
func (l *Listener) Run(ctx context.Context, channels ...string) error {
	first := true
	for {
		err := l.listen(ctx, channels, !first)
		if ctx.Err() != nil {
			return nil
		}
		first = false
		l.lg.Warn("Listen connection lost", zap.Error(err), zap.Duration("retry_in", listenRetryDelay))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(listenRetryDelay):
		}
	}
}

func (l *Listener) listen(ctx context.Context, channels []string, resync bool) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = conn.Exec(context.WithoutCancel(ctx), "UNLISTEN *")
		conn.Release()
	}()

	for _, ch := range channels {
		if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{ch}.Sanitize()); err != nil {
			return err
		}
	}
	if resync {
		for _, ch := range channels {
			l.dispatch(ch)
		}
	}

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		l.dispatch(n.Channel)
	}
}

func (l *Listener) dispatch(channel string) {
	l.mu.Lock()
	fns := make([]func(), 0, len(l.subs[channel]))
	for _, fn := range l.subs[channel] {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
