package memory

import (
	"context"
	"sync"
	"sync/atomic"
)

// hub fans snapshots out to subscribers. Writes that land while a delivery
// is running, including writes made by a subscriber, are coalesced into one
// more round with a fresh snapshot, so the last value each subscriber sees
// is always the current one.
type hub[T any] struct {
	load func() T

	mu         sync.Mutex
	next       int
	subs       map[int]*subscriber[T]
	pending    bool
	delivering bool
}

// subscriber receives nothing once ctx is done or it was cancelled, even
// from a round that copied it before the removal.
type subscriber[T any] struct {
	ctx     context.Context
	fn      func(T)
	stopped atomic.Bool
}

func (s *subscriber[T]) active() bool {
	return !s.stopped.Load() && s.ctx.Err() == nil
}

func newHub[T any](load func() T) *hub[T] {
	return &hub[T]{load: load, subs: make(map[int]*subscriber[T])}
}

func (h *hub[T]) subscribe(ctx context.Context, fn func(T)) func() {
	h.mu.Lock()
	id := h.next
	h.next++
	sub := &subscriber[T]{ctx: ctx, fn: fn}
	h.subs[id] = sub
	if h.delivering {
		h.pending = true
		h.mu.Unlock()
	} else {
		h.delivering = true
		h.mu.Unlock()
		fn(h.load())
		h.drain()
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			sub.stopped.Store(true)
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
	stop := context.AfterFunc(ctx, cancel)
	return func() {
		stop()
		cancel()
	}
}

func (h *hub[T]) publish() {
	h.mu.Lock()
	h.pending = true
	if h.delivering {
		h.mu.Unlock()
		return
	}
	h.delivering = true
	h.mu.Unlock()
	h.drain()
}

// drain must be called by the goroutine that set delivering.
func (h *hub[T]) drain() {
	h.mu.Lock()
	for h.pending {
		h.pending = false
		subs := make([]*subscriber[T], 0, len(h.subs))
		for _, sub := range h.subs {
			subs = append(subs, sub)
		}
		h.mu.Unlock()

		v := h.load()
		for _, sub := range subs {
			if sub.active() {
				sub.fn(v)
			}
		}
		h.mu.Lock()
	}
	h.delivering = false
	h.mu.Unlock()
}
