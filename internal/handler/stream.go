package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/quickeats/internal/domain/order"
)

// eventStream writes server-sent events. Producers never block: for every
// event name only the latest payload is kept until the writer catches up.
type eventStream struct {
	w  http.ResponseWriter
	rc *http.ResponseController

	mu      sync.Mutex
	pending map[string]any
	queue   []string
	wake    chan struct{}
}

func newEventStream(w http.ResponseWriter) *eventStream {
	return &eventStream{
		w:       w,
		rc:      http.NewResponseController(w),
		pending: make(map[string]any),
		wake:    make(chan struct{}, 1),
	}
}

// offer replaces the pending payload of event.
func (s *eventStream) offer(event string, v any) {
	s.mu.Lock()
	if _, ok := s.pending[event]; !ok {
		s.queue = append(s.queue, event)
	}
	s.pending[event] = v
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *eventStream) take() ([]string, map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue, pending := s.queue, s.pending
	s.queue, s.pending = nil, make(map[string]any)
	return queue, pending
}

// run streams until ctx ends, closing is closed or the client goes away.
func (s *eventStream) run(ctx context.Context, closing <-chan struct{}, heartbeat time.Duration) error {
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	// Streams outlive the server write timeout.
	_ = s.rc.SetWriteDeadline(time.Time{})
	s.w.WriteHeader(http.StatusOK)
	if err := s.rc.Flush(); err != nil {
		return errors.Wrap(err, "flush")
	}

	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-closing:
			return nil
		case <-ticker.C:
			if _, err := fmt.Fprint(s.w, ": ping\n\n"); err != nil {
				return errors.Wrap(err, "heartbeat")
			}
		case <-s.wake:
			queue, pending := s.take()
			for _, event := range queue {
				data, err := json.Marshal(pending[event])
				if err != nil {
					return errors.Wrapf(err, "marshal %s", event)
				}
				if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
					return errors.Wrapf(err, "write %s", event)
				}
			}
		}
		if err := s.rc.Flush(); err != nil {
			return errors.Wrap(err, "flush")
		}
	}
}

func (h *Handler) serveStream(r *http.Request, s *eventStream) {
	if err := s.run(r.Context(), h.closing, h.heartbeat); err != nil {
		zctx.From(r.Context()).Debug("Event stream closed", zap.Error(err))
	}
}

// StreamMyOrders streams the caller's orders as "orders" events. With
// ?id= it tracks that single order instead.
func (h *Handler) StreamMyOrders(w http.ResponseWriter, r *http.Request) {
	cs := h.sessions.resolve(w, r)
	project := order.TrackingView(r.URL.Query().Get("id"))
	if r.URL.Query().Get("id") == "" {
		v, err := h.viewer(r, cs)
		if err != nil {
			writeError(w, r, err)
			return
		}
		project = order.CustomerView(v)
	}

	stream := newEventStream(w)
	live, err := h.orders.Watch(r.Context(), project, func(orders []order.Order) {
		stream.offer("orders", orders)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer live.Close()

	h.serveStream(r, stream)
}

// StreamOwnerOrders streams the owner dashboard. A "restaurants" event
// carries the owned set whenever it changes; "orders" carries the scoped
// orders.
func (h *Handler) StreamOwnerOrders(w http.ResponseWriter, r *http.Request) {
	id, err := h.requireIdentity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx := r.Context()
	slugs, err := h.owners.OwnedRestaurants(ctx, id)
	if err != nil {
		writeError(w, r, &order.PersistenceError{Op: "resolve ownership", Err: err})
		return
	}

	stream := newEventStream(w)
	stream.offer("restaurants", nonNil(slugs))
	live, err := h.orders.Watch(ctx, order.OwnerView(slugs), func(orders []order.Order) {
		stream.offer("orders", orders)
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer live.Close()

	cancel, err := h.owners.Subscribe(ctx, id.Email, func(owned []string) {
		stream.offer("restaurants", nonNil(owned))
		live.SetProjection(order.OwnerView(owned))
	})
	if err != nil {
		writeError(w, r, &order.PersistenceError{Op: "subscribe owners", Err: err})
		return
	}
	defer cancel()

	h.serveStream(r, stream)
}
