// Package handler exposes carts, checkout, order tracking and the owner
// dashboard as a JSON API on net/http.
package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/quickeats/internal/domain/identity"
	"github.com/xenking/quickeats/internal/domain/order"
	"github.com/xenking/quickeats/internal/domain/owner"
)

const maxBodyBytes = 1 << 20

// Config holds non-dependency settings of the Handler.
type Config struct {
	// Heartbeat is the comment interval on event streams. Zero means 15s.
	Heartbeat time.Duration
}

// Handler serves the /api routes.
type Handler struct {
	orders    *order.Service
	owners    *owner.Service
	profiles  *identity.Service
	verifier  identity.Verifier
	sessions  *Sessions
	heartbeat time.Duration

	closing   chan struct{}
	closeOnce sync.Once
}

// New constructs a Handler.
func New(
	cfg Config,
	orders *order.Service,
	owners *owner.Service,
	profiles *identity.Service,
	verifier identity.Verifier,
	sessions *Sessions,
) *Handler {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 15 * time.Second
	}
	return &Handler{
		orders:    orders,
		owners:    owners,
		profiles:  profiles,
		verifier:  verifier,
		sessions:  sessions,
		heartbeat: cfg.Heartbeat,
		closing:   make(chan struct{}),
	}
}

// CloseStreams ends every open event stream. http.Server.Shutdown waits for
// handlers to return, so it is registered with RegisterOnShutdown.
func (h *Handler) CloseStreams() {
	h.closeOnce.Do(func() { close(h.closing) })
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/cart", h.GetCart)
	mux.HandleFunc("POST /api/cart/items", h.AddCartItem)
	mux.HandleFunc("PUT /api/cart/items/{itemId}", h.UpdateCartItem)
	mux.HandleFunc("DELETE /api/cart/items/{itemId}", h.RemoveCartItem)
	mux.HandleFunc("DELETE /api/cart", h.ClearCart)
	mux.HandleFunc("POST /api/cart/{action}", h.CartVisibility)

	mux.HandleFunc("POST /api/checkout", h.Checkout)

	mux.HandleFunc("GET /api/orders", h.MyOrders)
	mux.HandleFunc("GET /api/orders/stream", h.StreamMyOrders)
	mux.HandleFunc("GET /api/orders/{id}", h.GetOrder)
	mux.HandleFunc("POST /api/orders/{id}/location", h.AttachLocation)
	mux.HandleFunc("POST /api/orders/{id}/phone", h.UpdatePhone)

	mux.HandleFunc("GET /api/owner/orders", h.OwnerOrders)
	mux.HandleFunc("GET /api/owner/orders/stream", h.StreamOwnerOrders)
	mux.HandleFunc("POST /api/owner/orders/{id}/advance", h.AdvanceOrder)

	mux.HandleFunc("DELETE /api/admin/orders/{id}", h.DeleteOrder)
	mux.HandleFunc("POST /api/assign-owner", h.AssignOwner)

	mux.HandleFunc("GET /api/profile", h.GetProfile)
	mux.HandleFunc("POST /api/profile", h.EnsureProfile)
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &RequestError{Message: "invalid JSON body: " + err.Error()}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
