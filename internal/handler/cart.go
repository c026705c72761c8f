package handler

import (
	"net/http"
	"strings"

	"github.com/xenking/quickeats/internal/domain/cart"
)

// CartResponse is the cart as the client renders it.
type CartResponse struct {
	Items      []cart.Entry `json:"items"`
	Open       bool         `json:"open"`
	Count      int          `json:"count"`
	Subtotal   int64        `json:"subtotal"`
	Deposit    int64        `json:"deposit"`
	BalanceDue int64        `json:"balanceDue"`
}

func cartResponse(s *cart.Store) CartResponse {
	state := s.State()
	totals := cart.ComputeTotals(state.Entries)
	count := 0
	for _, e := range state.Entries {
		count += e.Quantity
	}
	items := state.Entries
	if items == nil {
		items = []cart.Entry{}
	}
	return CartResponse{
		Items:      items,
		Open:       state.Open,
		Count:      count,
		Subtotal:   totals.Subtotal,
		Deposit:    totals.Deposit,
		BalanceDue: totals.BalanceDue,
	}
}

// GetCart returns the session cart.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	cs := h.sessions.resolve(w, r)
	writeJSON(w, http.StatusOK, cartResponse(cs.cart))
}

// AddItemRequest adds Quantity units of an item; Quantity defaults to 1.
type AddItemRequest struct {
	cart.Item
	Quantity *int `json:"quantity,omitempty"`
}

// AddCartItem adds an item, merging with an existing line of the same
// restaurant.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	cs := h.sessions.resolve(w, r)
	var req AddItemRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}
	switch {
	case strings.TrimSpace(req.ItemID) == "":
		writeError(w, r, &RequestError{Message: "itemId required"})
		return
	case qty <= 0:
		writeError(w, r, &RequestError{Message: "quantity must be positive"})
		return
	case req.UnitPrice < 0:
		writeError(w, r, &RequestError{Message: "unitPrice must not be negative"})
		return
	}
	cs.cart.AddItem(req.Item, qty)
	writeJSON(w, http.StatusOK, cartResponse(cs.cart))
}

// UpdateItemRequest sets the quantity of an item line.
type UpdateItemRequest struct {
	RestaurantID string `json:"restaurantId,omitempty"`
	Quantity     int    `json:"quantity"`
}

// UpdateCartItem sets a line quantity; zero or less removes the line.
// Without restaurantId every line of the item is affected.
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	cs := h.sessions.resolve(w, r)
	var req UpdateItemRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	cs.cart.UpdateQuantity(r.PathValue("itemId"), req.RestaurantID, req.Quantity)
	writeJSON(w, http.StatusOK, cartResponse(cs.cart))
}

// RemoveCartItem drops an item line, scoped by the restaurantId query
// parameter when present.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	cs := h.sessions.resolve(w, r)
	cs.cart.RemoveItem(r.PathValue("itemId"), r.URL.Query().Get("restaurantId"))
	writeJSON(w, http.StatusOK, cartResponse(cs.cart))
}

// ClearCart empties the cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	cs := h.sessions.resolve(w, r)
	cs.cart.Clear()
	writeJSON(w, http.StatusOK, cartResponse(cs.cart))
}

// CartVisibility opens, closes or toggles the cart drawer.
func (h *Handler) CartVisibility(w http.ResponseWriter, r *http.Request) {
	cs := h.sessions.resolve(w, r)
	switch r.PathValue("action") {
	case "open":
		cs.cart.Open()
	case "close":
		cs.cart.Close()
	case "toggle":
		cs.cart.ToggleOpen()
	default:
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, cartResponse(cs.cart))
}
