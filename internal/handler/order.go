package handler

import (
	"context"
	"net/http"

	"github.com/xenking/quickeats/internal/domain/order"
)

// CheckoutRequest is the body of POST /api/checkout.
type CheckoutRequest struct {
	Phone         string          `json:"phone"`
	PaymentMethod string          `json:"paymentMethod,omitempty"`
	Location      *order.Location `json:"location,omitempty"`
}

// Checkout places an order from the session cart.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	cs := h.sessions.resolve(w, r)
	id, err := h.requireIdentity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req CheckoutRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	var locator order.Locator
	if loc := req.Location; loc != nil {
		locator = order.LocatorFunc(func(context.Context) (order.Location, error) {
			return *loc, nil
		})
	}
	o, err := h.orders.Checkout(r.Context(), order.CheckoutRequest{
		Customer:      id,
		Cart:          cs.cart,
		Session:       cs.session,
		Phone:         req.Phone,
		PaymentMethod: req.PaymentMethod,
		Locator:       locator,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/orders/"+o.ID)
	writeJSON(w, http.StatusCreated, o)
}

// viewer builds the "my orders" filter for the caller. Anonymous callers
// match by session and the orders their session remembers.
func (h *Handler) viewer(r *http.Request, cs *clientSession) (order.Viewer, error) {
	id, err := h.identify(r)
	if err != nil {
		return order.Viewer{}, err
	}
	v := order.Viewer{
		SessionID: cs.session.ClientSessionID(),
		OrderIDs:  cs.session.RecentOrders(),
	}
	if last, ok := cs.session.LastOrder(); ok && len(v.OrderIDs) == 0 {
		v.OrderIDs = []string{last}
	}
	if id.Authenticated() {
		v.UID = id.UID
		v.Email = id.Email
	}
	return v, nil
}

// MyOrders lists the caller's orders, newest first.
func (h *Handler) MyOrders(w http.ResponseWriter, r *http.Request) {
	cs := h.sessions.resolve(w, r)
	v, err := h.viewer(r, cs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	all, err := h.orders.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order.ForCustomer(all, v))
}

// GetOrder returns one order. Order ids are unguessable and double as the
// tracking link.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// AttachLocation stores the customer position on an order of the caller.
func (h *Handler) AttachLocation(w http.ResponseWriter, r *http.Request) {
	cs := h.sessions.resolve(w, r)
	v, err := h.viewer(r, cs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var loc order.Location
	if err := decode(r, &loc); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.orders.AttachLocation(r.Context(), v, r.PathValue("id"), loc); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PhoneRequest is the body of POST /api/orders/{id}/phone.
type PhoneRequest struct {
	Phone string `json:"phone"`
}

// UpdatePhone replaces the contact phone of an order of the caller.
func (h *Handler) UpdatePhone(w http.ResponseWriter, r *http.Request) {
	cs := h.sessions.resolve(w, r)
	v, err := h.viewer(r, cs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req PhoneRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.orders.UpdatePhone(r.Context(), v, r.PathValue("id"), req.Phone); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// OwnerOrders lists orders of every restaurant the caller owns.
func (h *Handler) OwnerOrders(w http.ResponseWriter, r *http.Request) {
	id, err := h.requireIdentity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	slugs, err := h.owners.OwnedRestaurants(r.Context(), id)
	if err != nil {
		writeError(w, r, &order.PersistenceError{Op: "resolve ownership", Err: err})
		return
	}
	all, err := h.orders.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, OwnerOrdersResponse{
		Restaurants: nonNil(slugs),
		Orders:      order.ForOwner(all, slugs),
	})
}

// OwnerOrdersResponse is the owner dashboard payload.
type OwnerOrdersResponse struct {
	Restaurants []string      `json:"restaurants"`
	Orders      []order.Order `json:"orders"`
}

// AdvanceOrder moves an order to its next status.
func (h *Handler) AdvanceOrder(w http.ResponseWriter, r *http.Request) {
	id, err := h.requireIdentity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.Advance(r.Context(), id, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// DeleteOrder removes an order; admins only.
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := h.requireIdentity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.orders.Delete(r.Context(), id, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
