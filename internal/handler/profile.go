package handler

import (
	"net/http"

	"github.com/xenking/quickeats/internal/domain/identity"
)

// GetProfile returns the caller's profile, falling back to token claims.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	id, err := h.requireIdentity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.profiles.Profile(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ProfileRequest carries the optional sign-up fields.
type ProfileRequest struct {
	Role        identity.Role `json:"role,omitempty"`
	FirstName   string        `json:"firstName,omitempty"`
	LastName    string        `json:"lastName,omitempty"`
	DisplayName string        `json:"displayName,omitempty"`
}

// EnsureProfile creates the caller's profile on first sign-in. An existing
// profile is returned unchanged.
func (h *Handler) EnsureProfile(w http.ResponseWriter, r *http.Request) {
	id, err := h.requireIdentity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req ProfileRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.profiles.EnsureProfile(r.Context(), id, identity.Details{
		Role:        req.Role,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// AssignOwnerRequest is the body of POST /api/assign-owner.
type AssignOwnerRequest struct {
	RestaurantID string `json:"restaurantId"`
	Email        string `json:"email"`
}

// AssignOwner makes a business user the owner of a restaurant.
func (h *Handler) AssignOwner(w http.ResponseWriter, r *http.Request) {
	var req AssignOwnerRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	// Assign reports missing fields before checking the caller.
	id, err := h.identify(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.owners.Assign(r.Context(), id, req.RestaurantID, req.Email); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
