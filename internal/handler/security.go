package handler

import (
	"net/http"
	"regexp"

	"github.com/xenking/quickeats/internal/domain/identity"
)

var bearerRe = regexp.MustCompile(`(?i)^Bearer\s+(.+)$`)

// identify returns the caller behind the Authorization header. A missing
// header yields the anonymous identity; a malformed or rejected token is an
// error so clients notice expired sessions.
func (h *Handler) identify(r *http.Request) (identity.Identity, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return identity.Identity{}, nil
	}
	m := bearerRe.FindStringSubmatch(header)
	if m == nil {
		return identity.Identity{}, identity.ErrInvalidToken
	}
	return h.verifier.Verify(r.Context(), m[1])
}

// requireIdentity is identify for routes that need a signed-in caller.
func (h *Handler) requireIdentity(r *http.Request) (identity.Identity, error) {
	id, err := h.identify(r)
	if err != nil {
		return identity.Identity{}, err
	}
	if !id.Authenticated() {
		return identity.Identity{}, identity.ErrUnauthenticated
	}
	return id, nil
}
