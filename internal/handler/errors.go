package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/quickeats/internal/domain/identity"
	"github.com/xenking/quickeats/internal/domain/order"
	"github.com/xenking/quickeats/internal/domain/owner"
)

// RequestError is a malformed request detected by the handler itself.
type RequestError struct {
	Message string
}

func (e *RequestError) Error() string {
	return e.Message
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// classify maps domain errors to a status and a stable code.
func classify(err error) (int, string) {
	var (
		reqErr     *RequestError
		illegal    *order.IllegalTransitionError
		persistErr *order.PersistenceError
	)
	switch {
	case errors.As(err, &reqErr),
		errors.Is(err, order.ErrEmptyCart),
		errors.Is(err, order.ErrInvalidPhone),
		errors.Is(err, order.ErrInvalidLocation),
		errors.Is(err, owner.ErrInvalidAssignment),
		errors.Is(err, owner.ErrBusinessUserMissing):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, identity.ErrUnauthenticated),
		errors.Is(err, identity.ErrInvalidToken):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, order.ErrForbidden),
		errors.Is(err, owner.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, identity.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.As(err, &illegal):
		return http.StatusConflict, "illegal_transition"
	case errors.As(err, &persistErr):
		return http.StatusBadGateway, "persistence_failure"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.String("code", code), zap.Error(err))
		if status == http.StatusInternalServerError {
			msg = "internal server error"
		}
	}
	writeJSON(w, status, ErrorResponse{Code: code, Message: msg})
}
