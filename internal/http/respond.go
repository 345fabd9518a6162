package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/example/ride-pooling/internal/booking"
	"github.com/example/ride-pooling/internal/routing"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the domain taxonomy onto HTTP statuses. Client errors
// keep their message; storage failures stay opaque.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrInvalidArgument):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, booking.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, booking.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorBody{Error: err.Error()})
	case errors.Is(err, booking.ErrDuplicateRequest),
		errors.Is(err, booking.ErrRideClosed),
		errors.Is(err, booking.ErrCapacityExceeded),
		errors.Is(err, booking.ErrAlreadyDecided):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case errors.Is(err, routing.ErrServiceUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error()})
	case errors.Is(err, routing.ErrRouteNotFound):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
	}
}
