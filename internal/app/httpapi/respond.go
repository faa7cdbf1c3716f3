package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/eslamgaber/storefront/internal/app/services/auth"
	"github.com/eslamgaber/storefront/internal/app/services/orders"
	"github.com/eslamgaber/storefront/internal/app/services/products"
	"github.com/eslamgaber/storefront/internal/app/services/users"
)

// envelope is the uniform response shape. Successful responses carry data,
// failures carry a message.
type envelope struct {
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func decodeJSON(body io.ReadCloser, dst any) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Status: "success", Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Status: "error", Message: message})
}

// writeServiceError maps the service sentinel errors onto HTTP statuses.
// Anything unrecognized is a 500 with a generic message so internals never
// leak to clients.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, users.ErrNotFound),
		errors.Is(err, products.ErrNotFound),
		errors.Is(err, orders.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, users.ErrInvalidInput),
		errors.Is(err, products.ErrInvalidInput),
		errors.Is(err, orders.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, orders.ErrActiveOrderExists),
		errors.Is(err, users.ErrUsernameTaken):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, users.ErrSelfDelete):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
