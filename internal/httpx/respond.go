package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/modadz/marketplace/internal/catalog"
	"github.com/modadz/marketplace/internal/customers"
	"github.com/modadz/marketplace/internal/inventory"
	"github.com/modadz/marketplace/internal/orders"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the domain error taxonomy onto HTTP status codes.
// Unknown errors become an opaque 500, the detail only goes to the log.
func writeError(w http.ResponseWriter, err error) {
	var code int
	switch {
	case errors.Is(err, orders.ErrValidation),
		errors.Is(err, orders.ErrUnsupportedPayment):
		code = http.StatusBadRequest
	case errors.Is(err, orders.ErrPaymentFailed):
		code = http.StatusPaymentRequired
	case errors.Is(err, orders.ErrForbiddenTransition):
		code = http.StatusForbidden
	case errors.Is(err, orders.ErrNotFound),
		errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, customers.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, orders.ErrInvalidTransition),
		errors.Is(err, orders.ErrOrderNumberTaken),
		errors.Is(err, inventory.ErrOutOfStock):
		code = http.StatusConflict
	default:
		log.Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
