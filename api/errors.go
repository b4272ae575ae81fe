package api

import (
	"errors"
	"net/http"

	"github.com/warp/stock-ledger/stock"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string          `json:"error"`
	Details string          `json:"details,omitempty"`
	Fields  []FieldErrorDTO `json:"fields,omitempty"`
	// Available/Requested are set for insufficient stock.
	ItemID    int64  `json:"item_id,omitempty"`
	Available string `json:"available,omitempty"`
	Requested string `json:"requested,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

type FieldErrorDTO struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// statusFor maps the ledger error taxonomy onto HTTP.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, stock.ErrValidation):
		return http.StatusBadRequest, "validation failed"
	case errors.Is(err, stock.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, stock.ErrInactiveItem):
		return http.StatusUnprocessableEntity, "item is inactive"
	case errors.Is(err, stock.ErrInsufficientStock):
		return http.StatusUnprocessableEntity, "insufficient stock"
	case errors.Is(err, stock.ErrConflict):
		return http.StatusConflict, "conflict"
	case stock.IsRetryable(err):
		return http.StatusServiceUnavailable, "concurrent update, retry the request"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// writeDomainError renders err with the status its category maps to.
// Storage failures are logged and their details withheld.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := statusFor(err)
	resp := ErrorResponse{Error: message, Details: err.Error()}

	var verr *stock.ValidationError
	if errors.As(err, &verr) {
		for _, f := range verr.Fields {
			resp.Fields = append(resp.Fields, FieldErrorDTO{Field: f.Field, Message: f.Message})
		}
	}
	var ierr *stock.InsufficientStockError
	if errors.As(err, &ierr) {
		resp.ItemID = int64(ierr.ItemID)
		resp.Available = ierr.Available.String()
		resp.Requested = ierr.Requested.String()
	}
	resp.Retryable = stock.IsRetryable(err)

	if status == http.StatusInternalServerError {
		h.log(r).Error().Err(err).Msg("request failed")
		resp.Details = ""
	} else {
		h.log(r).Debug().Err(err).Int("status", status).Msg("request rejected")
	}
	writeJSON(w, status, resp)
}
