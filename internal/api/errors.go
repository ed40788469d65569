package api

import (
	"errors"
	"net/http"
	"strconv"

	"listingmod/internal/middleware"
	"listingmod/internal/models"
	"listingmod/internal/util"
)

// writeError maps service error kinds onto HTTP statuses. Unknown errors are
// logged and reported without their text.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	rid := middleware.RequestID(r.Context())
	switch {
	case errors.Is(err, models.ErrValidation):
		util.WriteError(w, http.StatusBadRequest, "validation_failed", err.Error(), rid)
	case errors.Is(err, models.ErrNotFound):
		util.WriteError(w, http.StatusNotFound, "not_found", err.Error(), rid)
	case errors.Is(err, models.ErrConflict):
		util.WriteError(w, http.StatusConflict, "conflict", err.Error(), rid)
	case errors.Is(err, models.ErrUnauthorized):
		util.WriteError(w, http.StatusForbidden, "forbidden", err.Error(), rid)
	default:
		h.log.WithError(err).WithField("request_id", rid).Error("request failed")
		util.WriteError(w, http.StatusInternalServerError, "internal_error", "internal error", rid)
	}
}

func (h *Handlers) badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	util.WriteError(w, http.StatusBadRequest, "bad_request", msg, middleware.RequestID(r.Context()))
}

// parsePagination reads page and limit. Out-of-range values are left for the
// service to normalize.
func parsePagination(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return page, limit
}

type listResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}
