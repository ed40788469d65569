package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"listingmod/internal/middleware"
	"listingmod/internal/models"
	"listingmod/internal/util"
)

func (h *Handlers) CreateListing(w http.ResponseWriter, r *http.Request) {
	var req models.NewListing
	if err := util.DecodeJSON(w, r, &req); err != nil {
		h.badRequest(w, r, err.Error())
		return
	}
	l, err := h.svc.CreateListing(r.Context(), principal(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusCreated, l)
}

func (h *Handlers) GetListing(w http.ResponseWriter, r *http.Request) {
	var viewer *models.Principal
	if p, ok := middleware.Principal(r.Context()); ok {
		viewer = &p
	}
	l, err := h.svc.ViewListing(r.Context(), chi.URLParam(r, "id"), viewer)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, l)
}

func (h *Handlers) UpdateListing(w http.ResponseWriter, r *http.Request) {
	var patch models.ListingPatch
	if err := util.DecodeJSON(w, r, &patch); err != nil {
		h.badRequest(w, r, err.Error())
		return
	}
	l, err := h.svc.SubmitListing(r.Context(), chi.URLParam(r, "id"), principal(r).UserID, patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, l)
}

func (h *Handlers) DeleteListing(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteListing(r.Context(), chi.URLParam(r, "id"), principal(r).UserID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) MarkSold(w http.ResponseWriter, r *http.Request) {
	l, err := h.svc.MarkSold(r.Context(), chi.URLParam(r, "id"), principal(r).UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, l)
}

func (h *Handlers) ListingHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.ListingHistory(r.Context(), chi.URLParam(r, "id"), principal(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]any{"items": entries})
}
