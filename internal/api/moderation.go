package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"listingmod/internal/models"
	"listingmod/internal/policy"
	"listingmod/internal/util"
)

func (h *Handlers) PendingQueue(w http.ResponseWriter, r *http.Request) {
	page, limit := parsePagination(r)
	q := models.QueueQuery{
		Page:   page,
		Limit:  limit,
		SortBy: r.URL.Query().Get("sort_by"),
		Order:  r.URL.Query().Get("order"),
	}
	res, err := h.svc.ModerationQueue(r.Context(), q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, res)
}

func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.ModerationStats(r.Context(), r.URL.Query().Get("period"), principal(r).Role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handlers) ModerationListing(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.ListingForModeration(r.Context(), chi.URLParam(r, "id"), principal(r).Role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, v)
}

func (h *Handlers) AuditListing(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.VerifyAuditTrail(r.Context(), chi.URLParam(r, "id"), principal(r).Role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, c)
}

func (h *Handlers) Approve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Featured *bool `json:"featured"`
	}
	// The body is optional; approving without one keeps the featured flag.
	if err := util.DecodeJSON(w, r, &req); err != nil && !errors.Is(err, util.ErrEmptyBody) {
		h.badRequest(w, r, err.Error())
		return
	}
	h.decide(w, r, policy.ApproveRequest{Featured: req.Featured})
}

func (h *Handlers) Reject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := util.DecodeJSON(w, r, &req); err != nil {
		h.badRequest(w, r, err.Error())
		return
	}
	h.decide(w, r, policy.RejectRequest{Reason: req.Reason})
}

func (h *Handlers) decide(w http.ResponseWriter, r *http.Request, req policy.Request) {
	p := principal(r)
	l, err := h.svc.DecideListing(r.Context(), chi.URLParam(r, "id"), p.UserID, p.Role, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, l)
}

func (h *Handlers) BatchApprove(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := util.DecodeJSON(w, r, &req); err != nil {
		h.badRequest(w, r, err.Error())
		return
	}
	p := principal(r)
	res, err := h.svc.BatchApprove(r.Context(), req.IDs, p.UserID, p.Role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, res)
}
