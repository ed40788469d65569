package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"listingmod/internal/models"
	"listingmod/internal/util"
)

func (h *Handlers) CreateReport(w http.ResponseWriter, r *http.Request) {
	var req models.ReportInput
	if err := util.DecodeJSON(w, r, &req); err != nil {
		h.badRequest(w, r, err.Error())
		return
	}
	rep, err := h.svc.CreateReport(r.Context(), principal(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusCreated, rep)
}

func (h *Handlers) MyReports(w http.ResponseWriter, r *http.Request) {
	page, limit := parsePagination(r)
	items, total, err := h.svc.MyReports(r.Context(), principal(r).UserID, page, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, listResponse[models.Report]{Items: items, Total: total})
}

func (h *Handlers) GetReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.GetReport(r.Context(), chi.URLParam(r, "id"), principal(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, rep)
}

func (h *Handlers) ListReports(w http.ResponseWriter, r *http.Request) {
	page, limit := parsePagination(r)
	q := models.ReportQuery{
		Status: models.ReportStatus(r.URL.Query().Get("status")),
		Page:   page,
		Limit:  limit,
	}
	items, total, err := h.svc.ListReports(r.Context(), q, principal(r).Role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, listResponse[models.Report]{Items: items, Total: total})
}

func (h *Handlers) UpdateReportStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status models.ReportStatus `json:"status"`
	}
	if err := util.DecodeJSON(w, r, &req); err != nil {
		h.badRequest(w, r, err.Error())
		return
	}
	p := principal(r)
	res, err := h.svc.UpdateReportStatus(r.Context(), chi.URLParam(r, "id"), p.UserID, p.Role, req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, res)
}

func (h *Handlers) AcceptReport(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	res, err := h.svc.AcceptReport(r.Context(), chi.URLParam(r, "id"), p.UserID, p.Role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, res)
}

func (h *Handlers) DismissReport(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	rep, err := h.svc.DismissReport(r.Context(), chi.URLParam(r, "id"), p.UserID, p.Role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, rep)
}

func (h *Handlers) SetCommentHidden(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Hidden *bool `json:"hidden"`
	}
	if err := util.DecodeJSON(w, r, &req); err != nil {
		h.badRequest(w, r, err.Error())
		return
	}
	if req.Hidden == nil {
		h.badRequest(w, r, "hidden is required")
		return
	}
	c, err := h.svc.SetCommentHidden(r.Context(), chi.URLParam(r, "id"), *req.Hidden, principal(r).Role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, c)
}
