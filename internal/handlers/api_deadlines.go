package handlers

import (
	"net/http"

	"github.com/sentinela-saude/sentinela/internal/api"
)

// handleRequestExtension handles POST /api/incidents/{id}/extension
func (h *APIHandler) handleRequestExtension(w http.ResponseWriter, r *http.Request) {
	actor, tenantID := principal(r)
	var req api.ExtensionRequest
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.svc.Extensions.RequestDeadlineExtension(r.Context(), actor, tenantID, r.PathValue("id"), req.ProposedDate, req.Reason)
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, api.IncidentResultToResponse(result))
}

// handleApproveDeadline handles POST /api/incidents/{id}/deadline/approve
func (h *APIHandler) handleApproveDeadline(w http.ResponseWriter, r *http.Request) {
	actor, tenantID := principal(r)
	var req api.ApproveDeadlineRequest
	if r.ContentLength != 0 && !api.DecodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.svc.Extensions.ApproveDeadline(r.Context(), actor, tenantID, r.PathValue("id"), req.NewDate)
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, api.IncidentResultToResponse(result))
}

// handleRejectDeadline handles POST /api/incidents/{id}/deadline/reject
func (h *APIHandler) handleRejectDeadline(w http.ResponseWriter, r *http.Request) {
	actor, tenantID := principal(r)
	result, err := h.svc.Extensions.RejectDeadline(r.Context(), actor, tenantID, r.PathValue("id"))
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, api.IncidentResultToResponse(result))
}

// handleAction handles GET /api/actions?action=&incident=&date=, the target
// of the approve/reject links e-mailed to the oversight contact.
func (h *APIHandler) handleAction(w http.ResponseWriter, r *http.Request) {
	actor, tenantID := principal(r)
	q := r.URL.Query()
	id := q.Get("incident")
	if id == "" {
		api.RespondErrorWithCode(w, http.StatusBadRequest, "INVALID_FIELD", "incident is required")
		return
	}

	result, err := h.svc.Extensions.HandleAction(r.Context(), actor, tenantID, q.Get("action"), id, q.Get("date"))
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, api.IncidentResultToResponse(result))
}

// handleEscalate handles POST /api/incidents/{id}/escalate
func (h *APIHandler) handleEscalate(w http.ResponseWriter, r *http.Request) {
	actor, tenantID := principal(r)
	result, err := h.svc.Escalations.Escalate(r.Context(), actor, tenantID, r.PathValue("id"))
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, api.IncidentResultToResponse(result))
}
