package handlers

import (
	"net/http"

	"github.com/sentinela-saude/sentinela/internal/api"
	"github.com/sentinela-saude/sentinela/internal/database"
)

// handleListIncidents handles GET /api/incidents
func (h *APIHandler) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	_, tenantID := principal(r)
	params := api.ParsePagination(r)
	q := r.URL.Query()

	// Unknown filter values match nothing rather than failing the request
	filter := database.ListFilter{
		Status:         database.IncidentStatus(q.Get("status")),
		NotifiedSector: q.Get("sector"),
		RiskLevel:      database.RiskLevel(q.Get("risk_level")),
		Offset:         params.Offset(),
		Limit:          params.PerPage,
	}
	incidents, total, err := h.svc.Incidents.ListIncidents(r.Context(), tenantID, filter)
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, params.Paginate(api.IncidentsToListItems(incidents), total))
}

// handleCreateIncident handles POST /api/incidents
func (h *APIHandler) handleCreateIncident(w http.ResponseWriter, r *http.Request) {
	actor, tenantID := principal(r)
	var req api.CreateIncidentRequest
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.svc.Incidents.CreateIncident(r.Context(), actor, tenantID, req.ToReport())
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusCreated, api.IncidentResultToResponse(result))
}

// handleGetIncident handles GET /api/incidents/{id}
func (h *APIHandler) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	_, tenantID := principal(r)
	inc, err := h.svc.Incidents.GetIncident(r.Context(), tenantID, r.PathValue("id"))
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, inc)
}

// handleUpdateIncident handles PATCH /api/incidents/{id}
func (h *APIHandler) handleUpdateIncident(w http.ResponseWriter, r *http.Request) {
	actor, tenantID := principal(r)
	var req api.UpdateIncidentRequest
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}

	inc, err := h.svc.Incidents.UpdateIncident(r.Context(), actor, tenantID, r.PathValue("id"), req.ToPatch())
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, inc)
}

// handleRecordInvestigation handles POST /api/incidents/{id}/investigation
func (h *APIHandler) handleRecordInvestigation(w http.ResponseWriter, r *http.Request) {
	actor, tenantID := principal(r)
	var req api.InvestigationRequest
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}

	inc, err := h.svc.Incidents.RecordInvestigation(r.Context(), actor, tenantID, r.PathValue("id"), req.Answers)
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, inc)
}

// handleAttachEvidence handles POST /api/incidents/{id}/evidence
func (h *APIHandler) handleAttachEvidence(w http.ResponseWriter, r *http.Request) {
	actor, tenantID := principal(r)
	var req api.EvidenceRequest
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}

	ev, err := h.svc.Incidents.AttachEvidence(r.Context(), actor, tenantID, r.PathValue("id"), req.Reference, req.Label)
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusCreated, ev)
}

// handleGenerateCausalAnalysis handles POST /api/incidents/{id}/causal-analysis
func (h *APIHandler) handleGenerateCausalAnalysis(w http.ResponseWriter, r *http.Request) {
	actor, tenantID := principal(r)
	draft, err := h.svc.Incidents.GenerateCausalAnalysis(r.Context(), actor, tenantID, r.PathValue("id"))
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, api.CausalDraftResponse{Draft: draft.Draft, Stored: draft.Stored, Incident: draft.Incident})
}

// handleStartActionPlan handles POST /api/incidents/{id}/action-plan
func (h *APIHandler) handleStartActionPlan(w http.ResponseWriter, r *http.Request) {
	actor, tenantID := principal(r)
	var req api.ActionPlanRequest
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}

	inc, err := h.svc.Incidents.StartActionPlan(r.Context(), actor, tenantID, r.PathValue("id"), req.ToPlanInput())
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, inc)
}

// handleFinalize handles POST /api/incidents/{id}/finalize
func (h *APIHandler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	actor, tenantID := principal(r)
	inc, err := h.svc.Incidents.FinalizeIncident(r.Context(), actor, tenantID, r.PathValue("id"))
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, inc)
}

// handleClassify handles POST /api/incidents/{id}/classify
func (h *APIHandler) handleClassify(w http.ResponseWriter, r *http.Request) {
	actor, tenantID := principal(r)
	inc, err := h.svc.Incidents.ClassifyIncident(r.Context(), actor, tenantID, r.PathValue("id"))
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, inc)
}

// handleForward handles POST /api/incidents/{id}/forward. The body is
// optional; without an e-mail the sector managers are notified again.
func (h *APIHandler) handleForward(w http.ResponseWriter, r *http.Request) {
	actor, tenantID := principal(r)
	var req api.ForwardRequest
	if r.ContentLength != 0 && !api.DecodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.svc.Incidents.ForwardToManager(r.Context(), actor, tenantID, r.PathValue("id"), req.Email)
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, api.IncidentResultToResponse(result))
}

// handleReopen handles POST /api/incidents/{id}/reopen
func (h *APIHandler) handleReopen(w http.ResponseWriter, r *http.Request) {
	actor, tenantID := principal(r)
	inc, err := h.svc.Incidents.ReopenActionPlan(r.Context(), actor, tenantID, r.PathValue("id"))
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, inc)
}
