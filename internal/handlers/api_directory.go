package handlers

import (
	"net/http"

	"github.com/sentinela-saude/sentinela/internal/api"
)

// handleListSectors handles GET /api/sectors
func (h *APIHandler) handleListSectors(w http.ResponseWriter, r *http.Request) {
	_, tenantID := principal(r)
	sectors, err := h.svc.Directory.ListSectors(r.Context(), tenantID)
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, sectors)
}

// handleCreateSector handles POST /api/sectors
func (h *APIHandler) handleCreateSector(w http.ResponseWriter, r *http.Request) {
	actor, tenantID := principal(r)
	var req api.SectorRequest
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}

	sector, err := h.svc.Directory.CreateSector(r.Context(), actor, tenantID, req.Name)
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusCreated, sector)
}

// handleDeleteSector handles DELETE /api/sectors/{id}
func (h *APIHandler) handleDeleteSector(w http.ResponseWriter, r *http.Request) {
	actor, tenantID := principal(r)
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Directory.DeleteSector(r.Context(), actor, tenantID, id); err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondNoContent(w)
}

// handleListManagers handles GET /api/managers
func (h *APIHandler) handleListManagers(w http.ResponseWriter, r *http.Request) {
	_, tenantID := principal(r)
	managers, err := h.svc.Directory.ListManagers(r.Context(), tenantID)
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, managers)
}

// handleGetManager handles GET /api/managers/{id}
func (h *APIHandler) handleGetManager(w http.ResponseWriter, r *http.Request) {
	_, tenantID := principal(r)
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	m, err := h.svc.Directory.GetManager(r.Context(), tenantID, id)
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, m)
}

// handleCreateManager handles POST /api/managers
func (h *APIHandler) handleCreateManager(w http.ResponseWriter, r *http.Request) {
	actor, tenantID := principal(r)
	var req api.ManagerRequest
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}

	m, err := h.svc.Directory.CreateManager(r.Context(), actor, tenantID, req.ToManagerInput())
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusCreated, m)
}

// handleUpdateManager handles PUT /api/managers/{id}
func (h *APIHandler) handleUpdateManager(w http.ResponseWriter, r *http.Request) {
	actor, tenantID := principal(r)
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req api.ManagerRequest
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}

	m, err := h.svc.Directory.UpdateManager(r.Context(), actor, tenantID, id, req.ToManagerInput())
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, m)
}

// handleDeleteManager handles DELETE /api/managers/{id}
func (h *APIHandler) handleDeleteManager(w http.ResponseWriter, r *http.Request) {
	actor, tenantID := principal(r)
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Directory.DeleteManager(r.Context(), actor, tenantID, id); err != nil {
		api.RespondDomainError(w, err)
		return
	}
	api.RespondNoContent(w)
}
