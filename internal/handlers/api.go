package handlers

import (
	"net/http"
	"strconv"

	"github.com/sentinela-saude/sentinela/internal/api"
	"github.com/sentinela-saude/sentinela/internal/jobs"
	"github.com/sentinela-saude/sentinela/internal/middleware"
	"github.com/sentinela-saude/sentinela/internal/services"
)

// APIHandler serves the /api endpoints. Every route runs with the tenant and
// role of the authenticated user.
type APIHandler struct {
	svc   *services.Services
	sweep *jobs.DeadlineSweep
	authz *middleware.Authorizer
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(svc *services.Services, sweep *jobs.DeadlineSweep, authz *middleware.Authorizer) *APIHandler {
	return &APIHandler{svc: svc, sweep: sweep, authz: authz}
}

// SetupRoutes configures all API routes
func (h *APIHandler) SetupRoutes(mux *http.ServeMux) {
	readIncidents := h.authz.Require(middleware.ResourceIncidents, middleware.ActionRead)
	writeIncidents := h.authz.Require(middleware.ResourceIncidents, middleware.ActionWrite)
	decideDeadlines := h.authz.Require(middleware.ResourceDeadlines, middleware.ActionWrite)
	override := h.authz.Require(middleware.ResourceOverrides, middleware.ActionWrite)
	readDirectory := h.authz.Require(middleware.ResourceDirectory, middleware.ActionRead)
	writeDirectory := h.authz.Require(middleware.ResourceDirectory, middleware.ActionWrite)
	runJobs := h.authz.Require(middleware.ResourceJobs, middleware.ActionWrite)

	// Incidents
	mux.HandleFunc("GET /api/incidents", readIncidents(h.handleListIncidents))
	mux.HandleFunc("POST /api/incidents", writeIncidents(h.handleCreateIncident))
	mux.HandleFunc("GET /api/incidents/{id}", readIncidents(h.handleGetIncident))
	mux.HandleFunc("PATCH /api/incidents/{id}", writeIncidents(h.handleUpdateIncident))
	mux.HandleFunc("POST /api/incidents/{id}/investigation", writeIncidents(h.handleRecordInvestigation))
	mux.HandleFunc("POST /api/incidents/{id}/evidence", writeIncidents(h.handleAttachEvidence))
	mux.HandleFunc("POST /api/incidents/{id}/causal-analysis", writeIncidents(h.handleGenerateCausalAnalysis))
	mux.HandleFunc("POST /api/incidents/{id}/action-plan", writeIncidents(h.handleStartActionPlan))
	mux.HandleFunc("POST /api/incidents/{id}/finalize", writeIncidents(h.handleFinalize))
	mux.HandleFunc("POST /api/incidents/{id}/classify", writeIncidents(h.handleClassify))
	mux.HandleFunc("POST /api/incidents/{id}/forward", writeIncidents(h.handleForward))
	mux.HandleFunc("POST /api/incidents/{id}/reopen", override(h.handleReopen))

	// Deadlines and escalation
	mux.HandleFunc("POST /api/incidents/{id}/extension", writeIncidents(h.handleRequestExtension))
	mux.HandleFunc("POST /api/incidents/{id}/escalate", writeIncidents(h.handleEscalate))
	mux.HandleFunc("POST /api/incidents/{id}/deadline/approve", decideDeadlines(h.handleApproveDeadline))
	mux.HandleFunc("POST /api/incidents/{id}/deadline/reject", decideDeadlines(h.handleRejectDeadline))
	mux.HandleFunc("GET /api/actions", decideDeadlines(h.handleAction))

	// Directory
	mux.HandleFunc("GET /api/sectors", readDirectory(h.handleListSectors))
	mux.HandleFunc("POST /api/sectors", writeDirectory(h.handleCreateSector))
	mux.HandleFunc("DELETE /api/sectors/{id}", writeDirectory(h.handleDeleteSector))
	mux.HandleFunc("GET /api/managers", readDirectory(h.handleListManagers))
	mux.HandleFunc("POST /api/managers", writeDirectory(h.handleCreateManager))
	mux.HandleFunc("GET /api/managers/{id}", readDirectory(h.handleGetManager))
	mux.HandleFunc("PUT /api/managers/{id}", writeDirectory(h.handleUpdateManager))
	mux.HandleFunc("DELETE /api/managers/{id}", writeDirectory(h.handleDeleteManager))

	// Jobs
	mux.HandleFunc("POST /api/jobs/deadline-sweep", runJobs(h.handleRunSweep))
}

// principal returns the acting user and tenant of an authorized request
func principal(r *http.Request) (services.Actor, uint) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		return services.Actor{}, 0
	}
	return services.Actor{Name: claims.Username, Role: claims.Role}, claims.TenantID
}

// pathID parses a numeric {id} path value, writing a 400 when it is invalid
func pathID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		api.RespondErrorWithCode(w, http.StatusBadRequest, "INVALID_FIELD", "Invalid id")
		return 0, false
	}
	return uint(id), true
}
