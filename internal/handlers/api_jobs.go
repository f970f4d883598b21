package handlers

import (
	"log"
	"net/http"

	"github.com/sentinela-saude/sentinela/internal/api"
	"github.com/sentinela-saude/sentinela/internal/middleware"
)

// handleRunSweep handles POST /api/jobs/deadline-sweep. It runs one sweep
// synchronously and refuses with SWEEP_IN_PROGRESS while another is active.
func (h *APIHandler) handleRunSweep(w http.ResponseWriter, r *http.Request) {
	if h.sweep == nil {
		api.RespondError(w, http.StatusServiceUnavailable, "Deadline sweep is not configured")
		return
	}
	result, err := h.sweep.RunOnce(r.Context())
	if err != nil {
		api.RespondDomainError(w, err)
		return
	}
	log.Printf("APIHandler: manual deadline sweep by %s (request %s): %d checked, %d alerted",
		middleware.GetUserFromContext(r.Context()), middleware.GetRequestID(r.Context()), result.Checked, result.Sent)
	api.RespondJSON(w, http.StatusOK, result)
}
