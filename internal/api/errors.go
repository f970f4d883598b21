package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/sentinela-saude/sentinela/internal/workflow"
)

// StatusForCode maps a domain reason code to its HTTP status
func StatusForCode(code workflow.Code) int {
	switch code {
	case workflow.CodeNotFound:
		return http.StatusNotFound
	case workflow.CodeConflict, workflow.CodeDuplicate, workflow.CodeSweepInProgress:
		return http.StatusConflict
	case workflow.CodeForbidden:
		return http.StatusForbidden
	case workflow.CodeInvalidField, workflow.CodeInvalidDeadline:
		return http.StatusBadRequest
	case workflow.CodeClassifierUnavailable, workflow.CodeDispatchFailed:
		return http.StatusServiceUnavailable
	case workflow.CodeInvestigationIncomplete,
		workflow.CodeEvidenceRequired,
		workflow.CodeCausalAnalysisRequired,
		workflow.CodeActionPlanRequired,
		workflow.CodeIncidentConcluded,
		workflow.CodeInvalidTransition,
		workflow.CodeAlreadyEscalated,
		workflow.CodeDeadlineAlertPending,
		workflow.CodeNoManagerForSector,
		workflow.CodeNoOversightContact:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// RespondDomainError writes err with the status of its reason code. Errors
// without a code are logged and reported as a generic 500.
func RespondDomainError(w http.ResponseWriter, err error) {
	var derr *workflow.Error
	if !errors.As(err, &derr) {
		log.Printf("Warning: unhandled error: %v", err)
		RespondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	status := StatusForCode(derr.Code)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "30")
	}
	RespondJSON(w, status, ErrorResponse{
		Error:     derr.Message,
		Code:      string(derr.Code),
		Retryable: derr.Retryable(),
	})
}
