package api

import (
	"time"

	"github.com/sentinela-saude/sentinela/internal/database"
	"github.com/sentinela-saude/sentinela/internal/services"
)

// ========== Incident Types ==========

// CreateIncidentRequest is the request body for POST /api/incidents.
type CreateIncidentRequest struct {
	ReporterName     string    `json:"reporter_name" validate:"omitempty,max=255"`
	PatientName      string    `json:"patient_name" validate:"omitempty,max=255"`
	Description      string    `json:"description" validate:"required,max=20000"`
	EventDate        time.Time `json:"event_date" validate:"required"`
	ReportingSector  string    `json:"reporting_sector" validate:"omitempty,max=255"`
	NotifiedSector   string    `json:"notified_sector" validate:"required,max=255"`
	NotificationKind string    `json:"notification_kind" validate:"omitempty,notification_kind"`
}

// UpdateIncidentRequest is the request body for PATCH /api/incidents/{id}.
// Only fields present in the body are changed.
type UpdateIncidentRequest struct {
	ReporterName     *string    `json:"reporter_name" validate:"omitempty,max=255"`
	PatientName      *string    `json:"patient_name" validate:"omitempty,max=255"`
	Description      *string    `json:"description" validate:"omitempty,min=1"`
	ReportingSector  *string    `json:"reporting_sector" validate:"omitempty,max=255"`
	NotifiedSector   *string    `json:"notified_sector" validate:"omitempty,min=1,max=255"`
	RiskLevel        *string    `json:"risk_level" validate:"omitempty,risk_level"`
	EventType        *string    `json:"event_type" validate:"omitempty,max=255"`
	NotificationKind *string    `json:"notification_kind" validate:"omitempty,notification_kind"`
	Recommendation   *string    `json:"recommendation"`
	CausalAnalysis   *string    `json:"causal_analysis"`
	ActionPlan       *string    `json:"action_plan"`
	DueDate          *time.Time `json:"due_date"`
	Status           *string    `json:"status" validate:"omitempty,incident_status"`
	ActionPlanStatus *string    `json:"action_plan_status" validate:"omitempty,oneof=NOT_STARTED IN_PROGRESS COMPLETED"`
}

// InvestigationRequest is the request body for POST /api/incidents/{id}/investigation.
type InvestigationRequest struct {
	Answers map[string]interface{} `json:"answers" validate:"required"`
}

// EvidenceRequest is the request body for POST /api/incidents/{id}/evidence.
type EvidenceRequest struct {
	Reference string `json:"reference" validate:"required,max=2048"`
	Label     string `json:"label" validate:"omitempty,max=255"`
}

// ActionPlanRequest is the request body for POST /api/incidents/{id}/action-plan.
type ActionPlanRequest struct {
	CausalAnalysis string     `json:"causal_analysis"`
	ActionPlan     string     `json:"action_plan"`
	Deadline       *time.Time `json:"deadline"`
}

// ForwardRequest is the request body for POST /api/incidents/{id}/forward.
type ForwardRequest struct {
	Email string `json:"email" validate:"omitempty,email"`
}

// ExtensionRequest is the request body for POST /api/incidents/{id}/extension.
type ExtensionRequest struct {
	ProposedDate time.Time `json:"proposed_date" validate:"required"`
	Reason       string    `json:"reason" validate:"required,max=4000"`
}

// ApproveDeadlineRequest is the request body for POST /api/incidents/{id}/deadline/approve.
// Without a date the pending requested date is applied.
type ApproveDeadlineRequest struct {
	NewDate *time.Time `json:"new_date"`
}

// IncidentResponse is an incident with the side effects of the call
type IncidentResponse struct {
	Incident *database.Incident `json:"incident"`
	Notified []string           `json:"notified,omitempty"`
	Warnings []services.Warning `json:"warnings,omitempty"`
}

// CausalDraftResponse is the result of POST /api/incidents/{id}/causal-analysis.
type CausalDraftResponse struct {
	Draft    string             `json:"draft"`
	Stored   bool               `json:"stored"`
	Incident *database.Incident `json:"incident"`
}

// IncidentListItem is a compact representation of an incident for list views.
// It omits the investigation answers and long narrative fields.
type IncidentListItem struct {
	ID                uint                      `json:"id"`
	UUID              string                    `json:"uuid"`
	NotifiedSector    string                    `json:"notified_sector"`
	RiskLevel         database.RiskLevel        `json:"risk_level"`
	EventType         string                    `json:"event_type"`
	NotificationKind  database.NotificationKind `json:"notification_kind"`
	Status            database.IncidentStatus   `json:"status"`
	ActionPlanStatus  database.ActionPlanStatus `json:"action_plan_status"`
	EventDate         time.Time                 `json:"event_date"`
	EffectiveDeadline time.Time                 `json:"effective_deadline"`
	ExtensionPending  bool                      `json:"extension_pending"`
	DeadlineAlerted   bool                      `json:"deadline_alerted"`
	Escalated         bool                      `json:"escalated"`
	CreatedAt         time.Time                 `json:"created_at"`
}

// ========== Directory Types ==========

// SectorRequest is the request body for POST /api/sectors.
type SectorRequest struct {
	Name string `json:"name" validate:"required,max=255"`
}

// ManagerRequest is the request body for POST and PUT /api/managers.
type ManagerRequest struct {
	Name    string   `json:"name" validate:"required,max=255"`
	Email   string   `json:"email" validate:"required,email"`
	Role    string   `json:"role" validate:"omitempty,oneof=GESTOR_SETOR ADMIN ALTA_GESTAO"`
	Sectors []string `json:"sectors" validate:"dive,required,max=255"`
}

// ========== Auth Types ==========

// LoginRequest is the request body for POST /auth/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries a signed token
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
	Username  string `json:"username"`
}

// ========== Pagination Types ==========

// PaginationMeta contains pagination metadata for list responses.
type PaginationMeta struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// PaginatedResponse wraps a list response with pagination metadata.
type PaginatedResponse struct {
	Data       interface{}    `json:"data"`
	Pagination PaginationMeta `json:"pagination"`
}
