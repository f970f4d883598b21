package testhelpers

import (
	"time"

	"github.com/google/uuid"

	"github.com/sentinela-saude/sentinela/internal/database"
	"github.com/sentinela-saude/sentinela/internal/deadline"
)

// EventDate is the event date used by default in built incidents
var EventDate = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

// ========================================
// Incident Builder
// ========================================

// IncidentBuilder builds Incident instances for testing
type IncidentBuilder struct {
	incident database.Incident
}

// NewIncidentBuilder creates a GRAVE, open incident notified to UTI
func NewIncidentBuilder() *IncidentBuilder {
	return &IncidentBuilder{
		incident: database.Incident{
			UUID:             uuid.NewString(),
			TenantID:         1,
			ReporterName:     "Enf. Carla",
			Description:      "Queda do paciente durante transferência do leito",
			EventDate:        EventDate,
			ReportingSector:  "Enfermaria",
			NotifiedSector:   "UTI",
			RiskLevel:        database.RiskSevere,
			EventType:        "Queda",
			NotificationKind: database.KindAdverseEvent,
			Status:           database.IncidentStatusOpen,
			DueDate:          deadline.Compute(EventDate, database.RiskSevere),
			ActionPlanStatus: database.ActionPlanNotStarted,
			Version:          1,
		},
	}
}

// WithTenant sets the owning tenant
func (b *IncidentBuilder) WithTenant(id uint) *IncidentBuilder {
	b.incident.TenantID = id
	return b
}

// WithUUID sets the public identifier
func (b *IncidentBuilder) WithUUID(id string) *IncidentBuilder {
	b.incident.UUID = id
	return b
}

// WithSector sets the notified sector
func (b *IncidentBuilder) WithSector(sector string) *IncidentBuilder {
	b.incident.NotifiedSector = sector
	return b
}

// WithRisk sets the risk level and recomputes the due date from the event date
func (b *IncidentBuilder) WithRisk(level database.RiskLevel) *IncidentBuilder {
	b.incident.RiskLevel = level
	b.incident.DueDate = deadline.Compute(b.incident.EventDate, level)
	return b
}

// WithDueDate overrides the due date
func (b *IncidentBuilder) WithDueDate(due time.Time) *IncidentBuilder {
	b.incident.DueDate = due
	return b
}

// PendingClassification marks the incident as awaiting the classifier
func (b *IncidentBuilder) PendingClassification() *IncidentBuilder {
	b.incident.RiskLevel = database.RiskNA
	b.incident.EventType = database.AwaitingAnalysisEventType
	b.incident.ClassificationPending = true
	b.incident.DueDate = deadline.Compute(b.incident.EventDate, database.RiskNA)
	return b
}

// Investigated stores investigation answers and moves the incident to Em Análise
func (b *IncidentBuilder) Investigated(at time.Time) *IncidentBuilder {
	b.incident.Investigation = database.JSONB{"o_que_aconteceu": "queda"}
	b.incident.InvestigatedAt = &at
	b.incident.Status = database.IncidentStatusAnalysis
	return b
}

// WithCausalAnalysis sets the causal analysis text
func (b *IncidentBuilder) WithCausalAnalysis(text string) *IncidentBuilder {
	b.incident.CausalAnalysis = text
	return b
}

// InProgress starts the action plan at start with the given deadline
func (b *IncidentBuilder) InProgress(start, planDeadline time.Time) *IncidentBuilder {
	if b.incident.InvestigatedAt == nil {
		b.Investigated(start)
	}
	if b.incident.CausalAnalysis == "" {
		b.incident.CausalAnalysis = "Grade lateral baixada"
	}
	b.incident.ActionPlan = "Checklist de grades na passagem de plantão"
	b.incident.ActionPlanStatus = database.ActionPlanInProgress
	b.incident.ActionPlanStartDate = &start
	b.incident.ActionPlanDeadline = &planDeadline
	return b
}

// WithRequestedDeadline records a pending extension request
func (b *IncidentBuilder) WithRequestedDeadline(requested time.Time, reason string) *IncidentBuilder {
	b.incident.RequestedDeadline = &requested
	b.incident.ExtensionReason = reason
	return b
}

// DeadlineAlerted marks the deadline alert as sent
func (b *IncidentBuilder) DeadlineAlerted(at time.Time) *IncidentBuilder {
	b.incident.DeadlineAlertSent = true
	b.incident.DeadlineAlertSentAt = &at
	return b
}

// Escalated marks the escalation as sent
func (b *IncidentBuilder) Escalated(at time.Time) *IncidentBuilder {
	b.incident.EscalationAlertSent = true
	b.incident.EscalationAlertSentAt = &at
	return b
}

// Concluded moves the incident to its terminal status
func (b *IncidentBuilder) Concluded(at time.Time) *IncidentBuilder {
	b.incident.Status = database.IncidentStatusConcluded
	b.incident.ConcludedAt = &at
	return b
}

// Build returns the constructed incident
func (b *IncidentBuilder) Build() database.Incident {
	return b.incident
}

// ========================================
// Manager Builder
// ========================================

// ManagerBuilder builds Manager instances for testing
type ManagerBuilder struct {
	manager database.Manager
}

// NewManagerBuilder creates a sector manager accountable for UTI
func NewManagerBuilder() *ManagerBuilder {
	return &ManagerBuilder{
		manager: database.Manager{
			TenantID: 1,
			Name:     "Dra. Helena",
			Email:    "helena@hospital.test",
			Role:     database.RoleSectorManager,
			Sectors:  database.SectorSet{"UTI"},
		},
	}
}

// WithTenant sets the owning tenant
func (b *ManagerBuilder) WithTenant(id uint) *ManagerBuilder {
	b.manager.TenantID = id
	return b
}

// WithName sets the manager name
func (b *ManagerBuilder) WithName(name string) *ManagerBuilder {
	b.manager.Name = name
	return b
}

// WithEmail sets the contact address
func (b *ManagerBuilder) WithEmail(email string) *ManagerBuilder {
	b.manager.Email = email
	return b
}

// WithRole sets the role
func (b *ManagerBuilder) WithRole(role database.ManagerRole) *ManagerBuilder {
	b.manager.Role = role
	return b
}

// WithSectors replaces the sector set
func (b *ManagerBuilder) WithSectors(sectors ...string) *ManagerBuilder {
	b.manager.Sectors = database.SectorSet(sectors)
	return b
}

// Build returns the constructed manager
func (b *ManagerBuilder) Build() database.Manager {
	return b.manager
}
