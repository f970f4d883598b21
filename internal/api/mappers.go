package api

import (
	"github.com/sentinela-saude/sentinela/internal/database"
	"github.com/sentinela-saude/sentinela/internal/services"
	"github.com/sentinela-saude/sentinela/internal/workflow"
)

// ToReport converts a creation request into a workflow report
func (r CreateIncidentRequest) ToReport() workflow.Report {
	return workflow.Report{
		ReporterName:     r.ReporterName,
		PatientName:      r.PatientName,
		Description:      r.Description,
		EventDate:        r.EventDate,
		ReportingSector:  r.ReportingSector,
		NotifiedSector:   r.NotifiedSector,
		NotificationKind: database.NotificationKind(r.NotificationKind),
	}
}

// ToPatch converts an update request into a workflow patch
func (r UpdateIncidentRequest) ToPatch() workflow.Patch {
	p := workflow.Patch{
		ReporterName:    r.ReporterName,
		PatientName:     r.PatientName,
		Description:     r.Description,
		ReportingSector: r.ReportingSector,
		NotifiedSector:  r.NotifiedSector,
		EventType:       r.EventType,
		Recommendation:  r.Recommendation,
		CausalAnalysis:  r.CausalAnalysis,
		ActionPlan:      r.ActionPlan,
		DueDate:         r.DueDate,
	}
	if r.RiskLevel != nil {
		level := database.RiskLevel(*r.RiskLevel)
		p.RiskLevel = &level
	}
	if r.NotificationKind != nil {
		kind := database.NotificationKind(*r.NotificationKind)
		p.NotificationKind = &kind
	}
	if r.Status != nil {
		status := database.IncidentStatus(*r.Status)
		p.Status = &status
	}
	if r.ActionPlanStatus != nil {
		status := database.ActionPlanStatus(*r.ActionPlanStatus)
		p.ActionPlanStatus = &status
	}
	return p
}

// ToPlanInput converts an action-plan request
func (r ActionPlanRequest) ToPlanInput() workflow.PlanInput {
	return workflow.PlanInput{CausalAnalysis: r.CausalAnalysis, ActionPlan: r.ActionPlan, Deadline: r.Deadline}
}

// ToManagerInput converts a manager request
func (r ManagerRequest) ToManagerInput() services.ManagerInput {
	return services.ManagerInput{
		Name:    r.Name,
		Email:   r.Email,
		Role:    database.ManagerRole(r.Role),
		Sectors: database.SectorSet(r.Sectors),
	}
}

// IncidentResultToResponse converts a service result
func IncidentResultToResponse(res *services.IncidentResult) IncidentResponse {
	return IncidentResponse{Incident: res.Incident, Notified: res.Notified, Warnings: res.Warnings}
}

// IncidentToListItem converts a database Incident to a compact list representation.
func IncidentToListItem(i database.Incident) IncidentListItem {
	return IncidentListItem{
		ID:                i.ID,
		UUID:              i.UUID,
		NotifiedSector:    i.NotifiedSector,
		RiskLevel:         i.RiskLevel,
		EventType:         i.EventType,
		NotificationKind:  i.NotificationKind,
		Status:            i.Status,
		ActionPlanStatus:  i.ActionPlanStatus,
		EventDate:         i.EventDate,
		EffectiveDeadline: i.EffectiveDeadline(),
		ExtensionPending:  i.RequestedDeadline != nil,
		DeadlineAlerted:   i.DeadlineAlertSent,
		Escalated:         i.EscalationAlertSent,
		CreatedAt:         i.CreatedAt,
	}
}

// IncidentsToListItems converts a slice of database Incidents to list items.
func IncidentsToListItems(incidents []database.Incident) []IncidentListItem {
	items := make([]IncidentListItem, len(incidents))
	for i, inc := range incidents {
		items[i] = IncidentToListItem(inc)
	}
	return items
}
