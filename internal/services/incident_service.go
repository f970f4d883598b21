package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sentinela-saude/sentinela/internal/audit"
	"github.com/sentinela-saude/sentinela/internal/database"
	"github.com/sentinela-saude/sentinela/internal/events"
	"github.com/sentinela-saude/sentinela/internal/notify"
	"github.com/sentinela-saude/sentinela/internal/resolver"
	"github.com/sentinela-saude/sentinela/internal/workflow"
)

// classifyTimeout bounds one classifier round trip during creation
const classifyTimeout = 30 * time.Second

// IncidentService manages the incident lifecycle
type IncidentService struct {
	*core
}

// IncidentResult is an incident plus the non-fatal problems met on the way
type IncidentResult struct {
	Incident *database.Incident
	Notified []string
	Warnings []Warning
}

func (r *IncidentResult) warn(w *Warning) {
	if w != nil {
		r.Warnings = append(r.Warnings, *w)
	}
}

// CreateIncident validates and stores a report, classifies it, computes the
// due date and notifies the managers of the notified sector. A classifier
// failure stores a pending classification; a missing manager is a warning.
func (s *IncidentService) CreateIncident(ctx context.Context, actor Actor, tenantID uint, report workflow.Report) (*IncidentResult, error) {
	if err := workflow.ValidateReport(report); err != nil {
		return nil, err
	}
	// Classify before storing, the risk level decides the due date
	classification := s.classify(ctx, report.Description)

	inc, err := workflow.NewIncident(tenantID, uuid.NewString(), report, classification)
	if err != nil {
		return nil, err
	}
	if err := s.incidents.Create(ctx, inc); err != nil {
		return nil, fmt.Errorf("failed to store incident: %w", err)
	}

	// Hold the lock while notifying so no sweep alerts a half-announced incident
	unlock := s.lockIncident(tenantID, inc.UUID)
	defer unlock()

	log.Printf("IncidentService: created incident %s (tenant %d, sector %s, risk %s)",
		inc.UUID, tenantID, inc.NotifiedSector, inc.RiskLevel)
	s.record(ctx, actor.label(), audit.ActionIncidentCreated, inc, map[string]interface{}{
		"risk_level":             string(inc.RiskLevel),
		"notified_sector":        inc.NotifiedSector,
		"classification_pending": inc.ClassificationPending,
	})
	s.publish(ctx, events.IncidentCreated, inc, map[string]interface{}{
		"risk_level": string(inc.RiskLevel),
		"due_date":   inc.DueDate,
	})

	// Classifier and manager problems are warnings, the incident is already stored
	result := &IncidentResult{Incident: inc}
	if inc.ClassificationPending {
		result.warn(&Warning{Code: workflow.CodeClassifierUnavailable, Message: "classification is awaiting analysis"})
	}
	result.warn(s.notifyNewIncident(ctx, actor, inc, result))
	return result, nil
}

// classify asks the classifier and degrades to a pending classification
func (s *IncidentService) classify(ctx context.Context, description string) workflow.Classification {
	if s.classifier == nil {
		s.metrics.Classifier("skipped")
		return workflow.PendingClassification()
	}
	cctx, cancel := context.WithTimeout(ctx, classifyTimeout)
	defer cancel()

	res, err := s.classifier.Classify(cctx, description)
	if err != nil {
		log.Printf("Warning: classifier unavailable, storing pending classification: %v", err)
		s.metrics.Classifier("fallback")
		return workflow.PendingClassification()
	}
	s.metrics.Classifier("ok")
	return workflow.Classification{
		RiskLevel:        database.ParseRiskLevel(strings.ToUpper(strings.TrimSpace(res.RiskLevel))),
		EventType:        res.EventType,
		Recommendation:   res.Recommendation,
		NotificationKind: database.NotificationKind(res.NotificationKind),
	}
}

// notifyNewIncident sends the creation notice and flips managerNotified when
// at least one manager received it. Caller holds the incident lock.
func (s *IncidentService) notifyNewIncident(ctx context.Context, actor Actor, inc *database.Incident, result *IncidentResult) *Warning {
	res, err := s.notifySectorManagers(ctx, actor.label(), inc, notify.TemplateIncidentNotification, nil)
	if err != nil {
		if errors.Is(err, resolver.ErrNoManagerForSector) {
			log.Printf("Warning: no manager for sector %q of incident %s", inc.NotifiedSector, inc.UUID)
			return &Warning{Code: workflow.CodeNoManagerForSector, Message: err.Error()}
		}
		log.Printf("IncidentService: failed to resolve managers for incident %s: %v", inc.UUID, err)
		return &Warning{Code: workflow.CodeDispatchFailed, Message: err.Error()}
	}
	if w := dispatchWarning(notify.TemplateIncidentNotification, res); w != nil {
		return w
	}
	result.Notified = res.Delivered
	s.markManagerNotified(ctx, actor, inc, res.Delivered)
	return nil
}

func (s *IncidentService) markManagerNotified(ctx context.Context, actor Actor, inc *database.Incident, recipients []string) {
	if inc.ManagerNotified {
		return
	}
	// Managers already have the e-mail, so the flag must land even if ctx is gone
	ctx, cancel := detached(ctx)
	defer cancel()
	won, err := s.incidents.ClaimFlag(ctx, inc, database.FlagManagerNotified, s.now())
	if err != nil {
		log.Printf("IncidentService: failed to mark incident %s notified: %v", inc.UUID, err)
		return
	}
	if !won {
		return
	}
	s.record(ctx, actor.label(), audit.ActionManagerNotified, inc, map[string]interface{}{
		"recipients": recipients,
	})
	s.publish(ctx, events.ManagerNotified, inc, map[string]interface{}{"recipients": recipients})
}

// GetIncident returns an incident with its evidence
func (s *IncidentService) GetIncident(ctx context.Context, tenantID uint, id string) (*database.Incident, error) {
	inc, err := s.incidents.GetWithEvidence(ctx, tenantID, id)
	if err != nil {
		return nil, repoError(err, "incident "+id)
	}
	return inc, nil
}

// ListIncidents returns one page of a tenant's incidents and the total count
func (s *IncidentService) ListIncidents(ctx context.Context, tenantID uint, filter database.ListFilter) ([]database.Incident, int64, error) {
	return s.incidents.List(ctx, tenantID, filter)
}

// UpdateIncident applies a partial field patch. A risk level change re-bases
// the deadline and setting the status to Concluído runs the closing guard.
func (s *IncidentService) UpdateIncident(ctx context.Context, actor Actor, tenantID uint, id string, patch workflow.Patch) (*database.Incident, error) {
	if patch.IsEmpty() {
		return nil, workflow.Errorf(workflow.CodeInvalidField, "no fields to update")
	}
	unlock := s.lockIncident(tenantID, id)
	defer unlock()

	inc, err := s.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	// The closing guard needs the evidence count
	evidence, err := s.incidents.CountEvidence(ctx, tenantID, inc.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count evidence: %w", err)
	}
	changes, err := workflow.ApplyPatch(inc, patch, evidence, s.now())
	if err != nil {
		return nil, err
	}
	previousStatus := inc.Status
	if err := s.save(ctx, inc, changes); err != nil {
		return nil, err
	}

	s.record(ctx, actor.label(), audit.ActionIncidentUpdated, inc, map[string]interface{}{
		"fields": changedFields(changes),
	})
	if inc.IsConcluded() && previousStatus != database.IncidentStatusConcluded {
		s.record(ctx, actor.label(), audit.ActionIncidentConcluded, inc, nil)
		s.publish(ctx, events.IncidentConcluded, inc, nil)
	} else {
		s.publish(ctx, events.IncidentUpdated, inc, map[string]interface{}{"fields": changedFields(changes)})
	}
	return inc, nil
}

// RecordInvestigation stores the structured investigation answers
func (s *IncidentService) RecordInvestigation(ctx context.Context, actor Actor, tenantID uint, id string, answers map[string]interface{}) (*database.Incident, error) {
	unlock := s.lockIncident(tenantID, id)
	defer unlock()

	inc, err := s.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	changes, err := workflow.RecordInvestigation(inc, answers, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, inc, changes); err != nil {
		return nil, err
	}
	s.record(ctx, actor.label(), audit.ActionInvestigation, inc, map[string]interface{}{"answers": len(answers)})
	s.publish(ctx, events.InvestigationRecorded, inc, nil)
	return inc, nil
}

// AttachEvidence stores a reference to an externally stored attachment
func (s *IncidentService) AttachEvidence(ctx context.Context, actor Actor, tenantID uint, id, reference, label string) (*database.Evidence, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, workflow.Errorf(workflow.CodeInvalidField, "evidence reference is required")
	}
	unlock := s.lockIncident(tenantID, id)
	defer unlock()

	inc, err := s.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if inc.IsConcluded() {
		return nil, workflow.Errorf(workflow.CodeIncidentConcluded, "incident %s is concluded", inc.UUID)
	}
	ev := &database.Evidence{
		IncidentID: inc.ID,
		TenantID:   tenantID,
		Reference:  reference,
		Label:      strings.TrimSpace(label),
		AttachedBy: actor.label(),
	}
	if err := s.incidents.AddEvidence(ctx, ev); err != nil {
		return nil, err
	}
	s.record(ctx, actor.label(), audit.ActionEvidenceAttached, inc, map[string]interface{}{
		"evidence_id": ev.ID,
		"reference":   ev.Reference,
	})
	return ev, nil
}

// CausalDraft is a generated causal analysis
type CausalDraft struct {
	Draft    string
	Stored   bool // true when the draft became the incident's causal analysis
	Incident *database.Incident
}

// GenerateCausalAnalysis drafts a causal analysis from the investigation.
// The draft is stored only when the incident has no causal analysis yet.
func (s *IncidentService) GenerateCausalAnalysis(ctx context.Context, actor Actor, tenantID uint, id string) (*CausalDraft, error) {
	inc, err := s.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := workflow.CanGenerateCausalAnalysis(inc); err != nil {
		return nil, err
	}
	if s.classifier == nil {
		return nil, workflow.Errorf(workflow.CodeClassifierUnavailable, "text generation is not configured")
	}

	draft, err := s.classifier.DraftCausalAnalysis(ctx, inc.Description, map[string]interface{}(inc.Investigation))
	if err != nil {
		s.metrics.Classifier("failed")
		return nil, workflow.Wrap(workflow.CodeClassifierUnavailable, err, "causal analysis generation failed")
	}
	s.metrics.Classifier("ok")

	unlock := s.lockIncident(tenantID, id)
	defer unlock()

	// Re-read under the lock so a causal analysis written meanwhile is kept
	inc, err = s.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	out := &CausalDraft{Draft: draft, Incident: inc}
	if strings.TrimSpace(inc.CausalAnalysis) == "" && !inc.IsConcluded() {
		if err := s.save(ctx, inc, workflow.Changes{"causal_analysis": draft}); err != nil {
			return nil, err
		}
		out.Stored = true
	}
	s.record(ctx, actor.label(), audit.ActionCausalDrafted, inc, map[string]interface{}{"stored": out.Stored})
	return out, nil
}

// StartActionPlan moves the action plan to IN_PROGRESS
func (s *IncidentService) StartActionPlan(ctx context.Context, actor Actor, tenantID uint, id string, in workflow.PlanInput) (*database.Incident, error) {
	unlock := s.lockIncident(tenantID, id)
	defer unlock()

	inc, err := s.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	changes, err := workflow.StartActionPlan(inc, in, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, inc, changes); err != nil {
		return nil, err
	}
	s.record(ctx, actor.label(), audit.ActionActionPlanStarted, inc, map[string]interface{}{
		"deadline": inc.EffectiveDeadline(),
	})
	s.publish(ctx, events.ActionPlanStarted, inc, map[string]interface{}{"deadline": inc.EffectiveDeadline()})
	return inc, nil
}

// FinalizeIncident concludes the incident once the closing guard passes
func (s *IncidentService) FinalizeIncident(ctx context.Context, actor Actor, tenantID uint, id string) (*database.Incident, error) {
	unlock := s.lockIncident(tenantID, id)
	defer unlock()

	inc, err := s.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	evidence, err := s.incidents.CountEvidence(ctx, tenantID, inc.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count evidence: %w", err)
	}
	changes, err := workflow.Finalize(inc, evidence, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, inc, changes); err != nil {
		return nil, err
	}
	log.Printf("IncidentService: incident %s concluded", inc.UUID)
	s.record(ctx, actor.label(), audit.ActionIncidentConcluded, inc, map[string]interface{}{"evidence": evidence})
	s.publish(ctx, events.IncidentConcluded, inc, nil)
	return inc, nil
}

// ReopenActionPlan moves a COMPLETED action plan back to IN_PROGRESS. Only
// administrators may do this.
func (s *IncidentService) ReopenActionPlan(ctx context.Context, actor Actor, tenantID uint, id string) (*database.Incident, error) {
	if actor.Role != database.RoleAdmin {
		return nil, workflow.Errorf(workflow.CodeForbidden, "only %s may reopen an action plan", database.RoleAdmin)
	}
	unlock := s.lockIncident(tenantID, id)
	defer unlock()

	inc, err := s.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	changes, err := workflow.ReopenActionPlan(inc)
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, inc, changes); err != nil {
		return nil, err
	}
	s.record(ctx, actor.label(), audit.ActionActionPlanReopened, inc, nil)
	s.publish(ctx, events.IncidentUpdated, inc, map[string]interface{}{"fields": []string{"action_plan_status"}})
	return inc, nil
}

// ClassifyIncident retries the classifier for an incident still awaiting analysis
func (s *IncidentService) ClassifyIncident(ctx context.Context, actor Actor, tenantID uint, id string) (*database.Incident, error) {
	inc, err := s.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if inc.IsConcluded() {
		return nil, workflow.Errorf(workflow.CodeIncidentConcluded, "incident %s is concluded", inc.UUID)
	}
	if !inc.ClassificationPending {
		return nil, workflow.Errorf(workflow.CodeInvalidTransition, "incident %s is already classified", inc.UUID)
	}
	if s.classifier == nil {
		return nil, workflow.Errorf(workflow.CodeClassifierUnavailable, "classifier is not configured")
	}

	res, err := s.classifier.Classify(ctx, inc.Description)
	if err != nil {
		s.metrics.Classifier("failed")
		return nil, workflow.Wrap(workflow.CodeClassifierUnavailable, err, "classification failed")
	}
	s.metrics.Classifier("ok")

	unlock := s.lockIncident(tenantID, id)
	defer unlock()

	// Another request may have classified it while the classifier ran
	inc, err = s.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if !inc.ClassificationPending {
		return inc, nil
	}
	changes, err := workflow.Classify(inc, workflow.Classification{
		RiskLevel:        database.ParseRiskLevel(strings.ToUpper(strings.TrimSpace(res.RiskLevel))),
		EventType:        res.EventType,
		Recommendation:   res.Recommendation,
		NotificationKind: database.NotificationKind(res.NotificationKind),
	}, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, inc, changes); err != nil {
		return nil, err
	}
	s.record(ctx, actor.label(), audit.ActionIncidentClassified, inc, map[string]interface{}{
		"risk_level": string(inc.RiskLevel),
	})
	s.publish(ctx, events.IncidentUpdated, inc, map[string]interface{}{"fields": changedFields(changes)})
	return inc, nil
}

// ForwardToManager re-sends the incident to the managers of its notified
// sector, or to overrideEmail when given.
func (s *IncidentService) ForwardToManager(ctx context.Context, actor Actor, tenantID uint, id, overrideEmail string) (*IncidentResult, error) {
	overrideEmail = strings.TrimSpace(overrideEmail)
	if overrideEmail != "" && !strings.Contains(overrideEmail, "@") {
		return nil, workflow.Errorf(workflow.CodeInvalidField, "invalid e-mail %q", overrideEmail)
	}
	unlock := s.lockIncident(tenantID, id)
	defer unlock()

	inc, err := s.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if inc.IsConcluded() {
		return nil, workflow.Errorf(workflow.CodeIncidentConcluded, "incident %s is concluded", inc.UUID)
	}

	// An override address bypasses the sector directory
	var res notify.Result
	if overrideEmail != "" {
		res = s.dispatchTo(ctx, []resolver.Contact{{Email: overrideEmail}}, notify.TemplateIncidentForwarded, s.templateData(inc, nil))
	} else {
		res, err = s.notifySectorManagers(ctx, actor.label(), inc, notify.TemplateIncidentForwarded, nil)
		if err != nil {
			if errors.Is(err, resolver.ErrNoManagerForSector) {
				return nil, workflow.Wrap(workflow.CodeNoManagerForSector, err, "no manager to forward to")
			}
			return nil, err
		}
	}
	if !res.Any() {
		return nil, workflow.Errorf(workflow.CodeDispatchFailed, "incident %s was not delivered to any recipient", inc.UUID)
	}

	s.record(ctx, actor.label(), audit.ActionIncidentForwarded, inc, map[string]interface{}{
		"recipients": res.Delivered,
		"override":   overrideEmail != "",
	})
	result := &IncidentResult{Incident: inc, Notified: res.Delivered}
	s.markManagerNotified(ctx, actor, inc, res.Delivered)
	return result, nil
}

func changedFields(changes workflow.Changes) []string {
	fields := make([]string, 0, len(changes))
	for k := range changes {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}
