// Package workflow holds the incident state machine. Every transition
// validates the whole request first and then returns the complete set of
// column changes, so a rejected transition never mutates anything.
package workflow

import (
	"strings"
	"time"

	"github.com/sentinela-saude/sentinela/internal/database"
	"github.com/sentinela-saude/sentinela/internal/deadline"
)

// Changes maps incident columns to their new values
type Changes map[string]interface{}

// Report is the submitted incident payload
type Report struct {
	ReporterName     string
	PatientName      string
	Description      string
	EventDate        time.Time
	ReportingSector  string
	NotifiedSector   string
	NotificationKind database.NotificationKind
}

// Classification is the outcome of risk classification
type Classification struct {
	RiskLevel        database.RiskLevel
	EventType        string
	Recommendation   string
	NotificationKind database.NotificationKind
	Pending          bool
}

// PendingClassification is used when the classifier could not answer
func PendingClassification() Classification {
	return Classification{
		RiskLevel: database.RiskNA,
		EventType: database.AwaitingAnalysisEventType,
		Pending:   true,
	}
}

// ValidateReport checks the submitted fields before anything else runs
func ValidateReport(r Report) error {
	if strings.TrimSpace(r.Description) == "" {
		return Errorf(CodeInvalidField, "description is required")
	}
	if r.EventDate.IsZero() {
		return Errorf(CodeInvalidField, "event date is required")
	}
	if strings.TrimSpace(r.NotifiedSector) == "" {
		return Errorf(CodeInvalidField, "notified sector is required")
	}
	if r.NotificationKind != "" && !validKind(r.NotificationKind) {
		return Errorf(CodeInvalidField, "unknown notification kind %q", r.NotificationKind)
	}
	return nil
}

// NewIncident validates a report and builds the initial incident:
// status Aberto, action plan NOT_STARTED, due date from the event date.
// The reporter's notification kind wins over the classifier's.
func NewIncident(tenantID uint, uuid string, r Report, c Classification) (*database.Incident, error) {
	if err := ValidateReport(r); err != nil {
		return nil, err
	}

	kind := r.NotificationKind
	if kind == "" && validKind(c.NotificationKind) {
		kind = c.NotificationKind
	}
	if kind == "" {
		kind = database.KindAdverseEvent
	}

	level := database.ParseRiskLevel(string(c.RiskLevel))
	eventDate := r.EventDate.UTC()
	return &database.Incident{
		UUID:                  uuid,
		TenantID:              tenantID,
		ReporterName:          strings.TrimSpace(r.ReporterName),
		PatientName:           strings.TrimSpace(r.PatientName),
		Description:           r.Description,
		EventDate:             eventDate,
		ReportingSector:       strings.TrimSpace(r.ReportingSector),
		NotifiedSector:        strings.TrimSpace(r.NotifiedSector),
		RiskLevel:             level,
		EventType:             c.EventType,
		NotificationKind:      kind,
		Recommendation:        c.Recommendation,
		ClassificationPending: c.Pending,
		Status:                database.IncidentStatusOpen,
		ActionPlanStatus:      database.ActionPlanNotStarted,
		DueDate:               deadline.Compute(eventDate, level),
		Version:               1,
	}, nil
}

// Classify applies a classifier answer to an existing incident. The due date
// follows the new severity: counted from the action-plan start while the plan
// is in progress, from the event date otherwise.
func Classify(inc *database.Incident, c Classification, now time.Time) (Changes, error) {
	if inc.IsConcluded() {
		return nil, Errorf(CodeIncidentConcluded, "incident %s is concluded", inc.UUID)
	}
	level := database.ParseRiskLevel(string(c.RiskLevel))
	changes := Changes{
		"risk_level":             level,
		"event_type":             c.EventType,
		"recommendation":         c.Recommendation,
		"classification_pending": c.Pending,
	}
	if c.NotificationKind != "" && validKind(c.NotificationKind) {
		changes["notification_kind"] = c.NotificationKind
	}
	if level != inc.RiskLevel {
		applyRiskDeadline(inc, level, changes, now)
	}
	return changes, nil
}

// RecordInvestigation stores the structured investigation answers and moves
// an open incident into analysis.
func RecordInvestigation(inc *database.Incident, answers map[string]interface{}, now time.Time) (Changes, error) {
	if inc.IsConcluded() {
		return nil, Errorf(CodeIncidentConcluded, "incident %s is concluded", inc.UUID)
	}
	if len(answers) == 0 {
		return nil, Errorf(CodeInvalidField, "investigation answers are required")
	}
	changes := Changes{
		"investigation":   database.JSONB(answers),
		"investigated_at": now.UTC(),
	}
	if inc.Status == database.IncidentStatusOpen {
		changes["status"] = database.IncidentStatusAnalysis
	}
	return changes, nil
}

// CanGenerateCausalAnalysis gates causal-analysis drafting on a stored investigation
func CanGenerateCausalAnalysis(inc *database.Incident) error {
	if inc.IsConcluded() {
		return Errorf(CodeIncidentConcluded, "incident %s is concluded", inc.UUID)
	}
	if !inc.HasInvestigation() {
		return Errorf(CodeInvestigationIncomplete, "incident %s has no investigation record", inc.UUID)
	}
	return nil
}

// PlanInput starts the corrective action plan. Empty texts fall back to what
// the incident already holds.
type PlanInput struct {
	CausalAnalysis string
	ActionPlan     string
	Deadline       *time.Time
}

// StartActionPlan moves the action plan to IN_PROGRESS, stamps its start and
// sets its deadline: the given one, or the severity window counted from now.
func StartActionPlan(inc *database.Incident, in PlanInput, now time.Time) (Changes, error) {
	if inc.IsConcluded() {
		return nil, Errorf(CodeIncidentConcluded, "incident %s is concluded", inc.UUID)
	}
	if inc.ActionPlanStatus == database.ActionPlanCompleted {
		return nil, Errorf(CodeInvalidTransition, "action plan of incident %s is completed", inc.UUID)
	}
	if !inc.HasInvestigation() {
		return nil, Errorf(CodeInvestigationIncomplete, "incident %s has no investigation record", inc.UUID)
	}

	causal := firstNonBlank(in.CausalAnalysis, inc.CausalAnalysis)
	if causal == "" {
		return nil, Errorf(CodeCausalAnalysisRequired, "causal analysis is required")
	}
	plan := firstNonBlank(in.ActionPlan, inc.ActionPlan)
	if plan == "" {
		return nil, Errorf(CodeActionPlanRequired, "action plan is required")
	}

	start := now.UTC()
	var due time.Time
	if in.Deadline != nil {
		due = in.Deadline.UTC()
		if due.Before(inc.EventDate) {
			return nil, Errorf(CodeInvalidDeadline, "deadline %s precedes event date", due.Format(time.RFC3339))
		}
	} else {
		due = deadline.Compute(start, inc.RiskLevel)
	}

	changes := Changes{
		"causal_analysis":        causal,
		"action_plan":            plan,
		"action_plan_status":     database.ActionPlanInProgress,
		"action_plan_start_date": start,
		"action_plan_deadline":   due,
	}
	if inc.Status == database.IncidentStatusOpen {
		changes["status"] = database.IncidentStatusAnalysis
	}
	resetDeadlineAlert(inc, due, changes, now)
	return changes, nil
}

// Finalize concludes an incident. It needs a causal analysis and at least one
// evidence reference; an in-progress action plan is completed with it.
func Finalize(inc *database.Incident, evidenceCount int64, now time.Time) (Changes, error) {
	if inc.IsConcluded() {
		return nil, Errorf(CodeIncidentConcluded, "incident %s is already concluded", inc.UUID)
	}
	if strings.TrimSpace(inc.CausalAnalysis) == "" {
		return nil, Errorf(CodeCausalAnalysisRequired, "causal analysis is required to conclude")
	}
	if evidenceCount < 1 {
		return nil, Errorf(CodeEvidenceRequired, "at least one evidence reference is required to conclude")
	}
	changes := Changes{
		"status":       database.IncidentStatusConcluded,
		"concluded_at": now.UTC(),
	}
	if inc.ActionPlanStatus == database.ActionPlanInProgress {
		changes["action_plan_status"] = database.ActionPlanCompleted
	}
	return changes, nil
}

// CompleteActionPlan moves IN_PROGRESS to COMPLETED under the same evidence
// and causal-analysis guard as Finalize.
func CompleteActionPlan(inc *database.Incident, evidenceCount int64) (Changes, error) {
	if inc.IsConcluded() {
		return nil, Errorf(CodeIncidentConcluded, "incident %s is concluded", inc.UUID)
	}
	if inc.ActionPlanStatus != database.ActionPlanInProgress {
		return nil, Errorf(CodeInvalidTransition, "action plan is %s, not %s", inc.ActionPlanStatus, database.ActionPlanInProgress)
	}
	if strings.TrimSpace(inc.CausalAnalysis) == "" {
		return nil, Errorf(CodeCausalAnalysisRequired, "causal analysis is required to complete the action plan")
	}
	if evidenceCount < 1 {
		return nil, Errorf(CodeEvidenceRequired, "at least one evidence reference is required to complete the action plan")
	}
	return Changes{"action_plan_status": database.ActionPlanCompleted}, nil
}

// ReopenActionPlan is the authorized override taking a COMPLETED plan back to IN_PROGRESS
func ReopenActionPlan(inc *database.Incident) (Changes, error) {
	if inc.IsConcluded() {
		return nil, Errorf(CodeIncidentConcluded, "incident %s is concluded", inc.UUID)
	}
	if inc.ActionPlanStatus != database.ActionPlanCompleted {
		return nil, Errorf(CodeInvalidTransition, "action plan is %s, only %s can be reopened", inc.ActionPlanStatus, database.ActionPlanCompleted)
	}
	return Changes{"action_plan_status": database.ActionPlanInProgress}, nil
}

// applyRiskDeadline records the deadline implied by a severity change
func applyRiskDeadline(inc *database.Incident, level database.RiskLevel, changes Changes, now time.Time) {
	if rebased, ok := deadline.Rebase(inc, level); ok {
		changes["due_date"] = rebased
		changes["action_plan_deadline"] = rebased
		resetDeadlineAlert(inc, rebased, changes, now)
		return
	}
	due := deadline.Compute(inc.EventDate, level)
	changes["due_date"] = due
	if inc.ActionPlanDeadline == nil {
		resetDeadlineAlert(inc, due, changes, now)
	}
}

// resetDeadlineAlert re-arms the deadline alert when the effective deadline
// moves into the future and the case was not escalated yet.
func resetDeadlineAlert(inc *database.Incident, effective time.Time, changes Changes, now time.Time) {
	if inc.DeadlineAlertSent && !inc.EscalationAlertSent && effective.After(now) {
		changes["deadline_alert_sent"] = false
		changes["deadline_alert_sent_at"] = nil
	}
}

func validKind(k database.NotificationKind) bool {
	return k == database.KindAdverseEvent || k == database.KindNonConformity
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
