package workflow

import (
	"strings"
	"time"

	"github.com/sentinela-saude/sentinela/internal/database"
)

// Patch is a partial field edit; nil fields are left untouched
type Patch struct {
	ReporterName     *string
	PatientName      *string
	Description      *string
	ReportingSector  *string
	NotifiedSector   *string
	RiskLevel        *database.RiskLevel
	EventType        *string
	NotificationKind *database.NotificationKind
	Recommendation   *string
	CausalAnalysis   *string
	ActionPlan       *string
	DueDate          *time.Time
	Status           *database.IncidentStatus
	ActionPlanStatus *database.ActionPlanStatus
}

// IsEmpty reports whether the patch carries no field
func (p Patch) IsEmpty() bool {
	return p.ReporterName == nil && p.PatientName == nil && p.Description == nil &&
		p.ReportingSector == nil && p.NotifiedSector == nil && p.RiskLevel == nil &&
		p.EventType == nil && p.NotificationKind == nil && p.Recommendation == nil &&
		p.CausalAnalysis == nil && p.ActionPlan == nil && p.DueDate == nil &&
		p.Status == nil && p.ActionPlanStatus == nil
}

// ApplyPatch validates a manual edit against the current incident and returns
// the resulting changes. A severity change re-bases the deadline; moving the
// status to Concluído or the plan to COMPLETED runs the closing guard with
// the patched causal analysis taken into account.
func ApplyPatch(inc *database.Incident, p Patch, evidenceCount int64, now time.Time) (Changes, error) {
	if inc.IsConcluded() {
		return nil, Errorf(CodeIncidentConcluded, "incident %s is concluded", inc.UUID)
	}

	changes := Changes{}
	setText := func(column string, v *string, required bool) error {
		if v == nil {
			return nil
		}
		trimmed := strings.TrimSpace(*v)
		if required && trimmed == "" {
			return Errorf(CodeInvalidField, "%s cannot be empty", column)
		}
		changes[column] = trimmed
		return nil
	}
	for _, f := range []struct {
		column   string
		value    *string
		required bool
	}{
		{"reporter_name", p.ReporterName, false},
		{"patient_name", p.PatientName, false},
		{"description", p.Description, true},
		{"reporting_sector", p.ReportingSector, false},
		{"notified_sector", p.NotifiedSector, true},
		{"event_type", p.EventType, false},
		{"recommendation", p.Recommendation, false},
		{"action_plan", p.ActionPlan, false},
	} {
		if err := setText(f.column, f.value, f.required); err != nil {
			return nil, err
		}
	}
	if p.CausalAnalysis != nil {
		changes["causal_analysis"] = *p.CausalAnalysis
	}

	if p.NotificationKind != nil {
		if !validKind(*p.NotificationKind) {
			return nil, Errorf(CodeInvalidField, "unknown notification kind %q", *p.NotificationKind)
		}
		changes["notification_kind"] = *p.NotificationKind
	}

	if p.RiskLevel != nil {
		level := *p.RiskLevel
		if database.ParseRiskLevel(string(level)) != level {
			return nil, Errorf(CodeInvalidField, "unknown risk level %q", level)
		}
		changes["risk_level"] = level
		changes["classification_pending"] = false
		if level != inc.RiskLevel {
			applyRiskDeadline(inc, level, changes, now)
		}
	}

	if p.DueDate != nil {
		due := p.DueDate.UTC()
		if due.Before(inc.EventDate) {
			return nil, Errorf(CodeInvalidDeadline, "due date precedes event date")
		}
		changes["due_date"] = due
		if inc.ActionPlanDeadline == nil {
			resetDeadlineAlert(inc, due, changes, now)
		}
	}

	causal := inc.CausalAnalysis
	if p.CausalAnalysis != nil {
		causal = *p.CausalAnalysis
	}
	closing := *inc
	closing.CausalAnalysis = causal

	if p.ActionPlanStatus != nil && *p.ActionPlanStatus != inc.ActionPlanStatus {
		switch *p.ActionPlanStatus {
		case database.ActionPlanCompleted:
			extra, err := CompleteActionPlan(&closing, evidenceCount)
			if err != nil {
				return nil, err
			}
			merge(changes, extra)
		default:
			return nil, Errorf(CodeInvalidTransition, "action plan cannot move from %s to %s by edit", inc.ActionPlanStatus, *p.ActionPlanStatus)
		}
	}

	if p.Status != nil && *p.Status != inc.Status {
		switch *p.Status {
		case database.IncidentStatusConcluded:
			extra, err := Finalize(&closing, evidenceCount, now)
			if err != nil {
				return nil, err
			}
			merge(changes, extra)
		case database.IncidentStatusAnalysis:
			if inc.Status != database.IncidentStatusOpen {
				return nil, Errorf(CodeInvalidTransition, "status cannot move from %s to %s", inc.Status, *p.Status)
			}
			changes["status"] = database.IncidentStatusAnalysis
		default:
			return nil, Errorf(CodeInvalidTransition, "status cannot move from %s to %s", inc.Status, *p.Status)
		}
	}

	return changes, nil
}

func merge(dst, src Changes) {
	for k, v := range src {
		dst[k] = v
	}
}
