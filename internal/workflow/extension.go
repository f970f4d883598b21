package workflow

import (
	"strings"
	"time"

	"github.com/sentinela-saude/sentinela/internal/database"
)

// RequestExtension records a proposed deadline awaiting oversight decision
func RequestExtension(inc *database.Incident, proposed time.Time, reason string, now time.Time) (Changes, error) {
	if inc.IsConcluded() {
		return nil, Errorf(CodeIncidentConcluded, "incident %s is concluded", inc.UUID)
	}
	if strings.TrimSpace(reason) == "" {
		return nil, Errorf(CodeInvalidField, "a reason is required to request an extension")
	}
	proposed = proposed.UTC()
	if !proposed.After(inc.EffectiveDeadline()) {
		return nil, Errorf(CodeInvalidDeadline, "proposed deadline must be after the current deadline")
	}
	return Changes{
		"requested_deadline": proposed,
		"extension_reason":   strings.TrimSpace(reason),
	}, nil
}

// ApproveDeadline sets the action-plan deadline to newDate, or to the pending
// requested date when newDate is nil. Re-approving simply applies it again.
func ApproveDeadline(inc *database.Incident, newDate *time.Time, now time.Time) (Changes, time.Time, error) {
	if inc.IsConcluded() {
		return nil, time.Time{}, Errorf(CodeIncidentConcluded, "incident %s is concluded", inc.UUID)
	}
	var target time.Time
	switch {
	case newDate != nil:
		target = newDate.UTC()
	case inc.RequestedDeadline != nil:
		target = inc.RequestedDeadline.UTC()
	default:
		return nil, time.Time{}, Errorf(CodeInvalidDeadline, "no deadline given and no extension pending")
	}
	if target.Before(inc.EventDate) {
		return nil, time.Time{}, Errorf(CodeInvalidDeadline, "deadline precedes event date")
	}

	changes := Changes{
		"action_plan_deadline": target,
		"requested_deadline":   nil,
		"extension_reason":     "",
	}
	resetDeadlineAlert(inc, target, changes, now)
	return changes, target, nil
}

// RejectDeadline keeps the deadline and drops any pending request
func RejectDeadline(inc *database.Incident) (Changes, error) {
	if inc.IsConcluded() {
		return nil, Errorf(CodeIncidentConcluded, "incident %s is concluded", inc.UUID)
	}
	return Changes{
		"requested_deadline": nil,
		"extension_reason":   "",
	}, nil
}

// CanEscalate checks the manual escalation preconditions
func CanEscalate(inc *database.Incident) error {
	if inc.IsConcluded() {
		return Errorf(CodeIncidentConcluded, "incident %s is concluded", inc.UUID)
	}
	if inc.EscalationAlertSent {
		return Errorf(CodeAlreadyEscalated, "incident %s was already escalated", inc.UUID)
	}
	if !inc.DeadlineAlertSent {
		return Errorf(CodeDeadlineAlertPending, "incident %s has no deadline alert yet", inc.UUID)
	}
	return nil
}
