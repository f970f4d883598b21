// Package deadline maps a risk level and a reference date to a response deadline.
package deadline

import (
	"time"

	"github.com/sentinela-saude/sentinela/internal/database"
)

// Response windows in calendar days
const (
	SevereDays   = 1
	ModerateDays = 3
	DefaultDays  = 5
)

// Days returns the response window for level. LEVE, NA and unknown levels
// all get the default window.
func Days(level database.RiskLevel) int {
	switch level {
	case database.RiskSevere:
		return SevereDays
	case database.RiskModerate:
		return ModerateDays
	default:
		return DefaultDays
	}
}

// Compute returns ref plus the response window of level, in calendar days
func Compute(ref time.Time, level database.RiskLevel) time.Time {
	return ref.AddDate(0, 0, Days(level))
}

// Reference picks the date a deadline is counted from: the action-plan start
// once execution is in progress, otherwise the event date.
func Reference(inc *database.Incident) time.Time {
	if inc.ActionPlanStatus == database.ActionPlanInProgress && inc.ActionPlanStartDate != nil {
		return *inc.ActionPlanStartDate
	}
	return inc.EventDate
}

// Rebase recomputes the deadline of an incident whose classification changes
// to level. It reports false when no re-basing applies, which is the case
// unless the action plan is in progress.
func Rebase(inc *database.Incident, level database.RiskLevel) (time.Time, bool) {
	if inc.ActionPlanStatus != database.ActionPlanInProgress || inc.ActionPlanStartDate == nil {
		return time.Time{}, false
	}
	return Compute(*inc.ActionPlanStartDate, level), true
}

// Lapsed reports whether the effective deadline of inc is strictly before now
func Lapsed(inc *database.Incident, now time.Time) bool {
	return now.After(inc.EffectiveDeadline())
}
