package workflow

import (
	"errors"
	"testing"
	"time"

	"github.com/sentinela-saude/sentinela/internal/database"
)

var (
	eventDate = time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	now       = time.Date(2025, 1, 12, 9, 0, 0, 0, time.UTC)
)

func openIncident() *database.Incident {
	return &database.Incident{
		ID:               1,
		UUID:             "inc-1",
		TenantID:         1,
		Description:      "queda do leito",
		EventDate:        eventDate,
		NotifiedSector:   "UTI",
		RiskLevel:        database.RiskMild,
		Status:           database.IncidentStatusOpen,
		ActionPlanStatus: database.ActionPlanNotStarted,
		DueDate:          eventDate.AddDate(0, 0, 5),
		Version:          1,
	}
}

func investigated() *database.Incident {
	inc := openIncident()
	at := now.Add(-time.Hour)
	inc.InvestigatedAt = &at
	inc.Investigation = database.JSONB{"what": "fall"}
	inc.Status = database.IncidentStatusAnalysis
	return inc
}

func inProgress(start time.Time) *database.Incident {
	inc := investigated()
	inc.CausalAnalysis = "sem grade de proteção"
	inc.ActionPlan = "instalar grades"
	inc.ActionPlanStatus = database.ActionPlanInProgress
	inc.ActionPlanStartDate = &start
	d := start.AddDate(0, 0, 5)
	inc.ActionPlanDeadline = &d
	return inc
}

func assertCode(t *testing.T, err error, code Code) {
	t.Helper()
	if !IsCode(err, code) {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

func TestNewIncident(t *testing.T) {
	r := Report{Description: "queda", EventDate: eventDate, NotifiedSector: "UTI"}

	inc, err := NewIncident(1, "u-1", r, Classification{RiskLevel: database.RiskSevere, EventType: "queda"})
	if err != nil {
		t.Fatalf("NewIncident: %v", err)
	}
	if inc.Status != database.IncidentStatusOpen || inc.ActionPlanStatus != database.ActionPlanNotStarted {
		t.Errorf("unexpected initial states: %s / %s", inc.Status, inc.ActionPlanStatus)
	}
	if want := time.Date(2025, 1, 11, 0, 0, 0, 0, time.UTC); !inc.DueDate.Equal(want) {
		t.Errorf("due date = %v, want %v", inc.DueDate, want)
	}
	if inc.NotificationKind != database.KindAdverseEvent {
		t.Errorf("default kind = %s", inc.NotificationKind)
	}
}

func TestNewIncident_PendingClassification(t *testing.T) {
	r := Report{Description: "queda", EventDate: eventDate, NotifiedSector: "UTI"}
	inc, err := NewIncident(1, "u-1", r, PendingClassification())
	if err != nil {
		t.Fatalf("NewIncident: %v", err)
	}
	if inc.RiskLevel != database.RiskNA || !inc.ClassificationPending || inc.EventType != database.AwaitingAnalysisEventType {
		t.Errorf("unexpected placeholder classification: %+v", inc)
	}
	if want := eventDate.AddDate(0, 0, 5); !inc.DueDate.Equal(want) {
		t.Errorf("due date = %v, want %v", inc.DueDate, want)
	}
}

func TestNewIncident_Validation(t *testing.T) {
	tests := []struct {
		name   string
		report Report
	}{
		{"missing description", Report{EventDate: eventDate, NotifiedSector: "UTI"}},
		{"missing event date", Report{Description: "x", NotifiedSector: "UTI"}},
		{"missing sector", Report{Description: "x", EventDate: eventDate}},
		{"unknown kind", Report{Description: "x", EventDate: eventDate, NotifiedSector: "UTI", NotificationKind: "OUTRO"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewIncident(1, "u", tt.report, PendingClassification())
			assertCode(t, err, CodeInvalidField)
		})
	}
}

func TestRecordInvestigation(t *testing.T) {
	inc := openIncident()
	changes, err := RecordInvestigation(inc, map[string]interface{}{"what": "fall"}, now)
	if err != nil {
		t.Fatalf("RecordInvestigation: %v", err)
	}
	if changes["status"] != database.IncidentStatusAnalysis {
		t.Errorf("expected move to analysis, got %v", changes["status"])
	}
	if _, err := RecordInvestigation(inc, nil, now); !IsCode(err, CodeInvalidField) {
		t.Errorf("empty answers should be rejected, got %v", err)
	}
}

func TestCanGenerateCausalAnalysis(t *testing.T) {
	assertCode(t, CanGenerateCausalAnalysis(openIncident()), CodeInvestigationIncomplete)
	if err := CanGenerateCausalAnalysis(investigated()); err != nil {
		t.Errorf("investigated incident should allow drafting: %v", err)
	}
}

func TestStartActionPlan(t *testing.T) {
	t.Run("requires investigation", func(t *testing.T) {
		_, err := StartActionPlan(openIncident(), PlanInput{CausalAnalysis: "a", ActionPlan: "b"}, now)
		assertCode(t, err, CodeInvestigationIncomplete)
	})
	t.Run("requires causal analysis", func(t *testing.T) {
		_, err := StartActionPlan(investigated(), PlanInput{ActionPlan: "b"}, now)
		assertCode(t, err, CodeCausalAnalysisRequired)
	})
	t.Run("requires action plan", func(t *testing.T) {
		_, err := StartActionPlan(investigated(), PlanInput{CausalAnalysis: "a", ActionPlan: "  "}, now)
		assertCode(t, err, CodeActionPlanRequired)
	})
	t.Run("default deadline counts from start", func(t *testing.T) {
		inc := investigated()
		inc.RiskLevel = database.RiskModerate
		changes, err := StartActionPlan(inc, PlanInput{CausalAnalysis: "a", ActionPlan: "b"}, now)
		if err != nil {
			t.Fatalf("StartActionPlan: %v", err)
		}
		if changes["action_plan_status"] != database.ActionPlanInProgress {
			t.Errorf("status = %v", changes["action_plan_status"])
		}
		if got := changes["action_plan_deadline"].(time.Time); !got.Equal(now.AddDate(0, 0, 3)) {
			t.Errorf("deadline = %v", got)
		}
		if got := changes["action_plan_start_date"].(time.Time); !got.Equal(now) {
			t.Errorf("start = %v", got)
		}
	})
	t.Run("explicit deadline", func(t *testing.T) {
		d := now.AddDate(0, 0, 10)
		changes, err := StartActionPlan(investigated(), PlanInput{CausalAnalysis: "a", ActionPlan: "b", Deadline: &d}, now)
		if err != nil {
			t.Fatalf("StartActionPlan: %v", err)
		}
		if !changes["action_plan_deadline"].(time.Time).Equal(d) {
			t.Errorf("deadline override ignored")
		}
	})
	t.Run("deadline before event", func(t *testing.T) {
		d := eventDate.AddDate(0, 0, -1)
		_, err := StartActionPlan(investigated(), PlanInput{CausalAnalysis: "a", ActionPlan: "b", Deadline: &d}, now)
		assertCode(t, err, CodeInvalidDeadline)
	})
	t.Run("re-arms a lapsed alert", func(t *testing.T) {
		inc := investigated()
		inc.DeadlineAlertSent = true
		changes, err := StartActionPlan(inc, PlanInput{CausalAnalysis: "a", ActionPlan: "b"}, now)
		if err != nil {
			t.Fatalf("StartActionPlan: %v", err)
		}
		if v, ok := changes["deadline_alert_sent"]; !ok || v != false {
			t.Errorf("expected deadline alert to be re-armed, got %v", changes)
		}
	})
	t.Run("completed plan", func(t *testing.T) {
		inc := investigated()
		inc.ActionPlanStatus = database.ActionPlanCompleted
		_, err := StartActionPlan(inc, PlanInput{CausalAnalysis: "a", ActionPlan: "b"}, now)
		assertCode(t, err, CodeInvalidTransition)
	})
}

func TestFinalize(t *testing.T) {
	t.Run("evidence required even with analysis and plan", func(t *testing.T) {
		inc := inProgress(now)
		_, err := Finalize(inc, 0, now)
		assertCode(t, err, CodeEvidenceRequired)
	})
	t.Run("causal analysis required", func(t *testing.T) {
		_, err := Finalize(investigated(), 3, now)
		assertCode(t, err, CodeCausalAnalysisRequired)
	})
	t.Run("already concluded", func(t *testing.T) {
		inc := inProgress(now)
		inc.Status = database.IncidentStatusConcluded
		_, err := Finalize(inc, 1, now)
		assertCode(t, err, CodeIncidentConcluded)
	})
	t.Run("concludes and completes plan", func(t *testing.T) {
		changes, err := Finalize(inProgress(now), 1, now)
		if err != nil {
			t.Fatalf("Finalize: %v", err)
		}
		if changes["status"] != database.IncidentStatusConcluded {
			t.Errorf("status = %v", changes["status"])
		}
		if changes["action_plan_status"] != database.ActionPlanCompleted {
			t.Errorf("action plan = %v", changes["action_plan_status"])
		}
	})
}

func TestReopenActionPlan(t *testing.T) {
	inc := inProgress(now)
	if _, err := ReopenActionPlan(inc); !IsCode(err, CodeInvalidTransition) {
		t.Errorf("only completed plans reopen, got %v", err)
	}
	inc.ActionPlanStatus = database.ActionPlanCompleted
	changes, err := ReopenActionPlan(inc)
	if err != nil {
		t.Fatalf("ReopenActionPlan: %v", err)
	}
	if changes["action_plan_status"] != database.ActionPlanInProgress {
		t.Errorf("got %v", changes)
	}
}

func TestClassify_RecomputesFromEventDate(t *testing.T) {
	inc := openIncident()
	inc.RiskLevel = database.RiskNA
	inc.ClassificationPending = true

	changes, err := Classify(inc, Classification{RiskLevel: database.RiskSevere, EventType: "queda"}, now)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if !changes["due_date"].(time.Time).Equal(eventDate.AddDate(0, 0, 1)) {
		t.Errorf("due date = %v", changes["due_date"])
	}
	if changes["classification_pending"] != false {
		t.Error("pending marker should clear")
	}
}

func TestErrorRetryable(t *testing.T) {
	retry := []Code{CodeClassifierUnavailable, CodeDispatchFailed, CodeConflict, CodeSweepInProgress}
	for _, c := range retry {
		if !Errorf(c, "x").Retryable() {
			t.Errorf("%s should be retryable", c)
		}
	}
	never := []Code{CodeEvidenceRequired, CodeAlreadyEscalated, CodeInvestigationIncomplete, CodeInvalidField}
	for _, c := range never {
		if Errorf(c, "x").Retryable() {
			t.Errorf("%s should not be retryable", c)
		}
	}

	cause := errors.New("timeout")
	wrapped := Wrap(CodeDispatchFailed, cause, "send failed")
	if !errors.Is(wrapped, cause) {
		t.Error("Wrap should keep the cause")
	}
	if !IsRetryable(wrapped) || IsRetryable(cause) {
		t.Error("IsRetryable mismatch")
	}
	if CodeOf(cause) != "" {
		t.Error("plain errors have no code")
	}
}

func TestNewIncident_IgnoresUnknownClassifierKind(t *testing.T) {
	c := Classification{RiskLevel: database.RiskMild, NotificationKind: "ADVERSE"}
	inc, err := NewIncident(1, "u-kind", Report{Description: "x", EventDate: eventDate, NotifiedSector: "UTI"}, c)
	if err != nil {
		t.Fatalf("classifier output must not reject a valid report: %v", err)
	}
	if inc.NotificationKind != database.KindAdverseEvent {
		t.Errorf("expected default kind, got %s", inc.NotificationKind)
	}
}
