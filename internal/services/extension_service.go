package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/sentinela-saude/sentinela/internal/audit"
	"github.com/sentinela-saude/sentinela/internal/database"
	"github.com/sentinela-saude/sentinela/internal/events"
	"github.com/sentinela-saude/sentinela/internal/notify"
	"github.com/sentinela-saude/sentinela/internal/resolver"
	"github.com/sentinela-saude/sentinela/internal/workflow"
)

// ExtensionService runs the deadline extension workflow
type ExtensionService struct {
	*core
}

// RequestDeadlineExtension records a proposed deadline and asks the tenant's
// oversight contact to approve or reject it.
func (s *ExtensionService) RequestDeadlineExtension(ctx context.Context, actor Actor, tenantID uint, id string, proposed time.Time, reason string) (*IncidentResult, error) {
	unlock := s.lockIncident(tenantID, id)
	defer unlock()

	inc, err := s.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	changes, err := workflow.RequestExtension(inc, proposed, reason, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, inc, changes); err != nil {
		return nil, err
	}
	s.record(ctx, actor.label(), audit.ActionExtensionRequested, inc, map[string]interface{}{
		"requested_deadline": proposed.UTC(),
		"reason":             inc.ExtensionReason,
	})
	s.publish(ctx, events.ExtensionRequested, inc, map[string]interface{}{"requested_deadline": proposed.UTC()})

	// The request is stored; a missing oversight contact only warns
	result := &IncidentResult{Incident: inc}
	tenant, err := s.directory.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, repoError(err, "tenant")
	}
	email := strings.TrimSpace(tenant.OversightEmail)
	if email == "" {
		log.Printf("Warning: tenant %d has no oversight contact for extension of incident %s", tenantID, inc.UUID)
		result.warn(&Warning{Code: workflow.CodeNoOversightContact, Message: "no oversight contact configured"})
		return result, nil
	}
	res := s.dispatchTo(ctx, []resolver.Contact{{Name: tenant.OversightName, Email: email}},
		notify.TemplateExtensionRequested, s.templateData(inc, nil))
	result.Notified = res.Delivered
	result.warn(dispatchWarning(notify.TemplateExtensionRequested, res))
	return result, nil
}

// ApproveDeadline sets the action-plan deadline to newDate, or to the pending
// requested date when newDate is nil, and tells the sector managers.
// Re-approving re-applies the date and sends the notice again.
func (s *ExtensionService) ApproveDeadline(ctx context.Context, actor Actor, tenantID uint, id string, newDate *time.Time) (*IncidentResult, error) {
	unlock := s.lockIncident(tenantID, id)
	defer unlock()

	inc, err := s.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	// Keep the old deadline for the audit trail
	previous := inc.EffectiveDeadline()
	changes, target, err := workflow.ApproveDeadline(inc, newDate, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, inc, changes); err != nil {
		return nil, err
	}
	log.Printf("ExtensionService: deadline of incident %s moved from %s to %s",
		inc.UUID, previous.Format(time.RFC3339), target.Format(time.RFC3339))
	s.record(ctx, actor.label(), audit.ActionDeadlineApproved, inc, map[string]interface{}{
		"previous_deadline": previous,
		"deadline":          target,
	})
	s.publish(ctx, events.DeadlineExtended, inc, map[string]interface{}{"deadline": target})

	return s.tellManagers(ctx, actor, inc, notify.TemplateDeadlineApproved), nil
}

// RejectDeadline keeps the deadline, drops the pending request and tells the
// sector managers the extension was denied.
func (s *ExtensionService) RejectDeadline(ctx context.Context, actor Actor, tenantID uint, id string) (*IncidentResult, error) {
	unlock := s.lockIncident(tenantID, id)
	defer unlock()

	inc, err := s.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	// RejectDeadline clears the request, remember it for the audit entry
	requested := inc.RequestedDeadline
	changes, err := workflow.RejectDeadline(inc)
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, inc, changes); err != nil {
		return nil, err
	}
	details := map[string]interface{}{"deadline": inc.EffectiveDeadline()}
	if requested != nil {
		details["requested_deadline"] = *requested
	}
	s.record(ctx, actor.label(), audit.ActionDeadlineRejected, inc, details)
	s.publish(ctx, events.ExtensionRejected, inc, nil)

	return s.tellManagers(ctx, actor, inc, notify.TemplateDeadlineRejected), nil
}

// HandleAction dispatches an e-mailed action link intent
func (s *ExtensionService) HandleAction(ctx context.Context, actor Actor, tenantID uint, action, id, date string) (*IncidentResult, error) {
	switch action {
	case ActionApproveDeadline:
		// An empty date approves the pending requested deadline
		var newDate *time.Time
		if strings.TrimSpace(date) != "" {
			parsed, err := ParseDate(date)
			if err != nil {
				return nil, err
			}
			newDate = &parsed
		}
		return s.ApproveDeadline(ctx, actor, tenantID, id, newDate)
	case ActionRejectDeadline:
		return s.RejectDeadline(ctx, actor, tenantID, id)
	}
	return nil, workflow.Errorf(workflow.CodeInvalidField, "unknown action %q", action)
}

func (s *ExtensionService) tellManagers(ctx context.Context, actor Actor, inc *database.Incident, template string) *IncidentResult {
	result := &IncidentResult{Incident: inc}
	res, err := s.notifySectorManagers(ctx, actor.label(), inc, template, nil)
	if err != nil {
		code := workflow.CodeDispatchFailed
		if errors.Is(err, resolver.ErrNoManagerForSector) {
			code = workflow.CodeNoManagerForSector
		}
		log.Printf("Warning: %s for incident %s not sent: %v", template, inc.UUID, err)
		result.warn(&Warning{Code: code, Message: err.Error()})
		return result
	}
	result.Notified = res.Delivered
	result.warn(dispatchWarning(template, res))
	return result
}

// ParseDate accepts a calendar date (2006-01-02) or an RFC 3339 timestamp.
// Calendar dates mean the end of that day in UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.Add(24*time.Hour - time.Second).UTC(), nil
	}
	return time.Time{}, workflow.Errorf(workflow.CodeInvalidDeadline, "invalid date %q", s)
}
