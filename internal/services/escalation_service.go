package services

import (
	"context"
	"log"
	"strings"

	"github.com/sentinela-saude/sentinela/internal/audit"
	"github.com/sentinela-saude/sentinela/internal/database"
	"github.com/sentinela-saude/sentinela/internal/events"
	"github.com/sentinela-saude/sentinela/internal/notify"
	"github.com/sentinela-saude/sentinela/internal/resolver"
	"github.com/sentinela-saude/sentinela/internal/workflow"
)

// EscalationService raises overdue incidents to the institutional oversight contact
type EscalationService struct {
	*core
}

// Escalate sends the one-time escalation alert. The escalation flag is
// claimed before dispatch, so leadership never receives the same incident
// twice; the claim is released only when nothing was delivered.
func (s *EscalationService) Escalate(ctx context.Context, actor Actor, tenantID uint, id string) (*IncidentResult, error) {
	unlock := s.lockIncident(tenantID, id)
	defer unlock()

	inc, err := s.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := workflow.CanEscalate(inc); err != nil {
		s.metrics.Escalation("rejected")
		return nil, err
	}

	// Look up the oversight contact
	tenant, err := s.directory.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, repoError(err, "tenant")
	}
	email := strings.TrimSpace(tenant.OversightEmail)
	if email == "" {
		s.metrics.Escalation("rejected")
		return nil, workflow.Errorf(workflow.CodeNoOversightContact, "tenant %d has no oversight contact", tenantID)
	}

	// Claim the escalation flag before anything is sent
	won, err := s.incidents.ClaimFlag(ctx, inc, database.FlagEscalationAlert, s.now())
	if err != nil {
		return nil, err
	}
	if !won {
		// Report why the claim was lost: already escalated, concluded, or a plain race
		fresh, loadErr := s.load(ctx, tenantID, id)
		if loadErr != nil {
			return nil, loadErr
		}
		if err := workflow.CanEscalate(fresh); err != nil {
			s.metrics.Escalation("rejected")
			return nil, err
		}
		return nil, workflow.Errorf(workflow.CodeConflict, "incident %s changed during escalation", id)
	}

	res := s.dispatchTo(ctx, []resolver.Contact{{Name: tenant.OversightName, Email: email}},
		notify.TemplateEscalationAlert, s.templateData(inc, nil))
	if !res.Any() {
		// Leadership never got it: free the flag so the escalation can be retried
		if relErr := s.releaseClaim(ctx, inc, database.FlagEscalationAlert); relErr != nil {
			log.Printf("EscalationService: failed to release escalation claim for incident %s: %v", inc.UUID, relErr)
		}
		s.metrics.Escalation("failed")
		return nil, workflow.Wrap(workflow.CodeDispatchFailed, res.Failed[email], "escalation alert was not delivered")
	}

	log.Printf("EscalationService: incident %s escalated to %s", inc.UUID, email)
	s.metrics.Escalation("sent")
	s.record(ctx, actor.label(), audit.ActionEscalated, inc, map[string]interface{}{"recipient": email})
	s.publish(ctx, events.IncidentEscalated, inc, nil)
	return &IncidentResult{Incident: inc, Notified: res.Delivered}, nil
}
