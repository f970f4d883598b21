package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sentinela-saude/sentinela/internal/audit"
	"github.com/sentinela-saude/sentinela/internal/database"
	"github.com/sentinela-saude/sentinela/internal/deadline"
	"github.com/sentinela-saude/sentinela/internal/events"
	"github.com/sentinela-saude/sentinela/internal/notify"
	"github.com/sentinela-saude/sentinela/internal/resolver"
)

// AlertOutcome is what happened to one sweep candidate
type AlertOutcome string

const (
	AlertSent      AlertOutcome = "sent"
	AlertNotDue    AlertOutcome = "not_due"
	AlertSkipped   AlertOutcome = "skipped" // claimed by someone else or no longer eligible
	AlertNoManager AlertOutcome = "no_manager"
	AlertFailed    AlertOutcome = "failed"
)

// DeadlineAlertService sends the first automatic alert once an incident's
// effective deadline has lapsed
type DeadlineAlertService struct {
	*core

	mu          sync.Mutex
	missAudited map[string]struct{}
}

// ListCandidates returns every incident the sweep has to look at
func (s *DeadlineAlertService) ListCandidates(ctx context.Context) ([]database.Incident, error) {
	return s.incidents.ListSweepCandidates(ctx)
}

// AlertIfLapsed is the per-incident critical section of the sweep: re-read,
// check lapse, resolve managers, claim the flag, dispatch. If nobody got the
// alert the claim is released so a later run retries.
func (s *DeadlineAlertService) AlertIfLapsed(ctx context.Context, candidate database.Incident, now time.Time) (AlertOutcome, error) {
	unlock := s.lockIncident(candidate.TenantID, candidate.UUID)
	defer unlock()

	// Re-read under the lock, the candidate list may be stale
	inc, err := s.incidents.GetByID(ctx, candidate.TenantID, candidate.ID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return AlertSkipped, nil
		}
		return AlertFailed, err
	}
	if inc.IsConcluded() || inc.DeadlineAlertSent {
		return AlertSkipped, nil
	}
	if !deadline.Lapsed(inc, now) {
		return AlertNotDue, nil
	}

	// Resolve before claiming so a sector with no manager never flips the flag
	contacts, err := s.resolver.ResolveManagers(ctx, inc.TenantID, inc.NotifiedSector)
	if err != nil {
		if errors.Is(err, resolver.ErrNoManagerForSector) {
			s.auditMissOnce(ctx, inc)
			s.metrics.DeadlineAlert(string(AlertNoManager))
			return AlertNoManager, nil
		}
		return AlertFailed, err
	}

	// Claim the flag, a concurrent sweep or request loses here
	won, err := s.incidents.ClaimFlag(ctx, inc, database.FlagDeadlineAlert, now)
	if err != nil {
		return AlertFailed, err
	}
	if !won {
		return AlertSkipped, nil
	}

	res := s.dispatchTo(ctx, contacts, notify.TemplateDeadlineAlert, s.templateData(inc, nil))
	if !res.Any() {
		// Nobody was alerted: give the flag back so a later sweep retries
		if relErr := s.releaseClaim(ctx, inc, database.FlagDeadlineAlert); relErr != nil {
			log.Printf("DeadlineSweep: failed to release alert claim for incident %s: %v", inc.UUID, relErr)
		}
		s.metrics.DeadlineAlert(string(AlertFailed))

		// Record the failure even when the sweep was cancelled mid-dispatch
		actx, cancel := detached(ctx)
		defer cancel()
		s.record(actx, audit.ActorScheduler, audit.ActionDeadlineAlertFailed, inc, map[string]interface{}{
			"recipients": len(contacts),
		})
		return AlertFailed, nil
	}

	log.Printf("DeadlineSweep: deadline alert for incident %s sent to %d manager(s)", inc.UUID, len(res.Delivered))
	s.metrics.DeadlineAlert(string(AlertSent))
	s.record(ctx, audit.ActorScheduler, audit.ActionDeadlineAlertSent, inc, map[string]interface{}{
		"recipients": res.Delivered,
		"deadline":   inc.EffectiveDeadline(),
	})
	s.publish(ctx, events.DeadlineAlerted, inc, map[string]interface{}{"deadline": inc.EffectiveDeadline()})
	return AlertSent, nil
}

// auditMissOnce records a resolver miss once per incident and deadline, so
// every sweep tick does not repeat it
func (s *DeadlineAlertService) auditMissOnce(ctx context.Context, inc *database.Incident) {
	key := fmt.Sprintf("%d/%d", inc.ID, inc.EffectiveDeadline().Unix())
	s.mu.Lock()
	_, seen := s.missAudited[key]
	if !seen {
		s.missAudited[key] = struct{}{}
	}
	s.mu.Unlock()
	if seen {
		return
	}
	log.Printf("Warning: no manager for sector %q, deadline alert for incident %s withheld", inc.NotifiedSector, inc.UUID)
	s.metrics.ResolverMiss()
	s.record(ctx, audit.ActorScheduler, audit.ActionNoManagerForSector, inc, map[string]interface{}{
		"sector":   inc.NotifiedSector,
		"template": notify.TemplateDeadlineAlert,
	})
}
