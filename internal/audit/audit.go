// Package audit records who did what to which resource.
package audit

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"gorm.io/gorm"

	"github.com/sentinela-saude/sentinela/internal/database"
)

// Actions recorded by the engine
const (
	ActionIncidentCreated     = "incident.created"
	ActionIncidentUpdated     = "incident.updated"
	ActionInvestigation       = "incident.investigation_recorded"
	ActionEvidenceAttached    = "incident.evidence_attached"
	ActionCausalDrafted       = "incident.causal_analysis_drafted"
	ActionActionPlanStarted   = "incident.action_plan_started"
	ActionActionPlanReopened  = "incident.action_plan_reopened"
	ActionIncidentConcluded   = "incident.concluded"
	ActionIncidentClassified  = "incident.classified"
	ActionIncidentForwarded   = "incident.forwarded"
	ActionManagerNotified     = "incident.manager_notified"
	ActionNoManagerForSector  = "incident.no_manager_for_sector"
	ActionExtensionRequested  = "deadline.extension_requested"
	ActionDeadlineApproved    = "deadline.approved"
	ActionDeadlineRejected    = "deadline.rejected"
	ActionDeadlineAlertSent   = "deadline.alert_sent"
	ActionDeadlineAlertFailed = "deadline.alert_failed"
	ActionEscalated           = "incident.escalated"
	ActionSectorCreated       = "sector.created"
	ActionSectorDeleted       = "sector.deleted"
	ActionManagerCreated      = "manager.created"
	ActionManagerUpdated      = "manager.updated"
	ActionManagerDeleted      = "manager.deleted"
)

// Actors that are not users
const (
	ActorSystem    = "system"
	ActorScheduler = "scheduler"
)

// DetailTenantID is the details key carrying the owning tenant
const DetailTenantID = "tenant_id"

const (
	resourceIncidentPrefix = "incident/"
	resourceSectorPrefix   = "sector/"
	resourceManagerPrefix  = "manager/"
)

// Sink receives audit records. Implementations must not fail the caller's
// operation; errors are reported only through logging.
type Sink interface {
	Record(ctx context.Context, actor, action, resource string, details map[string]interface{})
}

// IncidentResource names an incident for the audit trail
func IncidentResource(uuid string) string { return resourceIncidentPrefix + uuid }

// SectorResource names a sector for the audit trail
func SectorResource(id uint) string { return fmt.Sprintf("%s%d", resourceSectorPrefix, id) }

// ManagerResource names a manager for the audit trail
func ManagerResource(id uint) string { return fmt.Sprintf("%s%d", resourceManagerPrefix, id) }

// DBSink writes audit entries to the audit_entries table
type DBSink struct {
	db *gorm.DB
}

// NewDBSink creates a database-backed sink
func NewDBSink(db *gorm.DB) *DBSink {
	return &DBSink{db: db}
}

// Record stores one entry; the tenant is taken from details[tenant_id]
func (s *DBSink) Record(ctx context.Context, actor, action, resource string, details map[string]interface{}) {
	entry := database.AuditEntry{
		TenantID: tenantFrom(details),
		Actor:    actor,
		Action:   action,
		Resource: resource,
		Details:  database.JSONB(details),
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		log.Printf("Audit: failed to record %s on %s: %v", action, resource, err)
	}
}

// LogSink writes entries to the standard logger
type LogSink struct{}

// Record logs the entry with its details in key order
func (LogSink) Record(_ context.Context, actor, action, resource string, details map[string]interface{}) {
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, details[k]))
	}
	log.Printf("Audit: actor=%s action=%s resource=%s %s", actor, action, resource, strings.Join(parts, " "))
}

// Multi fans a record out to several sinks
type Multi []Sink

func (m Multi) Record(ctx context.Context, actor, action, resource string, details map[string]interface{}) {
	for _, s := range m {
		s.Record(ctx, actor, action, resource, details)
	}
}

// Entry is one record kept by Memory
type Entry struct {
	Actor    string
	Action   string
	Resource string
	Details  map[string]interface{}
}

// Memory keeps records in memory
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

func (m *Memory) Record(_ context.Context, actor, action, resource string, details map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, Entry{Actor: actor, Action: action, Resource: resource, Details: details})
}

// Entries returns a copy of the recorded entries
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Count returns how many entries have the given action
func (m *Memory) Count(action string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.Action == action {
			n++
		}
	}
	return n
}

func tenantFrom(details map[string]interface{}) uint {
	switch v := details[DetailTenantID].(type) {
	case uint:
		return v
	case int:
		if v > 0 {
			return uint(v)
		}
	case float64:
		if v > 0 {
			return uint(v)
		}
	}
	return 0
}
