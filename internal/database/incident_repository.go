package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a row does not exist inside the caller's tenant
	ErrNotFound = errors.New("record not found")
	// ErrStaleVersion is returned when a conditional write lost against a concurrent writer
	ErrStaleVersion = errors.New("incident was modified concurrently")
)

// AlertFlag names one of the one-shot alert columns on incidents
type AlertFlag string

const (
	FlagManagerNotified AlertFlag = "manager_notified"
	FlagDeadlineAlert   AlertFlag = "deadline_alert_sent"
	FlagEscalationAlert AlertFlag = "escalation_alert_sent"
)

func (f AlertFlag) timestampColumn() string {
	return string(f) + "_at"
}

// ListFilter narrows ListIncidents results
type ListFilter struct {
	Status         IncidentStatus
	NotifiedSector string
	RiskLevel      RiskLevel
	Offset         int
	Limit          int
}

// IncidentRepository persists incidents and their evidence. Every query is
// scoped by tenant except the sweep scan, which reads all tenants and hands
// each row back with its own TenantID.
type IncidentRepository struct {
	db *gorm.DB
}

// NewIncidentRepository creates a repository over db
func NewIncidentRepository(db *gorm.DB) *IncidentRepository {
	return &IncidentRepository{db: db}
}

// Create inserts a new incident
func (r *IncidentRepository) Create(ctx context.Context, inc *Incident) error {
	if err := r.db.WithContext(ctx).Create(inc).Error; err != nil {
		return fmt.Errorf("failed to create incident: %w", err)
	}
	return nil
}

// Get loads an incident by UUID inside a tenant
func (r *IncidentRepository) Get(ctx context.Context, tenantID uint, uuid string) (*Incident, error) {
	var inc Incident
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND uuid = ?", tenantID, uuid).
		First(&inc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inc, nil
}

// GetWithEvidence loads an incident and its evidence references
func (r *IncidentRepository) GetWithEvidence(ctx context.Context, tenantID uint, uuid string) (*Incident, error) {
	var inc Incident
	err := r.db.WithContext(ctx).
		Preload("Evidence", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
		Where("tenant_id = ? AND uuid = ?", tenantID, uuid).
		First(&inc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inc, nil
}

// GetByID loads an incident by primary key inside a tenant
func (r *IncidentRepository) GetByID(ctx context.Context, tenantID, id uint) (*Incident, error) {
	var inc Incident
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&inc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inc, nil
}

// List returns a page of a tenant's incidents, newest first, and the total count
func (r *IncidentRepository) List(ctx context.Context, tenantID uint, f ListFilter) ([]Incident, int64, error) {
	query := r.db.WithContext(ctx).Model(&Incident{}).Where("tenant_id = ?", tenantID)
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.NotifiedSector != "" {
		query = query.Where("notified_sector = ?", f.NotifiedSector)
	}
	if f.RiskLevel != "" {
		query = query.Where("risk_level = ?", f.RiskLevel)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var incidents []Incident
	page := query.Order("created_at desc, id desc")
	if f.Limit > 0 {
		page = page.Limit(f.Limit)
	}
	if f.Offset > 0 {
		page = page.Offset(f.Offset)
	}
	if err := page.Find(&incidents).Error; err != nil {
		return nil, 0, err
	}
	return incidents, total, nil
}

// Update applies changes to inc only if nobody else wrote the row since inc
// was read. On success the version is bumped and inc is reloaded.
func (r *IncidentRepository) Update(ctx context.Context, inc *Incident, changes map[string]interface{}) error {
	if len(changes) == 0 {
		return nil
	}
	values := make(map[string]interface{}, len(changes)+2)
	for k, v := range changes {
		values[k] = v
	}
	values["version"] = inc.Version + 1
	values["updated_at"] = time.Now().UTC()

	result := r.db.WithContext(ctx).Model(&Incident{}).
		Where("id = ? AND tenant_id = ? AND version = ?", inc.ID, inc.TenantID, inc.Version).
		Updates(values)
	if result.Error != nil {
		return fmt.Errorf("failed to update incident: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return r.missOrStale(ctx, inc)
	}
	return r.reload(ctx, inc)
}

// ClaimFlag flips flag from false to true for the exact version of inc that
// the caller inspected. It reports false when the flag was already set or the
// row changed in between; only one concurrent caller can ever win.
// Deadline and escalation claims also require a non-concluded incident, and
// escalation additionally requires the deadline alert to have been sent.
func (r *IncidentRepository) ClaimFlag(ctx context.Context, inc *Incident, flag AlertFlag, at time.Time) (bool, error) {
	query := r.db.WithContext(ctx).Model(&Incident{}).
		Where("id = ? AND tenant_id = ? AND version = ?", inc.ID, inc.TenantID, inc.Version).
		Where(string(flag)+" = ?", false)
	switch flag {
	case FlagDeadlineAlert:
		query = query.Where("status <> ?", IncidentStatusConcluded)
	case FlagEscalationAlert:
		query = query.Where("status <> ? AND deadline_alert_sent = ?", IncidentStatusConcluded, true)
	}

	result := query.Updates(map[string]interface{}{
		string(flag):           true,
		flag.timestampColumn(): at.UTC(),
		"version":              inc.Version + 1,
		"updated_at":           time.Now().UTC(),
	})
	if result.Error != nil {
		return false, fmt.Errorf("failed to claim %s: %w", flag, result.Error)
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	return true, r.reload(ctx, inc)
}

// ReleaseFlag undoes a claim made by this caller, used when no recipient
// received the alert so a later attempt may retry.
func (r *IncidentRepository) ReleaseFlag(ctx context.Context, inc *Incident, flag AlertFlag) (bool, error) {
	result := r.db.WithContext(ctx).Model(&Incident{}).
		Where("id = ? AND tenant_id = ? AND version = ?", inc.ID, inc.TenantID, inc.Version).
		Where(string(flag)+" = ?", true).
		Updates(map[string]interface{}{
			string(flag):           false,
			flag.timestampColumn(): nil,
			"version":              inc.Version + 1,
			"updated_at":           time.Now().UTC(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to release %s: %w", flag, result.Error)
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	return true, r.reload(ctx, inc)
}

// ListSweepCandidates returns non-concluded incidents of every tenant whose
// deadline alert has not been sent. Lapse is decided by the caller's clock.
func (r *IncidentRepository) ListSweepCandidates(ctx context.Context) ([]Incident, error) {
	var incidents []Incident
	err := r.db.WithContext(ctx).
		Where("status <> ? AND deadline_alert_sent = ?", IncidentStatusConcluded, false).
		Order("id asc").
		Find(&incidents).Error
	if err != nil {
		return nil, err
	}
	return incidents, nil
}

// AddEvidence stores an evidence reference for an incident
func (r *IncidentRepository) AddEvidence(ctx context.Context, ev *Evidence) error {
	if err := r.db.WithContext(ctx).Create(ev).Error; err != nil {
		return fmt.Errorf("failed to attach evidence: %w", err)
	}
	return nil
}

// CountEvidence returns how many evidence references an incident has
func (r *IncidentRepository) CountEvidence(ctx context.Context, tenantID, incidentID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Evidence{}).
		Where("tenant_id = ? AND incident_id = ?", tenantID, incidentID).
		Count(&count).Error
	return count, err
}

// ListEvidence returns an incident's evidence references in attach order
func (r *IncidentRepository) ListEvidence(ctx context.Context, tenantID, incidentID uint) ([]Evidence, error) {
	var evidence []Evidence
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND incident_id = ?", tenantID, incidentID).
		Order("id asc").
		Find(&evidence).Error
	return evidence, err
}

func (r *IncidentRepository) reload(ctx context.Context, inc *Incident) error {
	fresh, err := r.GetByID(ctx, inc.TenantID, inc.ID)
	if err != nil {
		return err
	}
	evidence := inc.Evidence
	*inc = *fresh
	inc.Evidence = evidence
	return nil
}

func (r *IncidentRepository) missOrStale(ctx context.Context, inc *Incident) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&Incident{}).
		Where("id = ? AND tenant_id = ?", inc.ID, inc.TenantID).
		Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrStaleVersion
}
