package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, j)
}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Tenant is the isolation boundary: a hospital or organization owning its own
// incidents, sectors and managers.
type Tenant struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Name           string    `gorm:"uniqueIndex;size:255;not null" json:"name"`
	OversightName  string    `gorm:"size:255" json:"oversight_name"`
	OversightEmail string    `gorm:"size:255" json:"oversight_email"` // institutional escalation contact
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (Tenant) TableName() string {
	return "tenants"
}

// Sector is an organizational unit, unique by name within a tenant
type Sector struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TenantID  uint      `gorm:"not null;uniqueIndex:idx_sectors_tenant_name" json:"tenant_id"`
	Name      string    `gorm:"size:255;not null;uniqueIndex:idx_sectors_tenant_name" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func (Sector) TableName() string {
	return "sectors"
}

// ManagerRole is the role a manager holds inside a tenant
type ManagerRole string

const (
	RoleSectorManager ManagerRole = "GESTOR_SETOR"
	RoleAdmin         ManagerRole = "ADMIN"
	RoleLeadership    ManagerRole = "ALTA_GESTAO"
)

// IsValid reports whether r is one of the known roles
func (r ManagerRole) IsValid() bool {
	switch r {
	case RoleSectorManager, RoleAdmin, RoleLeadership:
		return true
	}
	return false
}

// Manager is a user accountable for incidents notified to one or more sectors
type Manager struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	TenantID  uint        `gorm:"not null;uniqueIndex:idx_managers_tenant_email" json:"tenant_id"`
	Name      string      `gorm:"size:255;not null" json:"name"`
	Email     string      `gorm:"size:255;not null;uniqueIndex:idx_managers_tenant_email" json:"email"`
	Role      ManagerRole `gorm:"type:varchar(32);not null;default:'GESTOR_SETOR'" json:"role"`
	Sectors   SectorSet   `gorm:"type:text" json:"sectors"` // legacy rows may hold "UTI,ER"
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func (Manager) TableName() string {
	return "managers"
}

// RiskLevel is the severity classification driving the response deadline
type RiskLevel string

const (
	RiskMild     RiskLevel = "LEVE"
	RiskModerate RiskLevel = "MODERADO"
	RiskSevere   RiskLevel = "GRAVE"
	RiskNA       RiskLevel = "NA"
)

// ParseRiskLevel maps free text to a known level, NA when unrecognized
func ParseRiskLevel(s string) RiskLevel {
	switch RiskLevel(s) {
	case RiskMild, RiskModerate, RiskSevere:
		return RiskLevel(s)
	}
	return RiskNA
}

// NotificationKind distinguishes adverse events from non-conformities
type NotificationKind string

const (
	KindAdverseEvent  NotificationKind = "EVENTO ADVERSO"
	KindNonConformity NotificationKind = "NÃO CONFORMIDADE"
)

// IncidentStatus represents the status of an incident
type IncidentStatus string

const (
	IncidentStatusOpen      IncidentStatus = "Aberto"
	IncidentStatusAnalysis  IncidentStatus = "Em Análise"
	IncidentStatusConcluded IncidentStatus = "Concluído"
)

// ActionPlanStatus is the execution sub-state of the corrective action plan
type ActionPlanStatus string

const (
	ActionPlanNotStarted ActionPlanStatus = "NOT_STARTED"
	ActionPlanInProgress ActionPlanStatus = "IN_PROGRESS"
	ActionPlanCompleted  ActionPlanStatus = "COMPLETED"
)

// AwaitingAnalysisEventType is stored while the classifier has not answered
const AwaitingAnalysisEventType = "pending"

// Incident is a reported adverse event or non-conformity.
// Rows are never deleted; the terminal state is IncidentStatusConcluded.
type Incident struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	UUID     string `gorm:"uniqueIndex;not null" json:"uuid"`
	TenantID uint   `gorm:"not null;index" json:"tenant_id"`

	// Reporting metadata
	ReporterName    string    `gorm:"size:255" json:"reporter_name"`
	PatientName     string    `gorm:"size:255" json:"patient_name"`
	Description     string    `gorm:"type:text;not null" json:"description"`
	EventDate       time.Time `gorm:"not null" json:"event_date"`
	ReportingSector string    `gorm:"size:255;index" json:"reporting_sector"`
	NotifiedSector  string    `gorm:"size:255;index" json:"notified_sector"`

	// Classification
	RiskLevel             RiskLevel        `gorm:"type:varchar(16);not null;default:'NA'" json:"risk_level"`
	EventType             string           `gorm:"size:255" json:"event_type"`
	NotificationKind      NotificationKind `gorm:"type:varchar(32)" json:"notification_kind"`
	Recommendation        string           `gorm:"type:text" json:"recommendation"`
	ClassificationPending bool             `gorm:"default:false" json:"classification_pending"`

	// Lifecycle
	Status              IncidentStatus   `gorm:"type:varchar(32);not null;default:'Aberto';index" json:"status"`
	DueDate             time.Time        `gorm:"not null" json:"due_date"`
	ActionPlanStatus    ActionPlanStatus `gorm:"type:varchar(32);not null;default:'NOT_STARTED'" json:"action_plan_status"`
	ActionPlanStartDate *time.Time       `json:"action_plan_start_date,omitempty"`
	ActionPlanDeadline  *time.Time       `json:"action_plan_deadline,omitempty"`
	RequestedDeadline   *time.Time       `json:"requested_deadline,omitempty"`
	ExtensionReason     string           `gorm:"type:text" json:"extension_reason,omitempty"`
	Investigation       JSONB            `gorm:"type:jsonb" json:"investigation,omitempty"`
	InvestigatedAt      *time.Time       `json:"investigated_at,omitempty"` // set once an investigation record exists
	CausalAnalysis      string           `gorm:"type:text" json:"causal_analysis"`
	ActionPlan          string           `gorm:"type:text" json:"action_plan"`
	ConcludedAt         *time.Time       `json:"concluded_at,omitempty"`

	// One-shot alert flags, only ever flipped through compare-and-set updates
	ManagerNotified       bool       `gorm:"default:false" json:"manager_notified"`
	ManagerNotifiedAt     *time.Time `json:"manager_notified_at,omitempty"`
	DeadlineAlertSent     bool       `gorm:"default:false;index" json:"deadline_alert_sent"`
	DeadlineAlertSentAt   *time.Time `json:"deadline_alert_sent_at,omitempty"`
	EscalationAlertSent   bool       `gorm:"default:false" json:"escalation_alert_sent"`
	EscalationAlertSentAt *time.Time `json:"escalation_alert_sent_at,omitempty"`

	Version   int       `gorm:"not null;default:1" json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Evidence []Evidence `gorm:"foreignKey:IncidentID" json:"evidence,omitempty"`
}

// BeforeCreate hook to assign the initial version and normalize dates to UTC
func (i *Incident) BeforeCreate(tx *gorm.DB) error {
	if i.Version == 0 {
		i.Version = 1
	}
	i.EventDate = i.EventDate.UTC()
	i.DueDate = i.DueDate.UTC()
	return nil
}

func (Incident) TableName() string {
	return "incidents"
}

// HasInvestigation reports whether an investigation record was stored
func (i *Incident) HasInvestigation() bool {
	return i.InvestigatedAt != nil
}

// IsConcluded reports whether the incident reached its terminal status
func (i *Incident) IsConcluded() bool {
	return i.Status == IncidentStatusConcluded
}

// EffectiveDeadline is the action-plan deadline when one was set, otherwise the due date
func (i *Incident) EffectiveDeadline() time.Time {
	if i.ActionPlanDeadline != nil {
		return *i.ActionPlanDeadline
	}
	return i.DueDate
}

// AuditEntry is one row of the audit trail
type AuditEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TenantID  uint      `gorm:"index" json:"tenant_id"`
	Actor     string    `gorm:"size:255;not null" json:"actor"`
	Action    string    `gorm:"size:64;not null;index" json:"action"`
	Resource  string    `gorm:"size:255;not null;index" json:"resource"`
	Details   JSONB     `gorm:"type:jsonb" json:"details"`
	CreatedAt time.Time `json:"created_at"`
}

func (AuditEntry) TableName() string {
	return "audit_entries"
}
