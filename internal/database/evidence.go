package database

import "time"

// Evidence references an attachment stored outside this service
type Evidence struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	IncidentID uint      `gorm:"not null;index" json:"incident_id"`
	TenantID   uint      `gorm:"not null;index" json:"tenant_id"`
	Reference  string    `gorm:"type:varchar(1024);not null" json:"reference"` // storage key or URL
	Label      string    `gorm:"type:varchar(255)" json:"label"`
	AttachedBy string    `gorm:"type:varchar(255)" json:"attached_by"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Evidence) TableName() string {
	return "incident_evidence"
}
