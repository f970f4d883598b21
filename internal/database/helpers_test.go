package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open("sqlite::memory:", logger.Silent)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

func testCtx() context.Context {
	return context.Background()
}

func createTestIncident(t *testing.T, repo *IncidentRepository, tenantID uint, sector string) *Incident {
	t.Helper()
	eventDate := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	inc := &Incident{
		UUID:             uuid.New().String(),
		TenantID:         tenantID,
		Description:      "patient fall near bed 4",
		EventDate:        eventDate,
		ReportingSector:  "Enfermagem",
		NotifiedSector:   sector,
		RiskLevel:        RiskSevere,
		NotificationKind: KindAdverseEvent,
		Status:           IncidentStatusOpen,
		ActionPlanStatus: ActionPlanNotStarted,
		DueDate:          eventDate.AddDate(0, 0, 1),
	}
	if err := repo.Create(testCtx(), inc); err != nil {
		t.Fatalf("failed to create incident: %v", err)
	}
	return inc
}
