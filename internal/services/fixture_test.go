package services

import (
	"context"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/sentinela-saude/sentinela/internal/audit"
	"github.com/sentinela-saude/sentinela/internal/database"
	"github.com/sentinela-saude/sentinela/internal/events"
	"github.com/sentinela-saude/sentinela/internal/notify"
	"github.com/sentinela-saude/sentinela/internal/testhelpers"
	"github.com/sentinela-saude/sentinela/internal/workflow"
)

var (
	testCtx   = context.Background()
	startTime = time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)
	staff     = Actor{Name: "enf.carla", Role: database.RoleSectorManager}
	admin     = Actor{Name: "admin", Role: database.RoleAdmin}
)

type fixture struct {
	db         *gorm.DB
	svc        *Services
	dispatcher *testhelpers.RecordingDispatcher
	classifier *testhelpers.StubClassifier
	audit      *audit.Memory
	events     *events.Recorder
	clock      *testhelpers.ManualClock
	tenant     *database.Tenant
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testhelpers.SetupTestDB(t)
	f := &fixture{
		db:         db,
		dispatcher: testhelpers.NewRecordingDispatcher(),
		classifier: testhelpers.NewStubClassifier(),
		audit:      &audit.Memory{},
		events:     &events.Recorder{},
		clock:      testhelpers.NewManualClock(startTime),
		tenant:     testhelpers.SeedTenant(t, db, "Hospital Central", "diretoria@hospital.test"),
	}
	f.svc = f.servicesWith(f.dispatcher)
	return f
}

// servicesWith builds services over the fixture state with another dispatcher
func (f *fixture) servicesWith(d notify.Dispatcher) *Services {
	return New(Deps{
		DB:         f.db,
		Dispatcher: d,
		Classifier: f.classifier,
		Audit:      f.audit,
		Events:     f.events,
		Clock:      f.clock.Now,
		PublicURL:  "https://sentinela.test/",
	})
}

// cancellingDispatcher cancels the caller's context on the first send and
// fails, like a client that disconnects while the mail relay is slow.
type cancellingDispatcher struct {
	cancel context.CancelFunc
}

func (d *cancellingDispatcher) Send(ctx context.Context, to, template string, data map[string]interface{}) (notify.Outcome, error) {
	d.cancel()
	return notify.Outcome{}, ctx.Err()
}

// cancelOnSend returns a context and services whose dispatcher cancels it
func (f *fixture) cancelOnSend() (context.Context, *Services) {
	ctx, cancel := context.WithCancel(testCtx)
	return ctx, f.servicesWith(&cancellingDispatcher{cancel: cancel})
}

// manager seeds a manager of the fixture tenant accountable for sectors
func (f *fixture) manager(t *testing.T, email string, sectors ...string) *database.Manager {
	t.Helper()
	return testhelpers.SeedManager(t, f.db, testhelpers.NewManagerBuilder().
		WithTenant(f.tenant.ID).
		WithName(email).
		WithEmail(email).
		WithSectors(sectors...).
		Build())
}

// incident seeds an incident of the fixture tenant
func (f *fixture) incident(t *testing.T, b *testhelpers.IncidentBuilder) *database.Incident {
	t.Helper()
	return testhelpers.SeedIncident(t, f.db, b.WithTenant(f.tenant.ID).Build())
}

func (f *fixture) reload(t *testing.T, id string) *database.Incident {
	t.Helper()
	inc, err := database.NewIncidentRepository(f.db).Get(testCtx, f.tenant.ID, id)
	if err != nil {
		t.Fatalf("failed to reload incident %s: %v", id, err)
	}
	return inc
}

func (f *fixture) attachEvidence(t *testing.T, inc *database.Incident) {
	t.Helper()
	if _, err := f.svc.Incidents.AttachEvidence(testCtx, staff, f.tenant.ID, inc.UUID, "s3://evidencias/foto.jpg", "foto"); err != nil {
		t.Fatalf("AttachEvidence: %v", err)
	}
}

func report(sector string) workflow.Report {
	return workflow.Report{
		ReporterName:    "Enf. Carla",
		Description:     "Queda do paciente durante transferência do leito",
		EventDate:       testhelpers.EventDate,
		ReportingSector: "Enfermaria",
		NotifiedSector:  sector,
	}
}

func assertCode(t *testing.T, err error, code workflow.Code) {
	t.Helper()
	if !workflow.IsCode(err, code) {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

func hasWarning(warnings []Warning, code workflow.Code) bool {
	for _, w := range warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}

const testWait = 2 * time.Second
