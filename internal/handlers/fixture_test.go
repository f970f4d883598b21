package handlers

import (
	"net/http"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/sentinela-saude/sentinela/internal/audit"
	"github.com/sentinela-saude/sentinela/internal/database"
	"github.com/sentinela-saude/sentinela/internal/events"
	"github.com/sentinela-saude/sentinela/internal/jobs"
	"github.com/sentinela-saude/sentinela/internal/metrics"
	"github.com/sentinela-saude/sentinela/internal/middleware"
	"github.com/sentinela-saude/sentinela/internal/services"
	"github.com/sentinela-saude/sentinela/internal/testhelpers"
)

const adminPassword = "s3nha-forte"

type server struct {
	handler    http.Handler
	db         *gorm.DB
	tenant     *database.Tenant
	other      *database.Tenant
	dispatcher *testhelpers.RecordingDispatcher
	classifier *testhelpers.StubClassifier
	events     *events.Recorder
	clock      *testhelpers.ManualClock
	jwt        *middleware.JWTAuthMiddleware
	metrics    *metrics.Metrics
}

// newServer assembles the full router over sqlite, the same way main does
func newServer(t *testing.T) *server {
	t.Helper()
	db := testhelpers.SetupTestDB(t)
	s := &server{
		db:         db,
		tenant:     testhelpers.SeedTenant(t, db, "Hospital Central", "diretoria@hospital.test"),
		other:      testhelpers.SeedTenant(t, db, "Hospital Norte", "diretoria@norte.test"),
		dispatcher: testhelpers.NewRecordingDispatcher(),
		classifier: testhelpers.NewStubClassifier(),
		events:     &events.Recorder{},
		clock:      testhelpers.NewManualClock(time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)),
		metrics:    metrics.New(),
	}
	testhelpers.SeedManager(t, db, testhelpers.NewManagerBuilder().WithTenant(s.tenant.ID).Build())

	svc := services.New(services.Deps{
		DB:         db,
		Dispatcher: s.dispatcher,
		Classifier: s.classifier,
		Audit:      &audit.Memory{},
		Events:     s.events,
		Metrics:    s.metrics,
		Clock:      s.clock.Now,
		PublicURL:  "https://sentinela.test",
	})
	sweep := jobs.NewDeadlineSweep(svc.Alerts, "", s.clock.Now, s.metrics)

	hash, err := middleware.HashPassword(adminPassword)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	s.jwt = middleware.NewJWTAuthMiddleware(&middleware.JWTAuthConfig{
		Enabled:           true,
		AdminUsername:     "admin",
		AdminPasswordHash: hash,
		AdminTenantID:     s.tenant.ID,
		JWTSecret:         "handlers-test-secret",
		JWTExpiryHours:    1,
		SkipPaths:         PublicPaths,
	})
	authz, err := middleware.NewAuthorizer()
	if err != nil {
		t.Fatalf("NewAuthorizer: %v", err)
	}

	mux := http.NewServeMux()
	NewHTTPHandler(db, s.metrics.Handler()).SetupRoutes(mux)
	NewAuthHandler(s.jwt).SetupRoutes(mux)
	NewAPIHandler(svc, sweep, authz).SetupRoutes(mux)
	s.handler = Chain(mux, s.jwt, middleware.NewCORSMiddleware())
	return s
}

// token signs a token for role on tenant
func (s *server) token(t *testing.T, tenantID uint, role database.ManagerRole) string {
	t.Helper()
	tok, err := s.jwt.GenerateToken("user-"+string(role), tenantID, role)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return tok
}

func (s *server) manager(t *testing.T) string {
	return s.token(t, s.tenant.ID, database.RoleSectorManager)
}

func (s *server) leadership(t *testing.T) string {
	return s.token(t, s.tenant.ID, database.RoleLeadership)
}

func (s *server) admin(t *testing.T) string {
	return s.token(t, s.tenant.ID, database.RoleAdmin)
}

// do runs one request through the router
func (s *server) do(t *testing.T, method, path, token string, body interface{}) *testhelpers.HTTPTestContext {
	t.Helper()
	ctx := testhelpers.NewHTTPTestContext(t, method, path, nil)
	if body != nil {
		ctx = ctx.WithJSONBody(body)
	}
	if token != "" {
		ctx = ctx.WithBearerToken(token)
	}
	return ctx.Execute(s.handler)
}

// seed stores an incident of the main tenant
func (s *server) seed(t *testing.T, b *testhelpers.IncidentBuilder) *database.Incident {
	t.Helper()
	return testhelpers.SeedIncident(t, s.db, b.WithTenant(s.tenant.ID).Build())
}

type errorBody struct {
	Error     string            `json:"error"`
	Code      string            `json:"code"`
	Retryable bool              `json:"retryable"`
	Details   map[string]string `json:"details"`
}

func assertErrorCode(t *testing.T, ctx *testhelpers.HTTPTestContext, status int, code string) {
	t.Helper()
	ctx.AssertStatus(status)
	var body errorBody
	ctx.DecodeJSON(&body)
	if body.Code != code {
		t.Errorf("code = %q, want %q (error %q)", body.Code, code, body.Error)
	}
}
