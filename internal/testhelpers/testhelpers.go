// Package testhelpers provides reusable testing utilities for Sentinela.
//
// This package contains:
// - HTTP test helpers (requests, recorders, JSON decoding)
// - An in-memory database with the schema migrated
// - Recording fakes (dispatcher, classifier, clock)
// - Data builders and assertion helpers
package testhelpers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sentinela-saude/sentinela/internal/database"
)

// ========================================
// Database Helpers
// ========================================

// SetupTestDB opens a fresh in-memory sqlite database with every table migrated
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open("sqlite::memory:", logger.Silent)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// SeedTenant creates a tenant with an oversight contact
func SeedTenant(t *testing.T, db *gorm.DB, name, oversightEmail string) *database.Tenant {
	t.Helper()
	tenant, err := database.EnsureTenant(db, name, "Diretoria "+name, oversightEmail)
	if err != nil {
		t.Fatalf("failed to seed tenant %s: %v", name, err)
	}
	return tenant
}

// SeedManager stores a manager built by the caller
func SeedManager(t *testing.T, db *gorm.DB, m database.Manager) *database.Manager {
	t.Helper()
	if err := database.NewDirectoryRepository(db).CreateManager(context.Background(), &m); err != nil {
		t.Fatalf("failed to seed manager %s: %v", m.Email, err)
	}
	return &m
}

// SeedIncident stores an incident built by the caller
func SeedIncident(t *testing.T, db *gorm.DB, inc database.Incident) *database.Incident {
	t.Helper()
	if err := database.NewIncidentRepository(db).Create(context.Background(), &inc); err != nil {
		t.Fatalf("failed to seed incident: %v", err)
	}
	return &inc
}

// ========================================
// HTTP Test Helpers
// ========================================

// HTTPTestContext holds components for HTTP handler testing
type HTTPTestContext struct {
	T        *testing.T
	Recorder *httptest.ResponseRecorder
	Request  *http.Request
}

// NewHTTPTestContext creates a new HTTP test context
func NewHTTPTestContext(t *testing.T, method, path string, body io.Reader) *HTTPTestContext {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	return &HTTPTestContext{
		T:        t,
		Recorder: httptest.NewRecorder(),
		Request:  req,
	}
}

// WithHeader adds a header to the request
func (ctx *HTTPTestContext) WithHeader(key, value string) *HTTPTestContext {
	ctx.Request.Header.Set(key, value)
	return ctx
}

// WithJSONBody sets JSON body on the request
func (ctx *HTTPTestContext) WithJSONBody(v interface{}) *HTTPTestContext {
	ctx.T.Helper()
	body, err := json.Marshal(v)
	if err != nil {
		ctx.T.Fatalf("failed to marshal JSON body: %v", err)
	}
	headers := ctx.Request.Header.Clone()
	ctx.Request = httptest.NewRequest(ctx.Request.Method, ctx.Request.URL.String(), bytes.NewReader(body))
	ctx.Request.Header = headers
	ctx.Request.Header.Set("Content-Type", "application/json")
	return ctx
}

// WithBearerToken adds Authorization Bearer header
func (ctx *HTTPTestContext) WithBearerToken(token string) *HTTPTestContext {
	return ctx.WithHeader("Authorization", "Bearer "+token)
}

// Execute runs the handler and returns the response
func (ctx *HTTPTestContext) Execute(handler http.Handler) *HTTPTestContext {
	handler.ServeHTTP(ctx.Recorder, ctx.Request)
	return ctx
}

// AssertStatus checks the response status code
func (ctx *HTTPTestContext) AssertStatus(expected int) *HTTPTestContext {
	ctx.T.Helper()
	if ctx.Recorder.Code != expected {
		ctx.T.Errorf("expected status %d, got %d. Body: %s", expected, ctx.Recorder.Code, ctx.Recorder.Body.String())
	}
	return ctx
}

// AssertBodyContains checks if response body contains substring
func (ctx *HTTPTestContext) AssertBodyContains(substr string) *HTTPTestContext {
	ctx.T.Helper()
	body := ctx.Recorder.Body.String()
	if !strings.Contains(body, substr) {
		ctx.T.Errorf("expected body to contain %q, got: %s", substr, body)
	}
	return ctx
}

// DecodeJSON decodes response body as JSON
func (ctx *HTTPTestContext) DecodeJSON(v interface{}) *HTTPTestContext {
	ctx.T.Helper()
	if err := json.NewDecoder(ctx.Recorder.Body).Decode(v); err != nil {
		ctx.T.Fatalf("failed to decode JSON response: %v", err)
	}
	return ctx
}

// ========================================
// Assertion Helpers
// ========================================

// AssertEqual checks equality with a helpful error message
func AssertEqual(t *testing.T, expected, actual interface{}, msg string) {
	t.Helper()
	if expected != actual {
		t.Errorf("%s: expected %v, got %v", msg, expected, actual)
	}
}

// AssertNoError checks that no error occurred
func AssertNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: unexpected error: %v", msg, err)
	}
}

// AssertSameDay checks that two instants fall on the same UTC calendar day
func AssertSameDay(t *testing.T, expected, actual time.Time, msg string) {
	t.Helper()
	ey, em, ed := expected.UTC().Date()
	ay, am, ad := actual.UTC().Date()
	if ey != ay || em != am || ed != ad {
		t.Errorf("%s: expected %s, got %s", msg, expected.UTC().Format("2006-01-02"), actual.UTC().Format("2006-01-02"))
	}
}

// ========================================
// Timing Helpers
// ========================================

// MustCompleteWithin fails the test if the function takes longer than the timeout
func MustCompleteWithin(t *testing.T, timeout time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-time.After(timeout):
		t.Fatalf("function did not complete within %v", timeout)
	}
}
