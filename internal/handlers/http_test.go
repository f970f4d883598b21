package handlers

import (
	"net/http"
	"testing"

	"github.com/sentinela-saude/sentinela/internal/testhelpers"
)

func TestHTTPHandler_Health(t *testing.T) {
	s := newServer(t)

	var body map[string]string
	s.do(t, http.MethodGet, "/health", "", nil).AssertStatus(http.StatusOK).DecodeJSON(&body)
	if body["status"] != "ok" || body["version"] != Version {
		t.Errorf("unexpected health body %v", body)
	}

	s.do(t, http.MethodPost, "/health", "", nil).AssertStatus(http.StatusMethodNotAllowed)
}

func TestHTTPHandler_HealthDegraded(t *testing.T) {
	s := newServer(t)
	sqlDB, err := s.db.DB()
	if err != nil {
		t.Fatalf("DB: %v", err)
	}
	sqlDB.Close()

	var body map[string]string
	s.do(t, http.MethodGet, "/health", "", nil).AssertStatus(http.StatusServiceUnavailable).DecodeJSON(&body)
	if body["status"] != "degraded" {
		t.Errorf("status = %q, want degraded", body["status"])
	}
}

func TestHTTPHandler_HealthWithoutDB(t *testing.T) {
	mux := http.NewServeMux()
	NewHTTPHandler(nil, nil).SetupRoutes(mux)

	testhelpers.NewHTTPTestContext(t, http.MethodGet, "/health", nil).
		Execute(mux).
		AssertStatus(http.StatusOK)
	testhelpers.NewHTTPTestContext(t, http.MethodGet, "/metrics", nil).
		Execute(mux).
		AssertStatus(http.StatusNotFound)
}

func TestHTTPHandler_Metrics(t *testing.T) {
	s := newServer(t)
	createIncident(t, s)

	s.do(t, http.MethodGet, "/metrics", "", nil).
		AssertStatus(http.StatusOK).
		AssertBodyContains("sentinela_sweep_duration_seconds").
		AssertBodyContains("sentinela_notifications_total")
}

func TestChain_SetsRequestIDAndCORS(t *testing.T) {
	s := newServer(t)

	ctx := s.do(t, http.MethodGet, "/health", "", nil).AssertStatus(http.StatusOK)
	if ctx.Recorder.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id on the response")
	}

	preflight := testhelpers.NewHTTPTestContext(t, http.MethodOptions, "/api/incidents", nil).
		WithHeader("Origin", "https://painel.hospital.test").
		WithHeader("Access-Control-Request-Method", http.MethodPost).
		Execute(s.handler)
	preflight.AssertStatus(http.StatusNoContent)
}

func TestHTTPHandler_Docs(t *testing.T) {
	mux := http.NewServeMux()
	NewHTTPHandler(nil, nil).SetupRoutes(mux)

	tests := []struct {
		path        string
		contentType string
		contains    string
	}{
		{"/api/openapi.yaml", "application/yaml", "Sentinela API"},
		{"/api/docs", "text/html; charset=utf-8", "/api/openapi.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			ctx := testhelpers.NewHTTPTestContext(t, http.MethodGet, tt.path, nil).
				Execute(mux).
				AssertStatus(http.StatusOK).
				AssertBodyContains(tt.contains)
			if got := ctx.Recorder.Header().Get("Content-Type"); got != tt.contentType {
				t.Errorf("Content-Type = %q, want %q", got, tt.contentType)
			}
		})
	}
}
