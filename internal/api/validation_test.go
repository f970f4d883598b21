package api

import (
	"strings"
	"testing"
	"time"
)

func ptr[T any](v T) *T { return &v }

func TestValidate_CreateIncident(t *testing.T) {
	valid := CreateIncidentRequest{
		Description:    "Queda do leito",
		EventDate:      time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC),
		NotifiedSector: "UTI",
	}

	tests := []struct {
		name      string
		mutate    func(r *CreateIncidentRequest)
		wantField string
		wantMsg   string
	}{
		{name: "valid", mutate: func(r *CreateIncidentRequest) {}},
		{name: "missing description", mutate: func(r *CreateIncidentRequest) { r.Description = "" }, wantField: "description", wantMsg: "is required"},
		{name: "missing event date", mutate: func(r *CreateIncidentRequest) { r.EventDate = time.Time{} }, wantField: "event_date", wantMsg: "is required"},
		{name: "missing sector", mutate: func(r *CreateIncidentRequest) { r.NotifiedSector = "" }, wantField: "notified_sector", wantMsg: "is required"},
		{name: "long reporter", mutate: func(r *CreateIncidentRequest) { r.ReporterName = strings.Repeat("a", 256) }, wantField: "reporter_name", wantMsg: "must be at most 255 characters"},
		{name: "known kind", mutate: func(r *CreateIncidentRequest) { r.NotificationKind = "NÃO CONFORMIDADE" }},
		{name: "unknown kind", mutate: func(r *CreateIncidentRequest) { r.NotificationKind = "QUASE ERRO" }, wantField: "notification_kind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			errs := Validate(req)
			if tt.wantField == "" {
				if errs != nil {
					t.Fatalf("expected no errors, got %v", errs)
				}
				return
			}
			msg, ok := errs[tt.wantField]
			if !ok {
				t.Fatalf("expected an error on %s, got %v", tt.wantField, errs)
			}
			if tt.wantMsg != "" && msg != tt.wantMsg {
				t.Errorf("%s error = %q, want %q", tt.wantField, msg, tt.wantMsg)
			}
		})
	}
}

func TestValidate_UpdateIncident(t *testing.T) {
	tests := []struct {
		name    string
		req     UpdateIncidentRequest
		wantErr string
	}{
		{name: "empty patch", req: UpdateIncidentRequest{}},
		{name: "risk level", req: UpdateIncidentRequest{RiskLevel: ptr("MODERADO")}},
		{name: "bad risk level", req: UpdateIncidentRequest{RiskLevel: ptr("CRITICO")}, wantErr: "risk_level"},
		{name: "status", req: UpdateIncidentRequest{Status: ptr("Concluído")}},
		{name: "bad status", req: UpdateIncidentRequest{Status: ptr("Fechado")}, wantErr: "status"},
		{name: "bad plan status", req: UpdateIncidentRequest{ActionPlanStatus: ptr("DONE")}, wantErr: "action_plan_status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate(tt.req)
			if tt.wantErr == "" && errs != nil {
				t.Fatalf("expected no errors, got %v", errs)
			}
			if tt.wantErr != "" {
				if _, ok := errs[tt.wantErr]; !ok {
					t.Fatalf("expected an error on %s, got %v", tt.wantErr, errs)
				}
			}
		})
	}
}

func TestValidate_Manager(t *testing.T) {
	errs := Validate(ManagerRequest{Name: "Helena", Email: "not-an-email", Role: "CHEFE", Sectors: []string{"UTI", ""}})
	if errs["email"] != "must be a valid email" {
		t.Errorf("email error = %q", errs["email"])
	}
	if errs["role"] != "must be one of: GESTOR_SETOR ADMIN ALTA_GESTAO" {
		t.Errorf("role error = %q", errs["role"])
	}
	if _, ok := errs["sectors[1]"]; !ok {
		t.Errorf("expected an error on the blank sector, got %v", errs)
	}

	if errs := Validate(ManagerRequest{Name: "Helena", Email: "helena@hospital.test"}); errs != nil {
		t.Errorf("expected a manager without sectors to be valid, got %v", errs)
	}
}

func TestToSnakeCase(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Name", "name"},
		{"NotifiedSector", "notified_sector"},
		{"EventDate", "event_date"},
		{"simple", "simple"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := toSnakeCase(tt.input); got != tt.expected {
			t.Errorf("toSnakeCase(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
