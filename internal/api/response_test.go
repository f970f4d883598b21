package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestRespondJSON(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		data     interface{}
		wantBody string
	}{
		{"object", http.StatusOK, map[string]string{"status": "Aberto"}, "{\"status\":\"Aberto\"}\n"},
		{"created", http.StatusCreated, []int{1, 2}, "[1,2]\n"},
		{"nil body", http.StatusAccepted, nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			RespondJSON(w, tt.status, tt.data)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			if w.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestRespondErrorWithCode(t *testing.T) {
	w := httptest.NewRecorder()
	RespondErrorWithCode(w, http.StatusConflict, "DUPLICATE", "sector UTI already exists")

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
	resp := decodeError(t, w)
	if resp.Error != "sector UTI already exists" || resp.Code != "DUPLICATE" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestRespondValidationError(t *testing.T) {
	w := httptest.NewRecorder()
	RespondValidationError(w, map[string]string{"description": "is required"})

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	resp := decodeError(t, w)
	if resp.Code != "INVALID_FIELD" {
		t.Errorf("code = %q, want INVALID_FIELD", resp.Code)
	}
	if resp.Details["description"] != "is required" {
		t.Errorf("details = %v", resp.Details)
	}
}

func TestRespondNoContent(t *testing.T) {
	w := httptest.NewRecorder()
	RespondNoContent(w)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if w.Body.Len() != 0 {
		t.Errorf("body length = %d, want 0", w.Body.Len())
	}
}

func TestErrorResponse_OmitsEmptyFields(t *testing.T) {
	w := httptest.NewRecorder()
	RespondError(w, http.StatusNotFound, "not found")

	var m map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	for _, key := range []string{"code", "details", "retryable"} {
		if _, ok := m[key]; ok {
			t.Errorf("empty %s should be omitted from JSON", key)
		}
	}
}
