package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestRequestIDMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		clientID string
		wantSame bool
	}{
		{name: "generates an id", clientID: ""},
		{name: "reuses the client id", clientID: "ward-7-request-123", wantSame: true},
		{name: "replaces an oversized id", clientID: strings.Repeat("x", 200)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured string
			handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				captured = GetRequestID(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/incidents", nil)
			if tt.clientID != "" {
				req.Header.Set(RequestIDHeader, tt.clientID)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			got := w.Header().Get(RequestIDHeader)
			if captured != got {
				t.Errorf("context ID = %q, response ID = %q", captured, got)
			}
			if tt.wantSame {
				if got != tt.clientID {
					t.Errorf("response ID = %q, want %q", got, tt.clientID)
				}
				return
			}
			if _, err := uuid.Parse(got); err != nil {
				t.Errorf("expected a UUID, got %q", got)
			}
		})
	}
}

func TestRequestIDMiddleware_UniqueIDs(t *testing.T) {
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	ids := make(map[string]bool)
	for i := 0; i < 100; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		id := w.Header().Get(RequestIDHeader)
		if ids[id] {
			t.Fatalf("duplicate request ID generated: %q", id)
		}
		ids[id] = true
	}
}

func TestGetRequestID_EmptyContext(t *testing.T) {
	if id := GetRequestID(context.Background()); id != "" {
		t.Errorf("expected empty string, got %q", id)
	}
}
