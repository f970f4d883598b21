package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func chatServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token")
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []interface{}{
				map[string]interface{}{"message": map[string]interface{}{"content": content}},
			},
		})
	}))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Result
	}{
		{
			name:    "plain JSON",
			content: `{"risk_level":"GRAVE","event_type":"queda","recommendation":"avaliar paciente","notification_kind":"EVENTO ADVERSO"}`,
			want:    Result{RiskLevel: "GRAVE", EventType: "queda", Recommendation: "avaliar paciente", NotificationKind: "EVENTO ADVERSO"},
		},
		{
			name:    "fenced and lowercase",
			content: "```json\n{\"risk_level\":\"moderado\",\"event_type\":\" erro de medicação \"}\n```",
			want:    Result{RiskLevel: "MODERADO", EventType: "erro de medicação"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := chatServer(t, http.StatusOK, tt.content)
			defer server.Close()

			c := New(Config{APIKey: "test-key", BaseURL: server.URL})
			got, err := c.Classify(context.Background(), "Paciente caiu do leito durante a madrugada")
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if got != tt.want {
				t.Errorf("Classify() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestClassify_Failures(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		_, err := New(Config{}).Classify(context.Background(), "queda")
		if !errors.Is(err, ErrNotConfigured) {
			t.Errorf("expected ErrNotConfigured, got %v", err)
		}
	})
	t.Run("server error", func(t *testing.T) {
		server := chatServer(t, http.StatusInternalServerError, "")
		defer server.Close()
		_, err := New(Config{APIKey: "test-key", BaseURL: server.URL}).Classify(context.Background(), "queda")
		if !errors.Is(err, ErrUnavailable) {
			t.Errorf("expected ErrUnavailable, got %v", err)
		}
	})
	t.Run("malformed content", func(t *testing.T) {
		server := chatServer(t, http.StatusOK, "GRAVE, definitely")
		defer server.Close()
		_, err := New(Config{APIKey: "test-key", BaseURL: server.URL}).Classify(context.Background(), "queda")
		if !errors.Is(err, ErrUnavailable) {
			t.Errorf("expected ErrUnavailable, got %v", err)
		}
	})
	t.Run("unreachable", func(t *testing.T) {
		server := chatServer(t, http.StatusOK, "{}")
		url := server.URL
		server.Close()
		_, err := New(Config{APIKey: "test-key", BaseURL: url}).Classify(context.Background(), "queda")
		if !errors.Is(err, ErrUnavailable) {
			t.Errorf("expected ErrUnavailable, got %v", err)
		}
	})
	t.Run("api error body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"rate limit","type":"requests"}}`))
		}))
		defer server.Close()
		_, err := New(Config{APIKey: "test-key", BaseURL: server.URL}).Classify(context.Background(), "queda")
		if !errors.Is(err, ErrUnavailable) || !strings.Contains(err.Error(), "rate limit") {
			t.Errorf("expected rate limit error, got %v", err)
		}
	})
}

func TestDraftCausalAnalysis(t *testing.T) {
	var prompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		prompt = req.Messages[len(req.Messages)-1].Content
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []interface{}{
				map[string]interface{}{"message": map[string]interface{}{"content": "  Falta de grade de proteção.  "}},
			},
		})
	}))
	defer server.Close()

	c := New(Config{APIKey: "test-key", BaseURL: server.URL})
	draft, err := c.DraftCausalAnalysis(context.Background(), "queda do leito", map[string]interface{}{
		"where": "UTI",
		"when":  "madrugada",
	})
	if err != nil {
		t.Fatalf("DraftCausalAnalysis: %v", err)
	}
	if draft != "Falta de grade de proteção." {
		t.Errorf("draft = %q", draft)
	}
	if strings.Index(prompt, "- when:") > strings.Index(prompt, "- where:") {
		t.Errorf("answers should be listed in key order:\n%s", prompt)
	}
}

func TestTruncateForPrompt(t *testing.T) {
	if got := truncateForPrompt("abcdef", 5); got != "ab..." {
		t.Errorf("got %q", got)
	}
	if got := truncateForPrompt("abc", 5); got != "abc" {
		t.Errorf("got %q", got)
	}
}
