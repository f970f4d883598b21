package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestDispatcher(t *testing.T, cfg EmailConfig) *EmailDispatcher {
	t.Helper()
	c, err := DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog: %v", err)
	}
	cfg.RetryBackoff = time.Millisecond
	return NewEmailDispatcher(c, cfg)
}

func TestEmailDispatcher_SendGridPayload(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sg-key" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	d := newTestDispatcher(t, EmailConfig{APIKey: "sg-key", FromEmail: "noreply@h.test", FromName: "Sentinela", Endpoint: server.URL})
	out, err := d.Send(context.Background(), "ana@h.test", TemplateDeadlineAlert, sampleData())
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !out.Delivered || out.Provider != "sendgrid" || out.Recipient != "ana@h.test" {
		t.Errorf("unexpected outcome: %+v", out)
	}

	pers := got["personalizations"].([]interface{})[0].(map[string]interface{})
	to := pers["to"].([]interface{})[0].(map[string]interface{})
	if to["email"] != "ana@h.test" {
		t.Errorf("recipient = %v", to["email"])
	}
	if got["subject"] == "" {
		t.Error("subject missing")
	}
}

func TestEmailDispatcher_ShadowMode(t *testing.T) {
	var recipient atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		pers := body["personalizations"].([]interface{})[0].(map[string]interface{})
		recipient.Store(pers["to"].([]interface{})[0].(map[string]interface{})["email"])
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	d := newTestDispatcher(t, EmailConfig{APIKey: "k", Endpoint: server.URL, ShadowAddress: "qa@h.test"})
	out, err := d.Send(context.Background(), "ana@h.test", TemplateDeadlineAlert, sampleData())
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if out.Recipient != "qa@h.test" || recipient.Load() != "qa@h.test" {
		t.Errorf("shadow address not enforced: outcome=%s server=%v", out.Recipient, recipient.Load())
	}
}

func TestEmailDispatcher_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	d := newTestDispatcher(t, EmailConfig{APIKey: "k", Endpoint: server.URL})
	if _, err := d.Send(context.Background(), "ana@h.test", TemplateDeadlineAlert, sampleData()); err != nil {
		t.Fatalf("expected success on third attempt: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestEmailDispatcher_NoRetryOnClientError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	d := newTestDispatcher(t, EmailConfig{APIKey: "k", Endpoint: server.URL})
	out, err := d.Send(context.Background(), "ana@h.test", TemplateDeadlineAlert, sampleData())
	if err == nil || out.Delivered {
		t.Fatal("expected failure")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestEmailDispatcher_DryRunWithoutKey(t *testing.T) {
	d := newTestDispatcher(t, EmailConfig{})
	out, err := d.Send(context.Background(), "ana@h.test", TemplateDeadlineAlert, sampleData())
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !out.Delivered || out.Provider != "log" {
		t.Errorf("unexpected outcome: %+v", out)
	}
}

func TestEmailDispatcher_InvalidRecipient(t *testing.T) {
	d := newTestDispatcher(t, EmailConfig{})
	for _, to := range []string{"", "not-an-address"} {
		if _, err := d.Send(context.Background(), to, TemplateDeadlineAlert, sampleData()); !errors.Is(err, ErrInvalidRecipient) {
			t.Errorf("Send(%q) error = %v", to, err)
		}
	}
}
