package notify

import (
	"errors"
	"strings"
	"testing"
)

func sampleData() map[string]interface{} {
	return map[string]interface{}{
		"IncidentID":          "inc-123",
		"Sector":              "UTI",
		"RiskLevel":           "GRAVE",
		"Kind":                "EVENTO ADVERSO",
		"Pending":             false,
		"EventDate":           "10/01/2025",
		"DueDate":             "11/01/2025",
		"Deadline":            "11/01/2025",
		"RequestedDeadline":   "18/01/2025",
		"Reason":              "aguardando fornecedor",
		"Status":              "Aberto",
		"ActionPlanStatus":    "NOT_STARTED",
		"DeadlineAlertSentAt": "12/01/2025 08:00",
		"Description":         "queda do leito",
		"RecipientName":       "Ana",
		"Link":                "https://sentinela.test/incidents/inc-123",
		"ApproveLink":         "https://sentinela.test/incidents/inc-123?action=approve_deadline",
		"RejectLink":          "https://sentinela.test/incidents/inc-123?action=reject_deadline",
	}
}

func TestDefaultCatalog_RendersEveryTemplate(t *testing.T) {
	c, err := DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog: %v", err)
	}

	names := []string{
		TemplateIncidentNotification,
		TemplateIncidentForwarded,
		TemplateDeadlineAlert,
		TemplateEscalationAlert,
		TemplateExtensionRequested,
		TemplateDeadlineApproved,
		TemplateDeadlineRejected,
	}
	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			if !c.Has(name) {
				t.Fatalf("catalog is missing %s", name)
			}
			msg, err := c.Render(name, sampleData())
			if err != nil {
				t.Fatalf("Render: %v", err)
			}
			if msg.Subject == "" || msg.Body == "" {
				t.Errorf("empty message: %+v", msg)
			}
			if strings.Contains(msg.Body, "<no value>") || strings.Contains(msg.Subject, "<no value>") {
				t.Errorf("template references data the services do not provide:\n%s\n%s", msg.Subject, msg.Body)
			}
		})
	}
}

func TestCatalog_ExtensionLinks(t *testing.T) {
	c, _ := DefaultCatalog()
	msg, err := c.Render(TemplateExtensionRequested, sampleData())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(msg.Body, "action=approve_deadline") || !strings.Contains(msg.Body, "action=reject_deadline") {
		t.Errorf("extension request must carry both action links:\n%s", msg.Body)
	}
}

func TestCatalog_UnknownTemplate(t *testing.T) {
	c, _ := DefaultCatalog()
	_, err := c.Render("nope", nil)
	if !errors.Is(err, ErrUnknownTemplate) {
		t.Errorf("expected ErrUnknownTemplate, got %v", err)
	}
}

func TestParseCatalog_Invalid(t *testing.T) {
	if _, err := ParseCatalog([]byte("a: [")); err == nil {
		t.Error("expected YAML error")
	}
	if _, err := ParseCatalog([]byte("a:\n  subject: \"{{.X\"\n  body: ok\n")); err == nil {
		t.Error("expected template parse error")
	}
}
