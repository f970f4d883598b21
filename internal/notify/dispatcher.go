// Package notify renders notification templates and delivers them.
package notify

import (
	"context"
	"log"

	"github.com/sentinela-saude/sentinela/internal/metrics"
)

// Template names understood by the catalog
const (
	TemplateIncidentNotification = "incident_notification"
	TemplateIncidentForwarded    = "incident_forwarded"
	TemplateDeadlineAlert        = "deadline_alert"
	TemplateEscalationAlert      = "escalation_alert"
	TemplateExtensionRequested   = "deadline_extension_requested"
	TemplateDeadlineApproved     = "deadline_approved"
	TemplateDeadlineRejected     = "deadline_rejected"
)

// Outcome describes one delivery attempt
type Outcome struct {
	Recipient string // address actually used, differs from the requested one in shadow mode
	Provider  string
	Delivered bool
}

// Dispatcher sends one rendered template to one recipient
type Dispatcher interface {
	Send(ctx context.Context, to, template string, data map[string]interface{}) (Outcome, error)
}

// Result summarizes a fan-out
type Result struct {
	Delivered []string
	Failed    map[string]error
}

// Any reports whether at least one recipient got the message
func (r Result) Any() bool {
	return len(r.Delivered) > 0
}

// FanOut sends the same template to every recipient. A failure for one
// recipient never stops delivery to the others.
func FanOut(ctx context.Context, d Dispatcher, m *metrics.Metrics, recipients []string, template string, data map[string]interface{}) Result {
	res := Result{Failed: map[string]error{}}
	for _, to := range recipients {
		out, err := d.Send(ctx, to, template, data)
		if err != nil {
			log.Printf("Notify: failed to send %s to %s: %v", template, to, err)
			res.Failed[to] = err
			m.Notification(template, "failed")
			continue
		}
		if !out.Delivered {
			res.Failed[to] = ErrNotDelivered
			m.Notification(template, "failed")
			continue
		}
		res.Delivered = append(res.Delivered, to)
		m.Notification(template, "delivered")
	}
	return res
}
