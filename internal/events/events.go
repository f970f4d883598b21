// Package events publishes incident lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// Event names, used as the last subject token
const (
	IncidentCreated       = "created"
	IncidentUpdated       = "updated"
	IncidentConcluded     = "concluded"
	InvestigationRecorded = "investigation_recorded"
	ActionPlanStarted     = "action_plan_started"
	ManagerNotified       = "manager_notified"
	DeadlineAlerted       = "deadline_alerted"
	ExtensionRequested    = "extension_requested"
	DeadlineExtended      = "deadline_extended"
	ExtensionRejected     = "extension_rejected"
	IncidentEscalated     = "escalated"
)

// Event is the published payload
type Event struct {
	Type       string                 `json:"type"`
	TenantID   uint                   `json:"tenant_id"`
	IncidentID string                 `json:"incident_id"`
	OccurredAt time.Time              `json:"occurred_at"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// Publisher delivers lifecycle events. Publishing is best effort.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subject returns the subject an event is published on: sentinela.<tenant>.incident.<type>
func Subject(e Event) string {
	return fmt.Sprintf("sentinela.%d.incident.%s", e.TenantID, e.Type)
}

// Nop discards events
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// NATSConfig holds NATS connection settings
type NATSConfig struct {
	URL           string
	Name          string
	ReconnectWait time.Duration
	MaxReconnects int
	Timeout       time.Duration
}

// NATSPublisher publishes events as JSON on core NATS subjects
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher connects to NATS
func NewNATSPublisher(cfg NATSConfig) (*NATSPublisher, error) {
	if cfg.Name == "" {
		cfg.Name = "sentinela"
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = -1
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("Events: NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("Events: NATS reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSPublisher{conn: conn}, nil
}

// Publish marshals e and publishes it on its subject
func (p *NATSPublisher) Publish(_ context.Context, e Event) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return p.conn.Publish(Subject(e), payload)
}

// Close drains and closes the connection
func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}

// Recorder keeps published events in memory
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of the recorded events
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types lists the recorded event types in order
func (r *Recorder) Types() []string {
	events := r.Events()
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}
