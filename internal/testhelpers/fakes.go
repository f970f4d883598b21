package testhelpers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sentinela-saude/sentinela/internal/classifier"
	"github.com/sentinela-saude/sentinela/internal/notify"
)

// ========================================
// Recording Dispatcher
// ========================================

// SentMessage is one Send call seen by RecordingDispatcher
type SentMessage struct {
	To       string
	Template string
	Data     map[string]interface{}
}

// RecordingDispatcher implements notify.Dispatcher and keeps every message
type RecordingDispatcher struct {
	mu      sync.Mutex
	sent    []SentMessage
	failFor map[string]error
	failAll error
}

// NewRecordingDispatcher creates a dispatcher that delivers everything
func NewRecordingDispatcher() *RecordingDispatcher {
	return &RecordingDispatcher{failFor: map[string]error{}}
}

// FailFor makes delivery to one address fail with err
func (d *RecordingDispatcher) FailFor(to string, err error) *RecordingDispatcher {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failFor[to] = err
	return d
}

// FailAll makes every delivery fail with err; nil restores delivery
func (d *RecordingDispatcher) FailAll(err error) *RecordingDispatcher {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failAll = err
	return d
}

// Send records a delivered message, or returns the configured failure
func (d *RecordingDispatcher) Send(_ context.Context, to, template string, data map[string]interface{}) (notify.Outcome, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failAll != nil {
		return notify.Outcome{Recipient: to, Provider: "test"}, d.failAll
	}
	if err, ok := d.failFor[to]; ok {
		return notify.Outcome{Recipient: to, Provider: "test"}, err
	}
	d.sent = append(d.sent, SentMessage{To: to, Template: template, Data: data})
	return notify.Outcome{Recipient: to, Provider: "test", Delivered: true}, nil
}

// Sent returns a copy of the delivered messages
func (d *RecordingDispatcher) Sent() []SentMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]SentMessage, len(d.sent))
	copy(out, d.sent)
	return out
}

// SentTo returns the recipients of one template in send order
func (d *RecordingDispatcher) SentTo(template string) []string {
	var out []string
	for _, m := range d.Sent() {
		if m.Template == template {
			out = append(out, m.To)
		}
	}
	return out
}

// Count returns how many messages of one template were delivered
func (d *RecordingDispatcher) Count(template string) int {
	return len(d.SentTo(template))
}

// ========================================
// Stub Classifier
// ========================================

// StubClassifier answers with a fixed result and counts calls
type StubClassifier struct {
	mu       sync.Mutex
	Result   classifier.Result
	Err      error
	Draft    string
	DraftErr error
	calls    int
}

// NewStubClassifier creates a classifier that answers GRAVE
func NewStubClassifier() *StubClassifier {
	return &StubClassifier{
		Result: classifier.Result{
			RiskLevel:        "GRAVE",
			EventType:        "Queda",
			Recommendation:   "Revisar protocolo de prevenção de quedas",
			NotificationKind: "EVENTO ADVERSO",
		},
		Draft: "Causa raiz: grade lateral baixada durante a transferência.",
	}
}

// Unavailable makes every call fail
func (c *StubClassifier) Unavailable() *StubClassifier {
	c.Err = classifier.ErrUnavailable
	c.DraftErr = classifier.ErrUnavailable
	return c
}

// Classify returns the configured result
func (c *StubClassifier) Classify(_ context.Context, _ string) (classifier.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.Err != nil {
		return classifier.Result{}, c.Err
	}
	return c.Result, nil
}

// DraftCausalAnalysis returns the configured draft
func (c *StubClassifier) DraftCausalAnalysis(_ context.Context, _ string, _ map[string]interface{}) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.DraftErr != nil {
		return "", c.DraftErr
	}
	return c.Draft, nil
}

// Calls returns how many requests were made
func (c *StubClassifier) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// ========================================
// Manual Clock
// ========================================

// ManualClock is a time source moved explicitly by the test
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a clock stopped at now
func NewManualClock(now time.Time) *ManualClock {
	return &ManualClock{now: now}
}

// Now returns the current fake time
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// ErrDeliveryFailed is a generic transport failure for dispatcher tests
var ErrDeliveryFailed = errors.New("delivery failed")
