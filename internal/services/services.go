// Package services implements the incident governance operations on top of
// the state machine, the repositories and the notification collaborators.
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/sentinela-saude/sentinela/internal/audit"
	"github.com/sentinela-saude/sentinela/internal/classifier"
	"github.com/sentinela-saude/sentinela/internal/database"
	"github.com/sentinela-saude/sentinela/internal/events"
	"github.com/sentinela-saude/sentinela/internal/metrics"
	"github.com/sentinela-saude/sentinela/internal/notify"
	"github.com/sentinela-saude/sentinela/internal/resolver"
	"github.com/sentinela-saude/sentinela/internal/workflow"
)

// Intents carried by e-mailed action links
const (
	ActionApproveDeadline = "approve_deadline"
	ActionRejectDeadline  = "reject_deadline"
)

// dateLayout is how dates appear in notifications
const dateLayout = "02/01/2006"

// Clock returns the current time
type Clock func() time.Time

// Classifier is the external risk classifier and text generator
type Classifier interface {
	Classify(ctx context.Context, description string) (classifier.Result, error)
	DraftCausalAnalysis(ctx context.Context, description string, answers map[string]interface{}) (string, error)
}

// Actor identifies who performs an operation
type Actor struct {
	Name string
	Role database.ManagerRole
}

func (a Actor) label() string {
	if a.Name == "" {
		return audit.ActorSystem
	}
	return a.Name
}

// Warning is a non-fatal problem reported alongside a successful operation
type Warning struct {
	Code    workflow.Code `json:"code"`
	Message string        `json:"message"`
}

// Deps are the collaborators shared by every service. Dispatcher is required;
// the rest fall back to logging or no-op implementations.
type Deps struct {
	DB         *gorm.DB
	Dispatcher notify.Dispatcher
	Classifier Classifier
	Audit      audit.Sink
	Events     events.Publisher
	Metrics    *metrics.Metrics
	Clock      Clock
	PublicURL  string
}

// Services groups the services built over one set of dependencies. They
// share the per-incident lock table, so operations on the same incident are
// serialized across services.
type Services struct {
	Incidents   *IncidentService
	Extensions  *ExtensionService
	Escalations *EscalationService
	Alerts      *DeadlineAlertService
	Directory   *DirectoryService
}

// New builds every service over deps
func New(deps Deps) *Services {
	c := newCore(deps)
	return &Services{
		Incidents:   &IncidentService{core: c},
		Extensions:  &ExtensionService{core: c},
		Escalations: &EscalationService{core: c},
		Alerts:      &DeadlineAlertService{core: c, missAudited: make(map[string]struct{})},
		Directory:   &DirectoryService{core: c},
	}
}

type core struct {
	incidents  *database.IncidentRepository
	directory  *database.DirectoryRepository
	resolver   *resolver.Resolver
	dispatcher notify.Dispatcher
	classifier Classifier
	audit      audit.Sink
	events     events.Publisher
	metrics    *metrics.Metrics
	clock      Clock
	links      Links
	locks      *KeyedMutex
}

func newCore(deps Deps) *core {
	directory := database.NewDirectoryRepository(deps.DB)
	c := &core{
		incidents:  database.NewIncidentRepository(deps.DB),
		directory:  directory,
		resolver:   resolver.New(directory),
		dispatcher: deps.Dispatcher,
		classifier: deps.Classifier,
		audit:      deps.Audit,
		events:     deps.Events,
		metrics:    deps.Metrics,
		clock:      deps.Clock,
		links:      NewLinks(deps.PublicURL),
		locks:      NewKeyedMutex(),
	}
	if c.audit == nil {
		c.audit = audit.LogSink{}
	}
	if c.events == nil {
		c.events = events.Nop{}
	}
	if c.clock == nil {
		c.clock = func() time.Time { return time.Now().UTC() }
	}
	return c
}

func (c *core) now() time.Time {
	return c.clock().UTC()
}

// lockIncident serializes in-process work on one incident
func (c *core) lockIncident(tenantID uint, uuid string) func() {
	return c.locks.Lock(fmt.Sprintf("%d/%s", tenantID, uuid))
}

func (c *core) load(ctx context.Context, tenantID uint, uuid string) (*database.Incident, error) {
	inc, err := c.incidents.Get(ctx, tenantID, uuid)
	if err != nil {
		return nil, repoError(err, "incident "+uuid)
	}
	return inc, nil
}

func (c *core) save(ctx context.Context, inc *database.Incident, changes workflow.Changes) error {
	if err := c.incidents.Update(ctx, inc, changes); err != nil {
		return repoError(err, "incident "+inc.UUID)
	}
	return nil
}

// releaseTimeout bounds undoing a claim after the caller's context is gone
const releaseTimeout = 5 * time.Second

// detached keeps the values of ctx but not its cancellation, for the writes
// that must land after a failed dispatch
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
}

// releaseClaim undoes a won flag claim when nobody received the alert. It
// runs on a detached context so a cancelled sweep or a dropped client still
// frees the flag for the next attempt.
func (c *core) releaseClaim(ctx context.Context, inc *database.Incident, flag database.AlertFlag) error {
	rctx, cancel := detached(ctx)
	defer cancel()

	released, err := c.incidents.ReleaseFlag(rctx, inc, flag)
	if err != nil {
		return err
	}
	// The row moved on since the claim, so the flag is no longer ours to clear
	if !released {
		log.Printf("Warning: %s of incident %s changed after the claim, not released", flag, inc.UUID)
	}
	return nil
}

func (c *core) record(ctx context.Context, actor string, action string, inc *database.Incident, details map[string]interface{}) {
	if details == nil {
		details = map[string]interface{}{}
	}
	details[audit.DetailTenantID] = inc.TenantID
	c.audit.Record(ctx, actor, action, audit.IncidentResource(inc.UUID), details)
}

func (c *core) publish(ctx context.Context, eventType string, inc *database.Incident, data map[string]interface{}) {
	e := events.Event{
		Type:       eventType,
		TenantID:   inc.TenantID,
		IncidentID: inc.UUID,
		OccurredAt: c.now(),
		Data:       data,
	}
	if err := c.events.Publish(ctx, e); err != nil {
		log.Printf("Warning: failed to publish %s event for incident %s: %v", eventType, inc.UUID, err)
	}
}

// notifySectorManagers resolves the managers of the incident's notified
// sector and sends template to each of them. A resolver miss is audited and
// returned as a *resolver.NoManagerError.
func (c *core) notifySectorManagers(ctx context.Context, actor string, inc *database.Incident, template string, extra map[string]interface{}) (notify.Result, error) {
	contacts, err := c.resolver.ResolveManagers(ctx, inc.TenantID, inc.NotifiedSector)
	if err != nil {
		if errors.Is(err, resolver.ErrNoManagerForSector) {
			c.metrics.ResolverMiss()
			c.record(ctx, actor, audit.ActionNoManagerForSector, inc, map[string]interface{}{
				"sector":   inc.NotifiedSector,
				"template": template,
			})
		}
		return notify.Result{}, err
	}
	return c.dispatchTo(ctx, contacts, template, c.templateData(inc, extra)), nil
}

// dispatchTo sends one message per contact with the contact's name filled in
func (c *core) dispatchTo(ctx context.Context, contacts []resolver.Contact, template string, data map[string]interface{}) notify.Result {
	res := notify.Result{Failed: map[string]error{}}
	for _, contact := range contacts {
		personal := make(map[string]interface{}, len(data)+1)
		for k, v := range data {
			personal[k] = v
		}
		personal["RecipientName"] = contact.Name
		r := notify.FanOut(ctx, c.dispatcher, c.metrics, []string{contact.Email}, template, personal)
		res.Delivered = append(res.Delivered, r.Delivered...)
		for to, err := range r.Failed {
			res.Failed[to] = err
		}
	}
	return res
}

// templateData is the notification payload describing inc
func (c *core) templateData(inc *database.Incident, extra map[string]interface{}) map[string]interface{} {
	data := map[string]interface{}{
		"IncidentID":          inc.UUID,
		"Sector":              inc.NotifiedSector,
		"RiskLevel":           string(inc.RiskLevel),
		"Kind":                string(inc.NotificationKind),
		"Pending":             inc.ClassificationPending,
		"EventDate":           formatDate(&inc.EventDate),
		"DueDate":             formatDate(&inc.DueDate),
		"Deadline":            formatDate(timePtr(inc.EffectiveDeadline())),
		"RequestedDeadline":   formatDate(inc.RequestedDeadline),
		"Reason":              inc.ExtensionReason,
		"Status":              string(inc.Status),
		"ActionPlanStatus":    string(inc.ActionPlanStatus),
		"DeadlineAlertSentAt": formatDate(inc.DeadlineAlertSentAt),
		"Description":         inc.Description,
		"RecipientName":       "",
		"Link":                c.links.Incident(inc.UUID),
		"ApproveLink":         c.links.Action(inc.UUID, ActionApproveDeadline),
		"RejectLink":          c.links.Action(inc.UUID, ActionRejectDeadline),
	}
	for k, v := range extra {
		data[k] = v
	}
	return data
}

func dispatchWarning(template string, res notify.Result) *Warning {
	if res.Any() {
		return nil
	}
	return &Warning{
		Code:    workflow.CodeDispatchFailed,
		Message: fmt.Sprintf("%s was not delivered to any recipient", template),
	}
}

// repoError maps repository sentinels to reason-coded errors
func repoError(err error, what string) error {
	switch {
	case errors.Is(err, database.ErrNotFound):
		return workflow.Wrap(workflow.CodeNotFound, err, what+" not found")
	case errors.Is(err, database.ErrStaleVersion):
		return workflow.Wrap(workflow.CodeConflict, err, what+" was modified concurrently")
	case errors.Is(err, database.ErrDuplicate):
		return workflow.Wrap(workflow.CodeDuplicate, err, what+" already exists")
	}
	return err
}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateLayout)
}

func timePtr(t time.Time) *time.Time {
	return &t
}

// Links builds the deep links placed in notifications
type Links struct {
	base string
}

// NewLinks creates a link builder rooted at the public UI URL
func NewLinks(publicURL string) Links {
	return Links{base: strings.TrimRight(publicURL, "/")}
}

// Incident returns the incident page URL
func (l Links) Incident(uuid string) string {
	return l.base + "/incidents/" + url.PathEscape(uuid)
}

// Action returns the incident page URL carrying an action intent
func (l Links) Action(uuid, action string) string {
	return l.Incident(uuid) + "?action=" + url.QueryEscape(action)
}
