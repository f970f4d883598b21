// Package jobs runs the periodic background work of the service.
package jobs

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sentinela-saude/sentinela/internal/database"
	"github.com/sentinela-saude/sentinela/internal/deadline"
	"github.com/sentinela-saude/sentinela/internal/metrics"
	"github.com/sentinela-saude/sentinela/internal/services"
	"github.com/sentinela-saude/sentinela/internal/workflow"
)

// DefaultSchedule runs the sweep once a minute
const DefaultSchedule = "@every 1m"

// Alerter lists sweep candidates and alerts one of them. Implemented by
// services.DeadlineAlertService.
type Alerter interface {
	ListCandidates(ctx context.Context) ([]database.Incident, error)
	AlertIfLapsed(ctx context.Context, candidate database.Incident, now time.Time) (services.AlertOutcome, error)
}

// SweepResult counts what one sweep did
type SweepResult struct {
	Checked   int           `json:"checked"`
	Lapsed    int           `json:"lapsed"`
	Sent      int           `json:"sent"`
	NoManager int           `json:"no_manager"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Took      time.Duration `json:"took_ns"`
}

// DeadlineSweep scans non-concluded incidents and sends the first deadline
// alert once their effective deadline lapsed. Only one sweep runs at a time
// per process, whether started by the schedule or by hand.
type DeadlineSweep struct {
	alerter  Alerter
	clock    services.Clock
	metrics  *metrics.Metrics
	schedule string

	running atomic.Bool

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

// NewDeadlineSweep creates a sweep over alerter. An empty schedule means
// DefaultSchedule and a nil clock means time.Now.
func NewDeadlineSweep(alerter Alerter, schedule string, clock services.Clock, m *metrics.Metrics) *DeadlineSweep {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if clock == nil {
		clock = time.Now
	}
	return &DeadlineSweep{alerter: alerter, clock: clock, metrics: m, schedule: schedule}
}

// RunOnce performs one sweep. It fails with SWEEP_IN_PROGRESS when another
// sweep is active and stops early, returning ctx.Err(), when ctx is cancelled.
func (s *DeadlineSweep) RunOnce(ctx context.Context) (SweepResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return SweepResult{}, workflow.Errorf(workflow.CodeSweepInProgress, "a deadline sweep is already running")
	}
	defer s.running.Store(false)

	// One instant for the whole sweep, so every candidate is judged alike
	started := time.Now()
	now := s.clock().UTC()
	var result SweepResult

	candidates, err := s.alerter.ListCandidates(ctx)
	if err != nil {
		s.metrics.Sweep("error", time.Since(started))
		return result, fmt.Errorf("failed to list sweep candidates: %w", err)
	}

	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			result.Took = time.Since(started)
			s.metrics.Sweep("cancelled", result.Took)
			log.Printf("DeadlineSweep: cancelled after %d of %d candidates", result.Checked, len(candidates))
			return result, err
		}
		result.Checked++
		// Cheap pre-check on the snapshot, AlertIfLapsed re-checks under the lock
		if !deadline.Lapsed(&candidate, now) {
			continue
		}
		result.Lapsed++

		// One failing incident never stops the sweep
		outcome, err := s.alerter.AlertIfLapsed(ctx, candidate, now)
		if err != nil {
			log.Printf("DeadlineSweep: incident %s: %v", candidate.UUID, err)
			result.Failed++
			continue
		}
		switch outcome {
		case services.AlertSent:
			result.Sent++
		case services.AlertNoManager:
			result.NoManager++
		case services.AlertFailed:
			result.Failed++
		default:
			result.Skipped++
		}
	}

	result.Took = time.Since(started)
	s.metrics.Sweep("ok", result.Took)
	if result.Sent > 0 || result.Failed > 0 {
		log.Printf("DeadlineSweep: %d lapsed, %d alerted, %d failed, %d without manager (%s)",
			result.Lapsed, result.Sent, result.Failed, result.NoManager, result.Took.Round(time.Millisecond))
	}
	return result, nil
}

// Running reports whether a sweep is in progress
func (s *DeadlineSweep) Running() bool {
	return s.running.Load()
}

// Start schedules the sweep. Ticks that fire while a sweep is still running
// are skipped. Sweeps observe ctx and the context cancelled by Stop.
func (s *DeadlineSweep) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	// Setup cron with panic recovery and overlap protection
	logger := cron.PrintfLogger(log.Default())
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	runCtx, cancel := context.WithCancel(ctx)
	if _, err := c.AddFunc(s.schedule, func() { s.tick(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}
	c.Start()
	s.cron = c
	s.cancel = cancel
	log.Printf("DeadlineSweep: started with schedule %s", s.schedule)
	return nil
}

func (s *DeadlineSweep) tick(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		if workflow.IsCode(err, workflow.CodeSweepInProgress) {
			return
		}
		log.Printf("DeadlineSweep: %v", err)
	}
}

// Stop cancels the running sweep, if any, and waits for it to return or for
// ctx to expire.
func (s *DeadlineSweep) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}

	// Cancel the running sweep, then wait for cron to drain
	cancel()
	stopped := c.Stop()
	select {
	case <-stopped.Done():
		log.Println("DeadlineSweep: stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
