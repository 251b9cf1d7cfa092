// Copyright 2025 DeFlow
//
// Scheduler manages the timing of cron-driven recurring workflow fires.
// Schedule registers cron entries only; one-shot delayed fires and
// fixed-interval/heartbeat schedules are not run by it.
// Grounded on pkg/batch/scheduler.go's mutex-guarded state machine + ticker
// run loop, generalized from a single on-cadence batch timer to many
// independently-due ScheduledExecutions recovered from WorkflowStore.

package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/Legatia/deflow/pkg/metrics"
	"github.com/Legatia/deflow/pkg/store"
	"github.com/Legatia/deflow/pkg/workflow"
)

// State is the scheduler's run state.
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
	StatePaused  State = "paused"
)

// ScheduleType distinguishes how a workflow's next fire time is computed.
type ScheduleType string

const (
	ScheduleOnce      ScheduleType = "once"
	ScheduleInterval  ScheduleType = "interval"
	ScheduleCron      ScheduleType = "cron"
	ScheduleHeartbeat ScheduleType = "heartbeat"
)

// FireCallback is invoked when a scheduled workflow execution becomes due.
type FireCallback func(ctx context.Context, workflowID uuid.UUID) error

// Config configures a Scheduler.
type Config struct {
	CheckInterval time.Duration // how often to scan for due fires
	Callback      FireCallback
	Logger        *log.Logger
}

// DefaultConfig returns the scheduler's default polling cadence.
func DefaultConfig() *Config {
	return &Config{
		CheckInterval: 15 * time.Second,
		Logger:        log.New(log.Writer(), "[Scheduler] ", log.LstdFlags),
	}
}

// Scheduler polls WorkflowStore for due ScheduledExecutions and invokes the
// configured callback for each, rescheduling recurring entries.
type Scheduler struct {
	mu sync.RWMutex

	store    *store.WorkflowStore
	callback FireCallback
	interval time.Duration
	state    State

	stopCh chan struct{}
	doneCh chan struct{}

	logger *log.Logger
}

// NewScheduler creates a Scheduler backed by the given store.
func NewScheduler(s *store.WorkflowStore, cfg *Config) (*Scheduler, error) {
	if s == nil {
		return nil, errNilStore
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.Writer(), "[Scheduler] ", log.LstdFlags)
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 15 * time.Second
	}

	return &Scheduler{
		store:    s,
		callback: cfg.Callback,
		interval: cfg.CheckInterval,
		state:    StateStopped,
		logger:   cfg.Logger,
	}, nil
}

// Start begins polling for due fires. On the first tick it also recovers
// any schedules that came due while the process was down (overdue fires are
// dispatched immediately, oldest first).
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateRunning {
		s.mu.Unlock()
		return nil
	}
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.state = StateRunning
	s.mu.Unlock()

	go s.run(ctx)
	s.logger.Printf("scheduler started (check_interval=%s)", s.interval)
	return nil
}

// Stop halts the scheduler and waits for the run loop to exit.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return nil
	}
	close(s.stopCh)
	s.state = StateStopped
	s.mu.Unlock()

	<-s.doneCh
	s.logger.Println("scheduler stopped")
	return nil
}

// Pause temporarily suspends dispatch without tearing down the run loop.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRunning {
		s.state = StatePaused
	}
}

// Resume resumes a paused scheduler.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StatePaused {
		s.state = StateRunning
	}
}

func (s *Scheduler) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.mu.RLock()
			state := s.state
			s.mu.RUnlock()
			if state != StateRunning {
				continue
			}
			s.dispatchDue(ctx)
		}
	}
}

func (s *Scheduler) dispatchDue(ctx context.Context) {
	now := timeNow()
	due, err := s.store.ListScheduledExecutionsDueBefore(now.Unix())
	if err != nil {
		s.logger.Printf("failed to list due executions: %v", err)
		return
	}
	metrics.ScheduledExecutionsDue.Set(float64(len(due)))

	for _, se := range due {
		if s.callback != nil {
			if err := s.callback(ctx, se.WorkflowID); err != nil {
				s.logger.Printf("fire callback failed for workflow %s: %v", se.WorkflowID, err)
			}
		}

		if err := s.store.DeleteScheduledExecution(se.FireAt.Unix(), se.ID); err != nil {
			s.logger.Printf("failed to clear fired schedule %s: %v", se.ID, err)
		}

		if se.Recurring {
			s.rearm(se, now)
		}
	}
}

// rearm re-derives a recurring entry's next fire time from its workflow's
// own trigger and persists it, so a cron-triggered workflow keeps firing
// indefinitely instead of running once and going silent.
func (s *Scheduler) rearm(se *workflow.ScheduledExecution, now time.Time) {
	wf, err := s.store.GetWorkflow(se.WorkflowID)
	if err != nil || wf == nil {
		s.logger.Printf("failed to reload workflow %s to rearm schedule %s: %v", se.WorkflowID, se.ID, err)
		return
	}

	next, ok, err := Schedule(wf, now)
	if err != nil {
		s.logger.Printf("failed to re-derive next fire for workflow %s: %v", se.WorkflowID, err)
		return
	}
	if !ok {
		return
	}
	next.ID = se.ID
	if err := s.store.SaveScheduledExecution(&next); err != nil {
		s.logger.Printf("failed to persist rearmed schedule %s: %v", se.ID, err)
	}
}

// NextCronFire computes the next fire time for a cron expression after
// `after`, using the standard five-field cron parser.
func NextCronFire(expr string, after time.Time) (time.Time, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(after), nil
}

// Schedule computes the ScheduledExecution a workflow's trigger implies,
// given the reference time `now`. Manual and webhook triggers are never
// scheduled (they fire on demand) and return ok=false.
func Schedule(wf *workflow.Workflow, now time.Time) (se workflow.ScheduledExecution, ok bool, err error) {
	switch wf.Trigger.Type {
	case workflow.TriggerCron:
		next, cronErr := NextCronFire(wf.Trigger.CronExpression, now)
		if cronErr != nil {
			return workflow.ScheduledExecution{}, false, cronErr
		}
		return workflow.ScheduledExecution{
			ID:         uuid.New(),
			WorkflowID: wf.ID,
			FireAt:     next,
			Recurring:  true,
		}, true, nil
	default:
		return workflow.ScheduledExecution{}, false, nil
	}
}

var errNilStore = newErr("scheduler: store must not be nil")

type schedulerError string

func (e schedulerError) Error() string { return string(e) }

func newErr(msg string) error { return schedulerError(msg) }

// timeNow is a package-level indirection point; kept as a thin wrapper over
// time.Now so tests can substitute a fixed clock without touching callers.
var timeNow = time.Now
