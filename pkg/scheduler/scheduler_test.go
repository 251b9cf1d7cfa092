package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/google/uuid"

	"github.com/Legatia/deflow/pkg/kvdb"
	"github.com/Legatia/deflow/pkg/store"
	"github.com/Legatia/deflow/pkg/workflow"
)

func newTestStore(t *testing.T) *store.WorkflowStore {
	t.Helper()
	return store.NewWorkflowStore(kvdb.NewKVAdapter(dbm.NewMemDB()))
}

func TestNewSchedulerRejectsNilStore(t *testing.T) {
	if _, err := NewScheduler(nil, nil); err == nil {
		t.Fatal("expected an error constructing a scheduler without a store")
	}
}

func TestScheduleCronTriggerProducesRecurringEntry(t *testing.T) {
	wf := &workflow.Workflow{ID: uuid.New(), Trigger: workflow.Trigger{Type: workflow.TriggerCron, CronExpression: "0 0 * * *"}}
	se, ok, err := Schedule(wf, time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected a cron trigger to produce a scheduled entry")
	}
	if !se.Recurring {
		t.Fatal("expected a cron-derived entry to be recurring")
	}
	if se.WorkflowID != wf.ID {
		t.Fatalf("expected scheduled entry bound to the workflow id, got %v", se.WorkflowID)
	}
}

func TestScheduleManualTriggerIsNotScheduled(t *testing.T) {
	wf := &workflow.Workflow{ID: uuid.New(), Trigger: workflow.Trigger{Type: workflow.TriggerManual}}
	_, ok, err := Schedule(wf, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected a manual trigger to never be scheduled")
	}
}

func TestNextCronFireAdvancesToNextMidnight(t *testing.T) {
	after := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	next, err := NextCronFire("0 0 * * *", after)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected next fire %v, got %v", want, next)
	}
}

func TestSchedulerDispatchesDueExecutionsAndClearsThem(t *testing.T) {
	s := newTestStore(t)
	wfID := uuid.New()
	due := workflow.ScheduledExecution{ID: uuid.New(), WorkflowID: wfID, FireAt: time.Now().Add(-time.Minute)}
	if err := s.SaveScheduledExecution(&due); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var mu sync.Mutex
	var fired []uuid.UUID
	sched, err := NewScheduler(s, &Config{
		CheckInterval: time.Hour, // avoid the ticker firing during the test; we drive dispatch directly
		Callback: func(ctx context.Context, workflowID uuid.UUID) error {
			mu.Lock()
			fired = append(fired, workflowID)
			mu.Unlock()
			return nil
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sched.dispatchDue(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if len(fired) != 1 || fired[0] != wfID {
		t.Fatalf("expected the due workflow to fire exactly once, got %v", fired)
	}

	remaining, err := s.ListScheduledExecutionsDueBefore(time.Now().Unix())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected the fired schedule to be cleared, got %d remaining", len(remaining))
	}
}

func TestSchedulerStartStopLifecycle(t *testing.T) {
	s := newTestStore(t)
	sched, err := NewScheduler(s, &Config{CheckInterval: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sched.Start(ctx); err != nil {
		t.Fatalf("unexpected error starting: %v", err)
	}
	if sched.State() != StateRunning {
		t.Fatalf("expected StateRunning, got %v", sched.State())
	}

	sched.Pause()
	if sched.State() != StatePaused {
		t.Fatalf("expected StatePaused, got %v", sched.State())
	}
	sched.Resume()
	if sched.State() != StateRunning {
		t.Fatalf("expected StateRunning after resume, got %v", sched.State())
	}

	if err := sched.Stop(); err != nil {
		t.Fatalf("unexpected error stopping: %v", err)
	}
	if sched.State() != StateStopped {
		t.Fatalf("expected StateStopped, got %v", sched.State())
	}
}
