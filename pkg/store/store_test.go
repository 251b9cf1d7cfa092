package store

import (
	"testing"
	"time"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/google/uuid"

	"github.com/Legatia/deflow/pkg/kvdb"
	"github.com/Legatia/deflow/pkg/workflow"
)

func timeUnix(sec int64) time.Time { return time.Unix(sec, 0) }

func newTestStore(t *testing.T) *WorkflowStore {
	t.Helper()
	return NewWorkflowStore(kvdb.NewKVAdapter(dbm.NewMemDB()))
}

func TestSaveAndGetWorkflowRoundTrips(t *testing.T) {
	s := newTestStore(t)
	wf := &workflow.Workflow{ID: uuid.New(), OwnerID: "user-1", Name: "sweep"}

	if err := s.SaveWorkflow(wf); err != nil {
		t.Fatalf("unexpected error saving: %v", err)
	}
	got, err := s.GetWorkflow(wf.ID)
	if err != nil {
		t.Fatalf("unexpected error getting: %v", err)
	}
	if got == nil || got.Name != "sweep" {
		t.Fatalf("expected round-tripped workflow named sweep, got %+v", got)
	}
}

func TestGetWorkflowMissingReturnsNilNil(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetWorkflow(uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for a missing workflow, got %+v", got)
	}
}

func TestDeleteWorkflowRemovesIt(t *testing.T) {
	s := newTestStore(t)
	wf := &workflow.Workflow{ID: uuid.New(), OwnerID: "user-1"}
	if err := s.SaveWorkflow(wf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.DeleteWorkflow(wf.ID); err != nil {
		t.Fatalf("unexpected error deleting: %v", err)
	}
	got, err := s.GetWorkflow(wf.ID)
	if err != nil || got != nil {
		t.Fatalf("expected workflow gone after delete, got %+v err=%v", got, err)
	}
}

func TestListWorkflowsByOwnerFiltersCorrectly(t *testing.T) {
	s := newTestStore(t)
	a := &workflow.Workflow{ID: uuid.New(), OwnerID: "owner-a"}
	b := &workflow.Workflow{ID: uuid.New(), OwnerID: "owner-b"}
	c := &workflow.Workflow{ID: uuid.New(), OwnerID: "owner-a"}
	for _, wf := range []*workflow.Workflow{a, b, c} {
		if err := s.SaveWorkflow(wf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	got, err := s.ListWorkflowsByOwner("owner-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 workflows for owner-a, got %d", len(got))
	}
}

func TestScheduledExecutionsDueBeforeOrdersAscending(t *testing.T) {
	s := newTestStore(t)
	early := &workflow.ScheduledExecution{ID: uuid.New(), FireAt: timeUnix(100)}
	late := &workflow.ScheduledExecution{ID: uuid.New(), FireAt: timeUnix(200)}
	future := &workflow.ScheduledExecution{ID: uuid.New(), FireAt: timeUnix(300)}
	for _, se := range []*workflow.ScheduledExecution{future, early, late} {
		if err := s.SaveScheduledExecution(se); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	due, err := s.ListScheduledExecutionsDueBefore(200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected 2 due executions at or before cutoff 200, got %d", len(due))
	}
	if due[0].ID != early.ID || due[1].ID != late.ID {
		t.Fatalf("expected ascending fire-time order, got %v then %v", due[0].ID, due[1].ID)
	}
}

func TestScheduledExecutionDeleteRemovesIt(t *testing.T) {
	s := newTestStore(t)
	se := &workflow.ScheduledExecution{ID: uuid.New(), FireAt: timeUnix(50)}
	if err := s.SaveScheduledExecution(se); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.DeleteScheduledExecution(50, se.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	due, err := s.ListScheduledExecutionsDueBefore(50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("expected the deleted scheduled execution to be gone, got %d remaining", len(due))
	}
}

func TestRegionPutGetDeleteRoundTrips(t *testing.T) {
	s := newTestStore(t)
	type profile struct{ DisplayName string }

	if err := s.PutRegion(RegionUserProfiles, "user-1", profile{DisplayName: "Ada"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got profile
	found, err := s.GetRegion(RegionUserProfiles, "user-1", &got)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found || got.DisplayName != "Ada" {
		t.Fatalf("expected found profile named Ada, got found=%v %+v", found, got)
	}

	if err := s.DeleteRegion(RegionUserProfiles, "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found, err = s.GetRegion(RegionUserProfiles, "user-1", &got)
	if err != nil || found {
		t.Fatalf("expected not found after delete, found=%v err=%v", found, err)
	}
}

func TestOversizeValueIsRejected(t *testing.T) {
	s := newTestStore(t)
	huge := make([]byte, maxValueBytes+1)
	err := s.PutRegion(RegionUserSettings, "user-1", huge)
	if err == nil {
		t.Fatal("expected an error storing a value over the size limit")
	}
}
