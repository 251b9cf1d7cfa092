// Copyright 2025 DeFlow
//
// Package store implements WorkflowStore, the durable key-value layout every
// workflow-related component reads and writes through. Grounded on
// pkg/ledger/store.go's prefix-plus-big-endian-suffix key scheme and
// pkg/kvdb/adapter.go's CometBFT-backed KV, generalized from a single-region
// ledger store to the sixteen durable regions DeFlow needs.
package store

import (
	"encoding/binary"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/Legatia/deflow/pkg/apperrors"
	"github.com/Legatia/deflow/pkg/workflow"
)

// KV is the minimal persistence interface WorkflowStore depends on. Satisfied
// by *kvdb.KVAdapter.
type KV interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	IteratePrefix(prefix []byte, fn func(key, value []byte) bool) error
}

// region is a single-byte namespace prefix, keeping every key space disjoint
// within one flat keyspace the way LedgerStore's string prefixes do, but
// cheaper to compare and sort.
type region byte

const (
	regionWorkflows          region = 0
	regionExecutions         region = 1
	regionNodeRegistry       region = 2
	regionEventListeners     region = 3
	regionScheduledWorkflows region = 4
	regionRetryPolicies      region = 5
	regionWorkflowState      region = 6
	regionScheduledExec      region = 7
	regionUserProfiles       region = 8
	regionSubscriptions      region = 9
	regionIntegrations       region = 10
	regionOAuthTokens        region = 11
	regionAPIConnections     region = 12
	regionGlobalTemplates    region = 13
	regionUserTemplates      region = 14
	regionUserSettings       region = 15
)

// maxValueBytes bounds a single stored value. The node-graph JSON a workflow
// serializes to is small (a handful of KB at most for any realistic graph);
// anything past this is almost certainly a caller bug (e.g. attaching binary
// payloads to node Config) rather than a legitimate workflow.
const maxValueBytes = 256 * 1024

func regionKey(r region, id string) []byte {
	key := make([]byte, 0, 1+len(id))
	key = append(key, byte(r))
	key = append(key, []byte(id)...)
	return key
}

func regionPrefix(r region) []byte {
	return []byte{byte(r)}
}

func countPrefix(kv KV, r region) (int, error) {
	n := 0
	err := kv.IteratePrefix(regionPrefix(r), func(key, value []byte) bool {
		n++
		return true
	})
	return n, err
}

// WorkflowStore is the durable store backing workflows, executions, and the
// supporting registries (node types, event listeners, schedules, retry
// policies, user profiles, subscriptions, integrations, and templates).
//
// CONCURRENCY: like LedgerStore, WorkflowStore assumes each region is driven
// by a single logical owner (the workflow API for workflows/templates, the
// engine for executions/workflow-state, the scheduler for scheduled
// entries). Callers needing cross-goroutine access to the same region must
// add their own synchronization.
type WorkflowStore struct {
	kv KV
}

// NewWorkflowStore creates a WorkflowStore over the given KV backend.
func NewWorkflowStore(kv KV) *WorkflowStore {
	return &WorkflowStore{kv: kv}
}

func putJSON(kv KV, key []byte, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return apperrors.Wrap(apperrors.KindSerializationError, err)
	}
	if len(b) > maxValueBytes {
		return apperrors.Newf(apperrors.KindOversizeValue, "store: value %d bytes exceeds limit %d", len(b), maxValueBytes)
	}
	return kv.Set(key, b)
}

func getJSON(kv KV, key []byte, v interface{}) (bool, error) {
	b, err := kv.Get(key)
	if err != nil {
		return false, err
	}
	if b == nil {
		return false, nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, apperrors.Wrap(apperrors.KindSerializationError, err)
	}
	return true, nil
}

// ====== Workflows ======

// SaveWorkflow upserts a workflow definition.
func (s *WorkflowStore) SaveWorkflow(wf *workflow.Workflow) error {
	return putJSON(s.kv, regionKey(regionWorkflows, wf.ID.String()), wf)
}

// GetWorkflow loads a workflow by id. Returns (nil, nil) if not found.
func (s *WorkflowStore) GetWorkflow(id uuid.UUID) (*workflow.Workflow, error) {
	var wf workflow.Workflow
	found, err := getJSON(s.kv, regionKey(regionWorkflows, id.String()), &wf)
	if err != nil || !found {
		return nil, err
	}
	return &wf, nil
}

// DeleteWorkflow removes a workflow definition.
func (s *WorkflowStore) DeleteWorkflow(id uuid.UUID) error {
	return s.kv.Delete(regionKey(regionWorkflows, id.String()))
}

// ListWorkflowsByOwner returns every workflow owned by ownerID. This scans
// the entire workflows region since ownership isn't part of the key; fine
// for the expected per-validator workflow counts, revisit with a secondary
// owner index if that stops being true.
func (s *WorkflowStore) ListWorkflowsByOwner(ownerID string) ([]*workflow.Workflow, error) {
	var out []*workflow.Workflow
	var iterErr error
	err := s.kv.IteratePrefix(regionPrefix(regionWorkflows), func(key, value []byte) bool {
		var wf workflow.Workflow
		if err := json.Unmarshal(value, &wf); err != nil {
			iterErr = apperrors.Wrap(apperrors.KindSerializationError, err)
			return false
		}
		if wf.OwnerID == ownerID {
			out = append(out, &wf)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, iterErr
}

// ====== Executions ======

// SaveExecution upserts an execution record.
func (s *WorkflowStore) SaveExecution(ex *workflow.Execution) error {
	return putJSON(s.kv, regionKey(regionExecutions, ex.ID.String()), ex)
}

// GetExecution loads an execution by id.
func (s *WorkflowStore) GetExecution(id uuid.UUID) (*workflow.Execution, error) {
	var ex workflow.Execution
	found, err := getJSON(s.kv, regionKey(regionExecutions, id.String()), &ex)
	if err != nil || !found {
		return nil, err
	}
	return &ex, nil
}

// ListExecutionsByWorkflow returns every execution recorded for workflowID.
func (s *WorkflowStore) ListExecutionsByWorkflow(workflowID uuid.UUID) ([]*workflow.Execution, error) {
	var out []*workflow.Execution
	var iterErr error
	err := s.kv.IteratePrefix(regionPrefix(regionExecutions), func(key, value []byte) bool {
		var ex workflow.Execution
		if err := json.Unmarshal(value, &ex); err != nil {
			iterErr = apperrors.Wrap(apperrors.KindSerializationError, err)
			return false
		}
		if ex.WorkflowID == workflowID {
			out = append(out, &ex)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, iterErr
}

// CountWorkflows returns the number of workflow definitions currently
// stored, for snapshot/restore audit logging.
func (s *WorkflowStore) CountWorkflows() (int, error) {
	return countPrefix(s.kv, regionWorkflows)
}

// CountExecutions returns the number of execution records currently stored,
// for snapshot/restore audit logging.
func (s *WorkflowStore) CountExecutions() (int, error) {
	return countPrefix(s.kv, regionExecutions)
}

// CountScheduledExecutions returns the number of durable scheduled-execution
// entries currently stored, for snapshot/restore audit logging.
func (s *WorkflowStore) CountScheduledExecutions() (int, error) {
	return countPrefix(s.kv, regionScheduledExec)
}

// ====== Scheduled executions ======

// SaveScheduledExecution upserts a due-in-the-future workflow fire, keyed so
// ordered iteration walks fire times ascending - the scheduler recovers its
// due/overdue set on startup with a single prefix scan.
func (s *WorkflowStore) SaveScheduledExecution(se *workflow.ScheduledExecution) error {
	key := scheduledExecKey(se.FireAt.Unix(), se.ID.String())
	return putJSON(s.kv, key, se)
}

// DeleteScheduledExecution removes a scheduled fire once it's been dispatched
// (or cancelled).
func (s *WorkflowStore) DeleteScheduledExecution(fireAtUnix int64, id uuid.UUID) error {
	return s.kv.Delete(scheduledExecKey(fireAtUnix, id.String()))
}

// ListScheduledExecutionsDueBefore returns every scheduled execution with
// FireAt <= cutoffUnix, in ascending fire-time order.
func (s *WorkflowStore) ListScheduledExecutionsDueBefore(cutoffUnix int64) ([]*workflow.ScheduledExecution, error) {
	var out []*workflow.ScheduledExecution
	var iterErr error
	err := s.kv.IteratePrefix(regionPrefix(regionScheduledExec), func(key, value []byte) bool {
		var se workflow.ScheduledExecution
		if err := json.Unmarshal(value, &se); err != nil {
			iterErr = apperrors.Wrap(apperrors.KindSerializationError, err)
			return false
		}
		if se.FireAt.Unix() > cutoffUnix {
			return false // ascending key order means everything after this is also in the future
		}
		out = append(out, &se)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, iterErr
}

// scheduledExecKey sorts ascending by fire time: region byte, big-endian
// unix seconds (so lexicographic byte order matches numeric order), then id
// to disambiguate same-second fires.
func scheduledExecKey(fireAtUnix int64, id string) []byte {
	key := make([]byte, 0, 1+8+len(id))
	key = append(key, byte(regionScheduledExec))
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(fireAtUnix))
	key = append(key, b...)
	key = append(key, []byte(id)...)
	return key
}

// ====== Generic region access for the remaining regions ======
//
// Node registry, event listeners, retry policies, workflow state, user
// profiles, subscriptions, integrations, OAuth tokens, API connections, and
// templates all share the same "JSON blob keyed by string id" shape; rather
// than hand-writing eleven near-identical Save/Get/Delete/List trios, they
// go through PutRegion/GetRegion/DeleteRegion/ListRegion keyed by a Region
// handle, the same way the teacher's generic KV wrapper stays type-agnostic
// and leaves marshaling to the caller.

// Region identifies one of the non-workflow, non-execution durable regions.
type Region region

const (
	RegionNodeRegistry       Region = Region(regionNodeRegistry)
	RegionEventListeners     Region = Region(regionEventListeners)
	RegionScheduledWorkflows Region = Region(regionScheduledWorkflows)
	RegionRetryPolicies      Region = Region(regionRetryPolicies)
	RegionWorkflowState      Region = Region(regionWorkflowState)
	RegionUserProfiles       Region = Region(regionUserProfiles)
	RegionSubscriptions      Region = Region(regionSubscriptions)
	RegionIntegrations       Region = Region(regionIntegrations)
	RegionOAuthTokens        Region = Region(regionOAuthTokens)
	RegionAPIConnections     Region = Region(regionAPIConnections)
	RegionGlobalTemplates    Region = Region(regionGlobalTemplates)
	RegionUserTemplates      Region = Region(regionUserTemplates)
	RegionUserSettings       Region = Region(regionUserSettings)
)

// PutRegion stores v (JSON-encoded) under id within region r.
func (s *WorkflowStore) PutRegion(r Region, id string, v interface{}) error {
	return putJSON(s.kv, regionKey(region(r), id), v)
}

// GetRegion loads the value stored under id within region r into v. Returns
// found=false if no value is stored.
func (s *WorkflowStore) GetRegion(r Region, id string, v interface{}) (bool, error) {
	return getJSON(s.kv, regionKey(region(r), id), v)
}

// DeleteRegion removes the value stored under id within region r.
func (s *WorkflowStore) DeleteRegion(r Region, id string) error {
	return s.kv.Delete(regionKey(region(r), id))
}

// ListRegion invokes fn for every (id, rawJSON) pair stored in region r,
// stopping early if fn returns false. Callers unmarshal rawJSON themselves
// since PutRegion accepts any concrete type per region.
func (s *WorkflowStore) ListRegion(r Region, fn func(id string, rawJSON []byte) bool) error {
	prefix := regionPrefix(region(r))
	return s.kv.IteratePrefix(prefix, func(key, value []byte) bool {
		if len(key) <= len(prefix) {
			return true
		}
		return fn(string(key[len(prefix):]), value)
	})
}
