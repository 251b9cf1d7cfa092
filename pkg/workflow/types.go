// Copyright 2025 DeFlow
//
// Package workflow defines the node-graph data model every other component
// (store, scheduler, engine) operates on. IDs use google/uuid the way the
// teacher's AnchorRequest/ScheduledAnchorRequest do.

package workflow

import (
	"time"

	"github.com/google/uuid"
)

// Workflow is a user-authored automation graph: a set of nodes connected
// into a DAG, fired by a Trigger.
type Workflow struct {
	ID          uuid.UUID
	OwnerID     string
	Name        string
	Description string
	Nodes       []Node
	Connections []Connection
	Trigger     Trigger
	RetryPolicy RetryPolicy
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Node is one step in a workflow graph.
type Node struct {
	ID     string
	Type   string // e.g. "trigger.webhook", "action.transfer", "condition.balance_gte"
	Label  string
	Config map[string]interface{}
}

// Connection is a directed edge between two nodes, optionally gated by a
// condition expression evaluated against the upstream node's output.
type Connection struct {
	FromNodeID string
	ToNodeID   string
	Condition  string
}

// TriggerType enumerates how a workflow is fired.
type TriggerType string

const (
	TriggerManual  TriggerType = "manual"
	TriggerCron    TriggerType = "cron"
	TriggerEvent   TriggerType = "event"
	TriggerWebhook TriggerType = "webhook"
)

// Trigger describes what fires a workflow.
type Trigger struct {
	Type           TriggerType
	CronExpression string
	EventFilter    string
}

// RetryPolicy is the exponential backoff schedule the engine applies to a
// failed node execution: delay = min(initial * multiplier^attempt, max).
type RetryPolicy struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	BackoffMultiplier float64
	MaxDelay          time.Duration
}

// DefaultRetryPolicy matches the defaults applied by the template loader
// (pkg/config.WorkflowTemplate.applyDefaults) so a workflow created without
// an explicit policy behaves identically to one cloned from a template.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		InitialDelay:      1 * time.Second,
		BackoffMultiplier: 2.0,
		MaxDelay:          30 * time.Second,
	}
}

// DelayForAttempt computes the backoff delay for the given zero-indexed
// retry attempt under this policy.
func (p RetryPolicy) DelayForAttempt(attempt int) time.Duration {
	delay := float64(p.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= p.BackoffMultiplier
	}
	if d := time.Duration(delay); d < p.MaxDelay {
		return d
	}
	return p.MaxDelay
}

// ExecutionStatus is the lifecycle state of a workflow run.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionSucceeded ExecutionStatus = "succeeded"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// Execution is one run of a Workflow.
type Execution struct {
	ID         uuid.UUID
	WorkflowID uuid.UUID
	Status     ExecutionStatus
	StartedAt  time.Time
	FinishedAt *time.Time
	NodeRuns   []NodeExecution
	Error      string
}

// NodeExecutionStatus is the lifecycle state of a single node run.
type NodeExecutionStatus string

const (
	NodeExecutionPending   NodeExecutionStatus = "pending"
	NodeExecutionRunning   NodeExecutionStatus = "running"
	NodeExecutionSucceeded NodeExecutionStatus = "succeeded"
	NodeExecutionFailed    NodeExecutionStatus = "failed"
	NodeExecutionSkipped   NodeExecutionStatus = "skipped"
)

// NodeExecution is the result of running one Node within an Execution.
type NodeExecution struct {
	NodeID     string
	Status     NodeExecutionStatus
	Attempt    int
	StartedAt  time.Time
	FinishedAt *time.Time
	Output     map[string]interface{}
	Error      string
}

// ScheduledExecution is a due-in-the-future run of a workflow, persisted so
// the Scheduler can recover pending fires across a restart.
type ScheduledExecution struct {
	ID         uuid.UUID
	WorkflowID uuid.UUID
	FireAt     time.Time
	Recurring  bool
}
