// Copyright 2025 DeFlow
//
// Package engine walks a workflow's node graph to completion: topological
// order, per-node retry under workflow.RetryPolicy, per-node-type circuit
// breaking, and cooperative cancellation. Grounded on
// pkg/execution/executor.go's adapter-wiring style (NodeExecutor is the
// same kind of thin dependency-injected interface as AnchorManagerWrapper)
// and pkg/apperrors for the error taxonomy nodes report through.

package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Legatia/deflow/pkg/apperrors"
	"github.com/Legatia/deflow/pkg/metrics"
	"github.com/Legatia/deflow/pkg/store"
	"github.com/Legatia/deflow/pkg/workflow"
)

func newExecutionID() uuid.UUID { return uuid.New() }

// NodeExecutor runs a single node, given the accumulated output of its
// upstream nodes. Implementations are registered per node Type (e.g.
// "action.transfer", "condition.balance_gte") the same way ChainExecutionStrategy
// implementations are registered per chain.
type NodeExecutor interface {
	Execute(ctx context.Context, node workflow.Node, inputs map[string]interface{}) (output map[string]interface{}, err error)
}

// NodeExecutorFunc adapts a plain function to NodeExecutor.
type NodeExecutorFunc func(ctx context.Context, node workflow.Node, inputs map[string]interface{}) (map[string]interface{}, error)

func (f NodeExecutorFunc) Execute(ctx context.Context, node workflow.Node, inputs map[string]interface{}) (map[string]interface{}, error) {
	return f(ctx, node, inputs)
}

// Engine executes workflows node by node in topological order.
type Engine struct {
	store     *store.WorkflowStore
	executors map[string]NodeExecutor
	breakers  *CircuitBreakerRegistry
	logger    *log.Logger
}

// NewEngine creates an execution engine backed by store, with node executors
// registered by node type.
func NewEngine(s *store.WorkflowStore, executors map[string]NodeExecutor, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(log.Writer(), "[Engine] ", log.LstdFlags)
	}
	if executors == nil {
		executors = make(map[string]NodeExecutor)
	}
	return &Engine{
		store:     s,
		executors: executors,
		breakers:  NewCircuitBreakerRegistry(DefaultCircuitBreakerConfig()),
		logger:    logger,
	}
}

// RegisterExecutor adds or replaces the NodeExecutor for nodeType.
func (e *Engine) RegisterExecutor(nodeType string, exec NodeExecutor) {
	e.executors[nodeType] = exec
}

// Run executes wf start to finish, persisting an Execution record (and one
// NodeExecution per node run) to the store as it goes, and returns the
// final Execution.
func (e *Engine) Run(ctx context.Context, wf *workflow.Workflow) (*workflow.Execution, error) {
	order, err := topoOrder(wf)
	if err != nil {
		return nil, err
	}

	ex := &workflow.Execution{
		ID:         newExecutionID(),
		WorkflowID: wf.ID,
		Status:     workflow.ExecutionRunning,
		StartedAt:  time.Now(),
	}
	if e.store != nil {
		_ = e.store.SaveExecution(ex)
	}

	outputs := make(map[string]map[string]interface{}, len(wf.Nodes))
	byID := nodesByID(wf)
	incoming := incomingEdges(wf)

	for _, nodeID := range order {
		select {
		case <-ctx.Done():
			ex.Status = workflow.ExecutionCancelled
			ex.Error = ctx.Err().Error()
			e.finish(ex)
			metrics.WorkflowExecutionsTotal.WithLabelValues(string(ex.Status)).Inc()
			return ex, ctx.Err()
		default:
		}

		node := byID[nodeID]
		if !e.edgeConditionsPass(node, incoming[nodeID], outputs) {
			nr := workflow.NodeExecution{NodeID: nodeID, Status: workflow.NodeExecutionSkipped}
			ex.NodeRuns = append(ex.NodeRuns, nr)
			continue
		}

		inputs := mergeUpstreamOutputs(incoming[nodeID], outputs)
		nr, out, runErr := e.runNodeWithRetry(ctx, node, inputs, wf.RetryPolicy)
		ex.NodeRuns = append(ex.NodeRuns, nr)

		if runErr != nil {
			ex.Status = workflow.ExecutionFailed
			ex.Error = runErr.Error()
			e.finish(ex)
			metrics.WorkflowExecutionsTotal.WithLabelValues(string(ex.Status)).Inc()
			return ex, runErr
		}
		outputs[nodeID] = out
	}

	ex.Status = workflow.ExecutionSucceeded
	e.finish(ex)
	metrics.WorkflowExecutionsTotal.WithLabelValues(string(ex.Status)).Inc()
	return ex, nil
}

func (e *Engine) finish(ex *workflow.Execution) {
	now := time.Now()
	ex.FinishedAt = &now
	if e.store != nil {
		_ = e.store.SaveExecution(ex)
	}
}

// runNodeWithRetry executes one node under the workflow's retry policy, using
// a per-node-type circuit breaker to short-circuit calls to a reliably
// failing node type.
func (e *Engine) runNodeWithRetry(ctx context.Context, node workflow.Node, inputs map[string]interface{}, policy workflow.RetryPolicy) (workflow.NodeExecution, map[string]interface{}, error) {
	executor, ok := e.executors[node.Type]
	if !ok {
		err := apperrors.Newf(apperrors.KindInvalidNodeConfig, "no executor registered for node type %q", node.Type)
		return failedNodeExecution(node.ID, 0, err), nil, err
	}

	breaker := e.breakers.For(node.Type)
	maxAttempts := policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		metrics.CircuitBreakerState.WithLabelValues(node.Type).Set(metrics.CircuitStateValue(string(breaker.State())))
		if !breaker.Allow() {
			lastErr = apperrors.Newf(apperrors.KindNetworkError, "circuit open for node type %q", node.Type)
			break
		}

		started := time.Now()
		out, err := executor.Execute(ctx, node, inputs)
		metrics.NodeExecutionDuration.WithLabelValues(node.Type).Observe(time.Since(started).Seconds())
		if err == nil {
			breaker.RecordSuccess()
			metrics.CircuitBreakerState.WithLabelValues(node.Type).Set(metrics.CircuitStateValue(string(breaker.State())))
			metrics.NodeExecutionsTotal.WithLabelValues(node.Type, string(workflow.NodeExecutionSucceeded)).Inc()
			finished := time.Now()
			return workflow.NodeExecution{
				NodeID:     node.ID,
				Status:     workflow.NodeExecutionSucceeded,
				Attempt:    attempt,
				StartedAt:  started,
				FinishedAt: &finished,
				Output:     out,
			}, out, nil
		}

		breaker.RecordFailure()
		metrics.CircuitBreakerState.WithLabelValues(node.Type).Set(metrics.CircuitStateValue(string(breaker.State())))
		lastErr = err
		if !apperrors.IsRetryable(err) {
			break
		}
		if attempt < maxAttempts-1 {
			select {
			case <-ctx.Done():
				metrics.NodeExecutionsTotal.WithLabelValues(node.Type, string(workflow.NodeExecutionFailed)).Inc()
				return failedNodeExecution(node.ID, attempt, ctx.Err()), nil, ctx.Err()
			case <-time.After(policy.DelayForAttempt(attempt)):
			}
		}
	}

	metrics.NodeExecutionsTotal.WithLabelValues(node.Type, string(workflow.NodeExecutionFailed)).Inc()
	return failedNodeExecution(node.ID, maxAttempts-1, lastErr), nil, lastErr
}

func failedNodeExecution(nodeID string, attempt int, err error) workflow.NodeExecution {
	now := time.Now()
	return workflow.NodeExecution{
		NodeID:     nodeID,
		Status:     workflow.NodeExecutionFailed,
		Attempt:    attempt,
		FinishedAt: &now,
		Error:      err.Error(),
	}
}

// edgeConditionsPass reports whether every incoming edge to nodeID that
// carries a non-empty Condition is satisfied. A node with no incoming edges,
// or whose edges carry no conditions, always runs.
func (e *Engine) edgeConditionsPass(node workflow.Node, incoming []workflow.Connection, outputs map[string]map[string]interface{}) bool {
	for _, c := range incoming {
		if c.Condition == "" {
			continue
		}
		upstream := outputs[c.FromNodeID]
		if !evaluateCondition(c.Condition, upstream) {
			return false
		}
	}
	return true
}

// evaluateCondition checks a "key op value" condition against an upstream
// node's output. Supported operators: ==, !=, >, >=, <, <=. Unparseable
// conditions fail closed (the edge does not pass) rather than panicking the
// engine on a malformed workflow.
func evaluateCondition(expr string, output map[string]interface{}) bool {
	key, op, want, ok := parseCondition(expr)
	if !ok {
		return false
	}
	got, present := output[key]
	if !present {
		return false
	}

	gf, gok := toFloat(got)
	wf, wok := toFloat(want)
	if gok && wok {
		switch op {
		case "==":
			return gf == wf
		case "!=":
			return gf != wf
		case ">":
			return gf > wf
		case ">=":
			return gf >= wf
		case "<":
			return gf < wf
		case "<=":
			return gf <= wf
		}
	}

	switch op {
	case "==":
		return fmt.Sprintf("%v", got) == want
	case "!=":
		return fmt.Sprintf("%v", got) != want
	}
	return false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func parseCondition(expr string) (key, op, value string, ok bool) {
	for _, candidate := range []string{">=", "<=", "==", "!=", ">", "<"} {
		if idx := indexOf(expr, candidate); idx >= 0 {
			return trim(expr[:idx]), candidate, trim(expr[idx+len(candidate):]), true
		}
	}
	return "", "", "", false
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func trim(s string) string {
	start, end := 0, len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t') {
		end--
	}
	return s[start:end]
}

func mergeUpstreamOutputs(incoming []workflow.Connection, outputs map[string]map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{})
	for _, c := range incoming {
		for k, v := range outputs[c.FromNodeID] {
			merged[k] = v
		}
	}
	return merged
}

func nodesByID(wf *workflow.Workflow) map[string]workflow.Node {
	m := make(map[string]workflow.Node, len(wf.Nodes))
	for _, n := range wf.Nodes {
		m[n.ID] = n
	}
	return m
}

func incomingEdges(wf *workflow.Workflow) map[string][]workflow.Connection {
	m := make(map[string][]workflow.Connection)
	for _, c := range wf.Connections {
		m[c.ToNodeID] = append(m[c.ToNodeID], c)
	}
	return m
}

// topoOrder computes a deterministic topological order via Kahn's algorithm,
// matching the successor-ordering validator.validateNoCycles already
// verified is acyclic. Nodes are processed by id lexical order at each tie
// so the same workflow always executes in the same order.
func topoOrder(wf *workflow.Workflow) ([]string, error) {
	inDegree := make(map[string]int, len(wf.Nodes))
	adjacency := make(map[string][]string, len(wf.Nodes))

	for _, n := range wf.Nodes {
		inDegree[n.ID] = 0
	}
	for _, c := range wf.Connections {
		adjacency[c.FromNodeID] = append(adjacency[c.FromNodeID], c.ToNodeID)
		inDegree[c.ToNodeID]++
	}
	for from := range adjacency {
		sort.Strings(adjacency[from])
	}

	var queue []string
	for _, n := range wf.Nodes {
		if inDegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}
	sort.Strings(queue)

	var order []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		var newlyReady []string
		for _, next := range adjacency[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				newlyReady = append(newlyReady, next)
			}
		}
		sort.Strings(newlyReady)
		queue = append(queue, newlyReady...)
	}

	if len(order) != len(wf.Nodes) {
		return nil, apperrors.New(apperrors.KindCycleDetected, "workflow graph contains a cycle")
	}
	return order, nil
}
