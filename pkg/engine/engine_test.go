package engine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Legatia/deflow/pkg/apperrors"
	"github.com/Legatia/deflow/pkg/workflow"
)

func passthroughExecutor(outputs map[string]interface{}) NodeExecutor {
	return NodeExecutorFunc(func(ctx context.Context, node workflow.Node, inputs map[string]interface{}) (map[string]interface{}, error) {
		return outputs, nil
	})
}

func twoStepWorkflow(policy workflow.RetryPolicy) *workflow.Workflow {
	return &workflow.Workflow{
		ID: uuid.New(),
		Nodes: []workflow.Node{
			{ID: "a", Type: "step.one"},
			{ID: "b", Type: "step.two"},
		},
		Connections: []workflow.Connection{
			{FromNodeID: "a", ToNodeID: "b"},
		},
		RetryPolicy: policy,
	}
}

func TestEngineRunSucceedsInTopologicalOrder(t *testing.T) {
	var order []string
	exec := func(name string) NodeExecutor {
		return NodeExecutorFunc(func(ctx context.Context, node workflow.Node, inputs map[string]interface{}) (map[string]interface{}, error) {
			order = append(order, name)
			return map[string]interface{}{"from": name}, nil
		})
	}

	e := NewEngine(nil, map[string]NodeExecutor{
		"step.one": exec("a"),
		"step.two": exec("b"),
	}, nil)

	ex, err := e.Run(context.Background(), twoStepWorkflow(workflow.DefaultRetryPolicy()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ex.Status != workflow.ExecutionSucceeded {
		t.Fatalf("expected ExecutionSucceeded, got %v", ex.Status)
	}
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("expected topological order [a b], got %v", order)
	}
	if len(ex.NodeRuns) != 2 {
		t.Fatalf("expected 2 node runs recorded, got %d", len(ex.NodeRuns))
	}
}

func TestEngineRunFailsWithoutRegisteredExecutor(t *testing.T) {
	e := NewEngine(nil, map[string]NodeExecutor{
		"step.one": passthroughExecutor(nil),
	}, nil)

	ex, err := e.Run(context.Background(), twoStepWorkflow(workflow.DefaultRetryPolicy()))
	if kind, ok := apperrors.KindOf(err); !ok || kind != apperrors.KindInvalidNodeConfig {
		t.Fatalf("expected KindInvalidNodeConfig for a missing executor, got %v (%v)", kind, err)
	}
	if ex.Status != workflow.ExecutionFailed {
		t.Fatalf("expected ExecutionFailed, got %v", ex.Status)
	}
}

func TestEngineRetriesNetworkErrorsAndSucceedsOnRecovery(t *testing.T) {
	attempts := 0
	flaky := NodeExecutorFunc(func(ctx context.Context, node workflow.Node, inputs map[string]interface{}) (map[string]interface{}, error) {
		attempts++
		if attempts < 3 {
			return nil, apperrors.New(apperrors.KindNetworkError, "rpc timed out")
		}
		return map[string]interface{}{"ok": true}, nil
	})

	e := NewEngine(nil, map[string]NodeExecutor{
		"step.one": flaky,
		"step.two": passthroughExecutor(nil),
	}, nil)

	policy := workflow.RetryPolicy{MaxAttempts: 5, InitialDelay: time.Millisecond, BackoffMultiplier: 1, MaxDelay: time.Millisecond}
	ex, err := e.Run(context.Background(), twoStepWorkflow(policy))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ex.Status != workflow.ExecutionSucceeded {
		t.Fatalf("expected eventual success, got %v", ex.Status)
	}
	if attempts != 3 {
		t.Fatalf("expected exactly 3 attempts before success, got %d", attempts)
	}
}

func TestEngineDoesNotRetryNonRetryableErrors(t *testing.T) {
	attempts := 0
	alwaysBadConfig := NodeExecutorFunc(func(ctx context.Context, node workflow.Node, inputs map[string]interface{}) (map[string]interface{}, error) {
		attempts++
		return nil, apperrors.New(apperrors.KindInvalidNodeConfig, "bad config")
	})

	e := NewEngine(nil, map[string]NodeExecutor{
		"step.one": alwaysBadConfig,
		"step.two": passthroughExecutor(nil),
	}, nil)

	policy := workflow.RetryPolicy{MaxAttempts: 5, InitialDelay: time.Millisecond, BackoffMultiplier: 1, MaxDelay: time.Millisecond}
	_, err := e.Run(context.Background(), twoStepWorkflow(policy))
	if kind, ok := apperrors.KindOf(err); !ok || kind != apperrors.KindInvalidNodeConfig {
		t.Fatalf("expected KindInvalidNodeConfig, got %v (%v)", kind, err)
	}
	if attempts != 1 {
		t.Fatalf("expected a non-retryable error to stop after 1 attempt, got %d", attempts)
	}
}

func TestEngineSkipsNodeWhenEdgeConditionFails(t *testing.T) {
	var ranB bool
	e := NewEngine(nil, map[string]NodeExecutor{
		"step.one": NodeExecutorFunc(func(ctx context.Context, node workflow.Node, inputs map[string]interface{}) (map[string]interface{}, error) {
			return map[string]interface{}{"balance": 5.0}, nil
		}),
		"step.two": NodeExecutorFunc(func(ctx context.Context, node workflow.Node, inputs map[string]interface{}) (map[string]interface{}, error) {
			ranB = true
			return nil, nil
		}),
	}, nil)

	wf := twoStepWorkflow(workflow.DefaultRetryPolicy())
	wf.Connections[0].Condition = "balance >= 10"

	ex, err := e.Run(context.Background(), wf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ranB {
		t.Fatal("expected node b to be skipped when its edge condition fails")
	}
	if ex.NodeRuns[1].Status != workflow.NodeExecutionSkipped {
		t.Fatalf("expected node b marked skipped, got %v", ex.NodeRuns[1].Status)
	}
}

func TestEngineRunRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := NewEngine(nil, map[string]NodeExecutor{
		"step.one": passthroughExecutor(nil),
		"step.two": passthroughExecutor(nil),
	}, nil)

	ex, err := e.Run(ctx, twoStepWorkflow(workflow.DefaultRetryPolicy()))
	if err == nil {
		t.Fatal("expected context cancellation to surface as an error")
	}
	if ex.Status != workflow.ExecutionCancelled {
		t.Fatalf("expected ExecutionCancelled, got %v", ex.Status)
	}
}
