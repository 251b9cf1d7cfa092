// Copyright 2025 DeFlow
//
// Validator checks a Workflow's structural invariants before it is allowed
// to activate: unique node ids, connections referencing real endpoints, no
// cycles (Kahn's algorithm), and a well-formed trigger.

package workflow

import (
	"strings"

	"github.com/Legatia/deflow/pkg/apperrors"
)

// Validator validates a Workflow's graph structure.
// Validator checks a workflow's structural soundness before it's persisted
// or run. registry supplies the Config schema each node type is checked
// against; a nil registry falls back to DefaultNodeRegistry.
type Validator struct {
	registry *NodeRegistry
}

// NewValidator creates a Validator backed by DefaultNodeRegistry.
func NewValidator() *Validator { return &Validator{registry: DefaultNodeRegistry()} }

// NewValidatorWithRegistry creates a Validator that checks node Config
// against the schemas registered in registry.
func NewValidatorWithRegistry(registry *NodeRegistry) *Validator {
	if registry == nil {
		registry = DefaultNodeRegistry()
	}
	return &Validator{registry: registry}
}

// Validate runs every structural check and returns the first failure. Order
// matches spec §7's validation propagation: missing/duplicate ids first,
// then node Config schema, then connection integrity, then cycle detection,
// then trigger shape.
func (v *Validator) Validate(wf *Workflow) error {
	if err := v.validateUniqueNodeIDs(wf); err != nil {
		return err
	}
	if err := v.validateNodeConfigs(wf); err != nil {
		return err
	}
	if err := v.validateConnections(wf); err != nil {
		return err
	}
	if err := v.validateNoCycles(wf); err != nil {
		return err
	}
	if err := v.validateTrigger(wf); err != nil {
		return err
	}
	return nil
}

// validateNodeConfigs checks every node whose Type has a registered schema:
// every required param must be present, and every present param's value
// must match its declared semantic type. Node types with no registered
// schema are left unchecked here.
func (v *Validator) validateNodeConfigs(wf *Workflow) error {
	if v.registry == nil {
		return nil
	}
	for _, n := range wf.Nodes {
		schema, ok := v.registry.Lookup(n.Type)
		if !ok {
			continue
		}
		for _, param := range schema.Params {
			value, present := n.Config[param.Name]
			if !present {
				if param.Required {
					return apperrors.Newf(apperrors.KindMissingParameter, "node %q: missing required parameter %q", n.ID, param.Name)
				}
				continue
			}
			if !paramTypeMatches(value, param.Type) {
				return apperrors.Newf(apperrors.KindInvalidParameterType, "node %q: parameter %q must be of type %s", n.ID, param.Name, param.Type)
			}
		}
	}
	return nil
}

func (v *Validator) validateUniqueNodeIDs(wf *Workflow) error {
	seen := make(map[string]bool, len(wf.Nodes))
	for _, n := range wf.Nodes {
		if n.ID == "" {
			return apperrors.New(apperrors.KindInvalidNodeConfig, "node id must not be empty")
		}
		if seen[n.ID] {
			return apperrors.Newf(apperrors.KindDuplicateNodeID, "duplicate node id %q", n.ID)
		}
		seen[n.ID] = true
	}
	return nil
}

func (v *Validator) validateConnections(wf *Workflow) error {
	ids := nodeIDSet(wf)
	for _, c := range wf.Connections {
		if !ids[c.FromNodeID] {
			return apperrors.Newf(apperrors.KindInvalidConnection, "connection references unknown source node %q", c.FromNodeID)
		}
		if !ids[c.ToNodeID] {
			return apperrors.Newf(apperrors.KindInvalidConnection, "connection references unknown target node %q", c.ToNodeID)
		}
		if c.FromNodeID == c.ToNodeID {
			return apperrors.Newf(apperrors.KindInvalidConnection, "connection from %q to itself is not allowed", c.FromNodeID)
		}
	}
	return nil
}

// validateNoCycles runs Kahn's algorithm: repeatedly remove nodes with
// in-degree zero. If nodes remain once no more can be removed, they form a
// cycle.
func (v *Validator) validateNoCycles(wf *Workflow) error {
	inDegree := make(map[string]int, len(wf.Nodes))
	adjacency := make(map[string][]string, len(wf.Nodes))

	for _, n := range wf.Nodes {
		inDegree[n.ID] = 0
	}
	for _, c := range wf.Connections {
		adjacency[c.FromNodeID] = append(adjacency[c.FromNodeID], c.ToNodeID)
		inDegree[c.ToNodeID]++
	}

	var queue []string
	for _, n := range wf.Nodes {
		if inDegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	visited := 0
	for len(queue) > 0 {
		// Deterministic successor ordering: process the queue in the order
		// nodes were appended, and walk each node's outgoing edges in the
		// order they appear in wf.Connections. The engine orders its own
		// walk by sorting ready node ids, so the two orders can differ;
		// only the visited count matters for cycle detection here.
		id := queue[0]
		queue = queue[1:]
		visited++

		for _, next := range adjacency[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if visited != len(wf.Nodes) {
		return apperrors.New(apperrors.KindCycleDetected, "workflow graph contains a cycle")
	}
	return nil
}

// validateTrigger checks the trigger is well-formed. Cron expressions are
// required to specify a step of at least one minute (no sub-minute "*/0"
// style triggers); this check only rejects the empty-expression case up
// front. A cron the scheduler cannot parse is rejected when the workflow is
// scheduled; no fallback interval is substituted.
func (v *Validator) validateTrigger(wf *Workflow) error {
	switch wf.Trigger.Type {
	case TriggerManual, TriggerWebhook:
		return nil
	case TriggerEvent:
		if strings.TrimSpace(wf.Trigger.EventFilter) == "" {
			return apperrors.New(apperrors.KindInvalidTrigger, "event trigger requires a non-empty event filter")
		}
		return nil
	case TriggerCron:
		if strings.TrimSpace(wf.Trigger.CronExpression) == "" {
			return apperrors.New(apperrors.KindInvalidTrigger, "cron trigger requires a non-empty cron expression")
		}
		return nil
	default:
		return apperrors.Newf(apperrors.KindInvalidTrigger, "unknown trigger type %q", wf.Trigger.Type)
	}
}

func nodeIDSet(wf *Workflow) map[string]bool {
	ids := make(map[string]bool, len(wf.Nodes))
	for _, n := range wf.Nodes {
		ids[n.ID] = true
	}
	return ids
}
