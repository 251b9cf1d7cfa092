// Copyright 2025 DeFlow
//
// Package snapshot implements the pre-snapshot/post-restore hooks a
// canister's stable-memory upgrade path calls automatically (§4.14 in
// original_source/src/DeFlow_pool/src/pool_manager.rs's pre_upgrade/
// post_upgrade pair). This service isn't a canister, so there's no runtime
// upgrade hook to bind to - PreSnapshot/PostRestore are invoked explicitly
// at shutdown and startup instead, writing through the same
// store.WorkflowStore region every other durable index already uses rather
// than a second persistence mechanism.
package snapshot

import (
	"context"
	"log"

	"github.com/Legatia/deflow/pkg/pool"
	"github.com/Legatia/deflow/pkg/scheduler"
	"github.com/Legatia/deflow/pkg/store"
	"github.com/Legatia/deflow/pkg/treasury"
)

// Component ids within store.RegionWorkflowState. Unexported: callers only
// ever go through Manager, never address a component id directly.
const (
	componentPool     = "pool_state"
	componentTreasury = "treasury_ledger"
)

// Manager persists and restores PoolState and TreasuryLedger across process
// restarts, logging totals and counts before and after so an operator can
// confirm a restore recovered the same state it snapshotted.
type Manager struct {
	store  *store.WorkflowStore
	logger *log.Logger
}

// NewManager creates a Manager writing through s and logging via logger. A
// nil logger falls back to the standard logger, matching the rest of the
// tree's optional-logger pattern.
func NewManager(s *store.WorkflowStore, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(log.Writer(), "[snapshot] ", log.LstdFlags)
	}
	return &Manager{store: s, logger: logger}
}

// PreSnapshot serializes poolState and ledger into the durable store and
// logs an audit line with their totals plus the durable workflow/execution/
// schedule counts that already live in their own regions, untouched by this
// call - WorkflowStore's own regions and Scheduler's durable entries never
// need a second copy, they're already in the KV backend.
func (m *Manager) PreSnapshot(poolState *pool.State, ledger *treasury.Ledger) error {
	if err := m.store.PutRegion(store.RegionWorkflowState, componentPool, poolState); err != nil {
		return err
	}
	if err := m.store.PutRegion(store.RegionWorkflowState, componentTreasury, ledger); err != nil {
		return err
	}

	workflows, _ := m.store.CountWorkflows()
	executions, _ := m.store.CountExecutions()
	scheduled, _ := m.store.CountScheduledExecutions()

	m.logger.Printf(
		"pre-snapshot: pool phase=%s liquidity_usd=%.2f reserves=%d | treasury earnings_members=%d emergency_fund=%.2f | workflows=%d executions=%d scheduled=%d",
		poolState.Phase, poolState.TotalLiquidityUSD, len(poolState.Reserves),
		len(ledger.TeamMemberEarnings), ledger.EmergencyFund,
		workflows, executions, scheduled,
	)
	return nil
}

// PostRestore reloads PoolState and TreasuryLedger from the durable store,
// falling back to defaultPool/defaultLedger untouched if this is a first
// boot with nothing snapshotted yet, then starts sched so its durable
// ScheduledExecution entries resume firing - Scheduler already recovers its
// due/overdue set from WorkflowStore on every Start call, so "re-arming
// timers" here is just calling Start after the rest of this restore has
// run rather than a separate timer-rebuild step.
func (m *Manager) PostRestore(ctx context.Context, sched *scheduler.Scheduler, defaultPool *pool.State, defaultLedger *treasury.Ledger) (*pool.State, *treasury.Ledger, error) {
	poolState := defaultPool
	poolFound, err := m.store.GetRegion(store.RegionWorkflowState, componentPool, poolState)
	if err != nil {
		return nil, nil, err
	}

	ledger := defaultLedger
	ledgerFound, err := m.store.GetRegion(store.RegionWorkflowState, componentTreasury, ledger)
	if err != nil {
		return nil, nil, err
	}

	if err := sched.Start(ctx); err != nil {
		return nil, nil, err
	}

	workflows, _ := m.store.CountWorkflows()
	executions, _ := m.store.CountExecutions()
	scheduled, _ := m.store.CountScheduledExecutions()

	m.logger.Printf(
		"post-restore: pool_restored=%t treasury_restored=%t pool phase=%s liquidity_usd=%.2f | workflows=%d executions=%d scheduled=%d",
		poolFound, ledgerFound, poolState.Phase, poolState.TotalLiquidityUSD,
		workflows, executions, scheduled,
	)
	return poolState, ledger, nil
}
