// Copyright 2025 DeFlow
//
// Package pool implements the liquidity pool phase machine: bootstrap,
// active, emergency, terminating, terminated. Ported line-for-line in
// semantics from original_source/src/DeFlow_pool/src/pool_manager.rs,
// including its exact reserve ratios, the $400K/100%-bootstrap activation
// gate, the absolute withdrawal block during bootstrap, and its simplified
// hardcoded USD price table. Checked-arithmetic reserve updates use Go's
// overflow-checked add/sub helpers in place of Rust's checked_add/checked_sub.

package pool

import (
	"sync"
	"time"

	"github.com/Legatia/deflow/pkg/apperrors"
	"github.com/Legatia/deflow/pkg/chain"
	"github.com/Legatia/deflow/pkg/metrics"
)

// Asset is a pool-supported token, independent of which chain it lives on.
type Asset string

const (
	AssetBTC  Asset = "BTC"
	AssetETH  Asset = "ETH"
	AssetUSDC Asset = "USDC"
	AssetUSDT Asset = "USDT"
	AssetDAI  Asset = "DAI"
	AssetSOL  Asset = "SOL"
	AssetMATIC Asset = "MATIC"
	AssetAVAX Asset = "AVAX"
	AssetFLOW Asset = "FLOW"
)

type assetPrice struct {
	usd      float64
	decimals uint
}

// priceTable mirrors estimate_asset_usd_value's hardcoded prices - a known
// simplification carried over verbatim; a production system wires a price
// oracle here instead.
var priceTable = map[Asset]assetPrice{
	AssetBTC:  {45000.0, 8},
	AssetETH:  {2500.0, 18},
	AssetUSDC: {1.0, 6},
	AssetUSDT: {1.0, 6},
	AssetDAI:  {1.0, 18},
	AssetSOL:  {100.0, 9},
	AssetMATIC: {0.8, 18},
	AssetAVAX: {25.0, 18},
	AssetFLOW: {0.10, 8},
}

// primaryChainForAsset mirrors get_primary_chain_for_asset.
var primaryChainForAsset = map[Asset]chain.ChainId{
	AssetBTC:  chain.ChainBitcoin,
	AssetETH:  chain.ChainEthereum,
	AssetUSDC: chain.ChainEthereum,
	AssetUSDT: chain.ChainEthereum,
	AssetDAI:  chain.ChainEthereum,
	AssetSOL:  chain.ChainSolana,
	AssetMATIC: chain.ChainPolygon,
	AssetAVAX: chain.ChainAvalanche,
	AssetFLOW: chain.ChainEthereum,
}

// Phase is the pool's lifecycle state.
type Phase string

const (
	PhaseBootstrapping Phase = "bootstrapping"
	PhaseActive        Phase = "active"
	PhaseEmergency     Phase = "emergency"
	PhaseTerminating   Phase = "terminating"
	PhaseTerminated    Phase = "terminated"
)

// Reserve tracks one asset's liquidity within one chain.
type Reserve struct {
	TotalAmount         uint64
	FeeContributedAmount uint64
	UtilizationRate     float64
	DailyGrowthRate     float64
	LastUpdated         time.Time
}

// State is the pool's full balance sheet and phase.
type State struct {
	Phase             Phase
	EmergencyReason   string
	ActivatedAt       *time.Time
	PausedAt          *time.Time
	Reserves          map[chain.ChainId]map[Asset]*Reserve
	BootstrapTargets  map[Asset]uint64
	TotalLiquidityUSD float64
}

// NewState creates a pool in the bootstrapping phase with no reserves.
func NewState() *State {
	return &State{
		Phase:            PhaseBootstrapping,
		Reserves:         make(map[chain.ChainId]map[Asset]*Reserve),
		BootstrapTargets: make(map[Asset]uint64),
	}
}

// ActivationThresholdUSD is the minimum total liquidity required to leave
// bootstrap, matching the original's hardcoded $400,000 floor. Exposed as a
// var (not a const) so config.Config.PoolActivationThresholdUSD can override
// it per deployment.
var ActivationThresholdUSD = 400000.0

// Manager applies phase-machine transitions and reserve mutations to a
// State. Config mirrors PoolManager's three tunables.
type Manager struct {
	mu sync.Mutex

	MinReserveRatio     float64
	MaxUtilizationRatio float64
	RebalancingThreshold float64
}

// NewManager creates a Manager with the original's exact defaults: 20%
// minimum reserve, 80% max utilization, 10% rebalancing threshold.
func NewManager() *Manager {
	return &Manager{
		MinReserveRatio:      0.2,
		MaxUtilizationRatio:  0.8,
		RebalancingThreshold: 0.1,
	}
}

// AddToReserves records a fee deposit into the pool's reserves for asset,
// using its primary chain. Checked arithmetic rejects amounts that would
// overflow uint64, rolling back the total if the fee-contribution add fails.
func (m *Manager) AddToReserves(s *State, asset Asset, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	chainID := primaryChainForAsset[asset]
	reserve := m.getOrCreateReserve(s, chainID, asset)

	newTotal, ok := checkedAdd(reserve.TotalAmount, amount)
	if !ok {
		return apperrors.Newf(apperrors.KindArithmeticOverflow, "overflow adding %d to reserve total %d", amount, reserve.TotalAmount)
	}
	newFee, ok := checkedAdd(reserve.FeeContributedAmount, amount)
	if !ok {
		return apperrors.Newf(apperrors.KindArithmeticOverflow, "overflow adding %d to fee-contributed total %d", amount, reserve.FeeContributedAmount)
	}

	reserve.TotalAmount = newTotal
	reserve.FeeContributedAmount = newFee
	reserve.LastUpdated = time.Now()
	m.updateGrowthRate(reserve)
	m.updateTotalLiquidityUSD(s)
	return nil
}

// AddLiquidity records an external liquidity addition (not a fee) for asset
// on chainID.
func (m *Manager) AddLiquidity(s *State, chainID chain.ChainId, asset Asset, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	reserve := m.getOrCreateReserve(s, chainID, asset)
	newTotal, ok := checkedAdd(reserve.TotalAmount, amount)
	if !ok {
		return apperrors.Newf(apperrors.KindArithmeticOverflow, "overflow adding %d to reserve total %d", amount, reserve.TotalAmount)
	}
	reserve.TotalAmount = newTotal
	reserve.LastUpdated = time.Now()
	m.updateGrowthRate(reserve)
	m.updateTotalLiquidityUSD(s)
	return nil
}

// WithdrawForExecution withdraws amount of asset from the pool to fund a
// workflow's on-chain action. Blocked entirely during bootstrap (an
// absolute block, not a threshold check - no execution may ever drain
// bootstrap-phase reserves) and during emergency/terminating/terminated.
func (m *Manager) WithdrawForExecution(s *State, asset Asset, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch s.Phase {
	case PhaseBootstrapping:
		return apperrors.New(apperrors.KindPhaseBlocked, "withdrawals are disabled during bootstrap phase; funds can only accumulate")
	case PhaseActive:
		return m.executeWithdrawal(s, asset, amount)
	case PhaseEmergency:
		return apperrors.Newf(apperrors.KindEmergencyStopTriggered, "pool paused in emergency mode: %s", s.EmergencyReason)
	case PhaseTerminating:
		return apperrors.New(apperrors.KindPhaseBlocked, "withdrawals disabled during termination")
	case PhaseTerminated:
		return apperrors.New(apperrors.KindPhaseBlocked, "pool has been terminated, no withdrawals possible")
	default:
		return apperrors.Newf(apperrors.KindPhaseBlocked, "unknown pool phase %q", s.Phase)
	}
}

func (m *Manager) executeWithdrawal(s *State, asset Asset, amount uint64) error {
	chainID := primaryChainForAsset[asset]
	chainReserves, ok := s.Reserves[chainID]
	if !ok {
		return apperrors.New(apperrors.KindInsufficientReserves, "chain not found in reserves")
	}
	reserve, ok := chainReserves[asset]
	if !ok {
		return apperrors.New(apperrors.KindInsufficientReserves, "asset not found in reserves")
	}

	available := uint64(float64(reserve.TotalAmount) * m.MaxUtilizationRatio)
	if amount > available {
		return apperrors.Newf(apperrors.KindInsufficientReserves, "insufficient liquidity: available %d, requested %d", available, amount)
	}

	newTotal, ok := checkedSub(reserve.TotalAmount, amount)
	if !ok {
		return apperrors.New(apperrors.KindInsufficientReserves, "insufficient funds for withdrawal")
	}
	reserve.UtilizationRate = 1.0 - float64(newTotal)/(float64(newTotal)+float64(amount))
	reserve.TotalAmount = newTotal
	reserve.LastUpdated = time.Now()
	m.updateTotalLiquidityUSD(s)
	return nil
}

// SetBootstrapTargets installs the per-asset targets that must all be met
// before the pool can transition out of bootstrap. Only permitted while
// still bootstrapping.
func (m *Manager) SetBootstrapTargets(s *State, targets map[Asset]uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.Phase != PhaseBootstrapping {
		return apperrors.New(apperrors.KindPhaseBlocked, "can only set bootstrap targets during bootstrapping phase")
	}
	s.BootstrapTargets = targets
	return nil
}

// BootstrapProgress returns the fraction (0.0-1.0) of bootstrap targets met,
// averaged across all targets and capped per-target at 1.0. Returns 1.0 if
// no targets were set.
func (m *Manager) BootstrapProgress(s *State) float64 {
	if len(s.BootstrapTargets) == 0 {
		return 1.0
	}

	var total float64
	for asset, target := range s.BootstrapTargets {
		current := m.totalAssetAmount(s, asset)
		progress := float64(current) / float64(target)
		if progress > 1.0 {
			progress = 1.0
		}
		total += progress
	}
	return total / float64(len(s.BootstrapTargets))
}

// CheckBootstrapCompletion transitions to Active if every bootstrap target
// has been met. No-op outside bootstrap.
func (m *Manager) CheckBootstrapCompletion(s *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.Phase != PhaseBootstrapping {
		return nil
	}
	allMet := true
	for asset, target := range s.BootstrapTargets {
		if m.totalAssetAmount(s, asset) < target {
			allMet = false
			break
		}
	}
	if allMet {
		m.transitionToActive(s)
	}
	return nil
}

// ActivatePool manually activates the pool out of bootstrap, requiring
// 100% of bootstrap targets met AND total liquidity at or above
// ActivationThresholdUSD. Both conditions are required even if targets are
// satisfied but liquidity has since been estimated lower by a price move.
func (m *Manager) ActivatePool(s *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch s.Phase {
	case PhaseBootstrapping:
		progress := m.BootstrapProgress(s)
		if progress < 1.0 {
			return apperrors.Newf(apperrors.KindBootstrapIncomplete, "bootstrap incomplete: %.1f%%; all targets must be met before activation", progress*100)
		}
		if s.TotalLiquidityUSD < ActivationThresholdUSD {
			return apperrors.Newf(apperrors.KindBootstrapIncomplete, "insufficient total liquidity: $%.2f; minimum $%.2f required", s.TotalLiquidityUSD, ActivationThresholdUSD)
		}
		m.transitionToActive(s)
		return nil
	case PhaseActive:
		return apperrors.New(apperrors.KindPhaseBlocked, "pool already active")
	case PhaseEmergency:
		return apperrors.New(apperrors.KindPhaseBlocked, "cannot activate pool while in emergency mode")
	case PhaseTerminating:
		return apperrors.New(apperrors.KindPhaseBlocked, "cannot activate pool during termination process")
	case PhaseTerminated:
		return apperrors.New(apperrors.KindPhaseBlocked, "cannot activate terminated pool")
	default:
		return apperrors.Newf(apperrors.KindPhaseBlocked, "unknown pool phase %q", s.Phase)
	}
}

func (m *Manager) transitionToActive(s *State) {
	now := time.Now()
	s.Phase = PhaseActive
	s.ActivatedAt = &now
	recordPhaseMetric(s.Phase)
}

// EmergencyPause halts the pool immediately regardless of current phase.
func (m *Manager) EmergencyPause(s *State, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	s.Phase = PhaseEmergency
	s.PausedAt = &now
	s.EmergencyReason = reason
	recordPhaseMetric(s.Phase)
}

// recordPhaseMetric sets PoolPhase to 1 for the active phase label and 0
// for every other known phase, so a single gauge query shows the pool's
// current phase unambiguously.
func recordPhaseMetric(active Phase) {
	for _, p := range []Phase{PhaseBootstrapping, PhaseActive, PhaseEmergency, PhaseTerminating, PhaseTerminated} {
		v := 0.0
		if p == active {
			v = 1
		}
		metrics.PoolPhase.WithLabelValues(string(p)).Set(v)
	}
}

func (m *Manager) getOrCreateReserve(s *State, chainID chain.ChainId, asset Asset) *Reserve {
	chainReserves, ok := s.Reserves[chainID]
	if !ok {
		chainReserves = make(map[Asset]*Reserve)
		s.Reserves[chainID] = chainReserves
	}
	reserve, ok := chainReserves[asset]
	if !ok {
		reserve = &Reserve{}
		chainReserves[asset] = reserve
	}
	return reserve
}

func (m *Manager) totalAssetAmount(s *State, asset Asset) uint64 {
	var total uint64
	for _, chainReserves := range s.Reserves {
		if r, ok := chainReserves[asset]; ok {
			total += r.TotalAmount
		}
	}
	return total
}

func (m *Manager) updateGrowthRate(r *Reserve) {
	if r.LastUpdated.IsZero() {
		return
	}
	daysSince := time.Since(r.LastUpdated).Hours() / 24
	if daysSince <= 0 {
		return
	}
	denom := r.TotalAmount
	if denom == 0 {
		denom = 1
	}
	r.DailyGrowthRate = float64(r.FeeContributedAmount) / float64(denom) / daysSince
}

func (m *Manager) updateTotalLiquidityUSD(s *State) {
	var total float64
	for _, chainReserves := range s.Reserves {
		for asset, reserve := range chainReserves {
			total += EstimateAssetUSDValue(asset, reserve.TotalAmount)
		}
	}
	s.TotalLiquidityUSD = total
	metrics.PoolTotalLiquidityUSD.Set(total)
}

// EstimateAssetUSDValue converts a raw on-chain amount (in the asset's
// smallest unit) to USD using the pool's simplified hardcoded price table.
func EstimateAssetUSDValue(asset Asset, amount uint64) float64 {
	p, ok := priceTable[asset]
	if !ok {
		return 0
	}
	normalized := float64(amount) / pow10(p.decimals)
	return normalized * p.usd
}

func pow10(n uint) float64 {
	v := 1.0
	for i := uint(0); i < n; i++ {
		v *= 10
	}
	return v
}

func checkedAdd(a, b uint64) (uint64, bool) {
	sum := a + b
	if sum < a {
		return 0, false
	}
	return sum, true
}

func checkedSub(a, b uint64) (uint64, bool) {
	if b > a {
		return 0, false
	}
	return a - b, true
}
