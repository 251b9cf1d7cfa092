// Copyright 2025 DeFlow
//
// Package treasury implements the dev-team revenue ledger and monthly
// profit distribution. Ported in semantics from
// original_source/src/DeFlow_pool/src/business_model.rs: revenue buckets
// (subscriptions, transaction fees, enterprise), a monthly distribution run
// gated on a minimum threshold, an even split across the owner plus every
// team-hierarchy tier, and a 20% reserve held back into an emergency fund.

package treasury

import (
	"sync"
	"time"

	"github.com/Legatia/deflow/pkg/apperrors"
	"github.com/Legatia/deflow/pkg/metrics"
)

// OperatingCostEstimateUSD is the monthly operating-cost floor used when
// actual recorded operating costs are lower, matching the original's
// `monthly_operating_costs.max(operating_cost_estimate)`.
const OperatingCostEstimateUSD = 15000.0

// DistributionReserveRatio is the fraction of net profit retained in the
// emergency fund rather than distributed to the team each cycle.
const DistributionReserveRatio = 0.2

// TeamHierarchy enumerates everyone profit is split across, beyond the
// owner.
type TeamHierarchy struct {
	OwnerPrincipal    string
	SeniorManagers    []string
	OperationsManagers []string
	TechManagers      []string
	Developers        []string
}

func (h TeamHierarchy) totalMembers() int {
	return len(h.SeniorManagers) + len(h.OperationsManagers) + len(h.TechManagers) + len(h.Developers) + 1 // +1 owner
}

// Ledger is the dev-team business model's running state: accumulated
// revenue for the current cycle, operating costs, distribution bookkeeping,
// and per-member earnings.
type Ledger struct {
	mu sync.Mutex

	Hierarchy TeamHierarchy

	MonthlySubscriptionRevenue float64
	MonthlyTransactionFees     float64
	MonthlyEnterpriseRevenue   float64
	MonthlyOperatingCosts      float64

	MinimumDistributionThresholdUSD float64
	DistributionFrequency            time.Duration
	LastDistributionTime             time.Time

	TeamMemberEarnings map[string]float64
	EmergencyFund       float64
}

// NewLedger creates a Ledger for the given team, with a default monthly
// distribution cadence and the given minimum distribution threshold.
func NewLedger(hierarchy TeamHierarchy, minDistributionUSD float64) *Ledger {
	return &Ledger{
		Hierarchy:                        hierarchy,
		MinimumDistributionThresholdUSD: minDistributionUSD,
		DistributionFrequency:           30 * 24 * time.Hour,
		TeamMemberEarnings:              make(map[string]float64),
	}
}

// AddTransactionFeeRevenue records fee revenue collected this cycle.
func (l *Ledger) AddTransactionFeeRevenue(amount float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.MonthlyTransactionFees += amount
}

// AddSubscriptionRevenue records subscription revenue collected this cycle.
func (l *Ledger) AddSubscriptionRevenue(amount float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.MonthlySubscriptionRevenue += amount
}

// AddEnterpriseRevenue records enterprise revenue collected this cycle.
func (l *Ledger) AddEnterpriseRevenue(amount float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.MonthlyEnterpriseRevenue += amount
}

// TotalMonthlyRevenue sums every revenue bucket for the current cycle.
func (l *Ledger) TotalMonthlyRevenue() float64 {
	return l.MonthlySubscriptionRevenue + l.MonthlyTransactionFees + l.MonthlyEnterpriseRevenue
}

// MonthlyProfit is total revenue less the greater of recorded operating
// costs or the floor estimate.
func (l *Ledger) MonthlyProfit() float64 {
	costs := l.MonthlyOperatingCosts
	if costs < OperatingCostEstimateUSD {
		costs = OperatingCostEstimateUSD
	}
	return l.TotalMonthlyRevenue() - costs
}

// CheckAndExecuteDistribution runs a distribution cycle if the configured
// frequency has elapsed since the last one, relative to now.
func (l *Ledger) CheckAndExecuteDistribution(now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.LastDistributionTime) < l.DistributionFrequency {
		return nil
	}
	return l.executeMonthlyDistribution(now)
}

func (l *Ledger) executeMonthlyDistribution(now time.Time) error {
	netProfit := l.MonthlyProfit()
	if netProfit < l.MinimumDistributionThresholdUSD {
		return apperrors.Newf(apperrors.KindNoEarnings, "net profit %.2f below minimum distribution threshold %.2f", netProfit, l.MinimumDistributionThresholdUSD)
	}

	distributable := netProfit * (1.0 - DistributionReserveRatio)
	reserveAmount := netProfit * DistributionReserveRatio

	members := l.Hierarchy.totalMembers()
	perMember := distributable / float64(members)

	l.TeamMemberEarnings[l.Hierarchy.OwnerPrincipal] += perMember
	for _, p := range l.Hierarchy.SeniorManagers {
		l.TeamMemberEarnings[p] += perMember
	}
	for _, p := range l.Hierarchy.OperationsManagers {
		l.TeamMemberEarnings[p] += perMember
	}
	for _, p := range l.Hierarchy.TechManagers {
		l.TeamMemberEarnings[p] += perMember
	}
	for _, p := range l.Hierarchy.Developers {
		l.TeamMemberEarnings[p] += perMember
	}

	l.EmergencyFund += reserveAmount

	l.MonthlySubscriptionRevenue = 0
	l.MonthlyTransactionFees = 0
	l.MonthlyEnterpriseRevenue = 0
	l.MonthlyOperatingCosts = 0
	l.LastDistributionTime = now
	metrics.TreasuryDistributionsTotal.Inc()

	return nil
}

// WithdrawEarnings pays out principal's accumulated earnings and zeroes
// their balance. Only team members with a tracked earnings entry may
// withdraw.
func (l *Ledger) WithdrawEarnings(principal string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	earnings, ok := l.TeamMemberEarnings[principal]
	if !ok {
		return 0, apperrors.New(apperrors.KindUnauthorizedTeamMember, "only dev team members can withdraw earnings")
	}
	if earnings <= 0 {
		return 0, apperrors.New(apperrors.KindNoEarnings, "no earnings available to withdraw")
	}
	l.TeamMemberEarnings[principal] = 0
	return earnings, nil
}

// AnnualProjection is a forward-looking estimate of yearly profit and
// per-member distribution, assuming the current monthly run rate holds.
type AnnualProjection struct {
	AnnualProfitUSD        float64
	DistributableAnnualUSD float64
	PerMemberAnnualUSD     float64
}

// AnnualProjection extrapolates the ledger's current monthly profit to a
// full year.
func (l *Ledger) AnnualProjection() AnnualProjection {
	monthlyProfit := l.MonthlyProfit()
	annualProfit := monthlyProfit * 12.0
	distributableAnnual := annualProfit * (1.0 - DistributionReserveRatio)

	members := l.Hierarchy.totalMembers()
	perMember := 0.0
	if members > 0 {
		perMember = distributableAnnual / float64(members)
	}

	return AnnualProjection{
		AnnualProfitUSD:        annualProfit,
		DistributableAnnualUSD: distributableAnnual,
		PerMemberAnnualUSD:     perMember,
	}
}
