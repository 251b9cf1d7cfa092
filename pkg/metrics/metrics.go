// Copyright 2025 DeFlow
//
// Package metrics exposes prometheus/client_golang instrumentation for the
// scheduler, execution engine, pool manager, and circuit breakers. Grounded
// on the teacher's use of github.com/prometheus/client_golang across its
// consensus/attestation health monitors, generalized to DeFlow's own
// counters and gauges.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WorkflowExecutionsTotal counts completed executions by terminal status.
	WorkflowExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deflow_workflow_executions_total",
		Help: "Total number of workflow executions by terminal status.",
	}, []string{"status"})

	// NodeExecutionsTotal counts node runs by node type and terminal status.
	NodeExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deflow_node_executions_total",
		Help: "Total number of node executions by node type and status.",
	}, []string{"node_type", "status"})

	// NodeExecutionDuration observes how long a single node execution took.
	NodeExecutionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "deflow_node_execution_duration_seconds",
		Help:    "Duration of a single node execution.",
		Buckets: prometheus.DefBuckets,
	}, []string{"node_type"})

	// CircuitBreakerState reports each node type's breaker state as a gauge:
	// 0=closed, 1=half_open, 2=open.
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "deflow_circuit_breaker_state",
		Help: "Circuit breaker state per node type (0=closed, 1=half_open, 2=open).",
	}, []string{"node_type"})

	// ScheduledExecutionsDue reports how many scheduled executions are
	// currently overdue.
	ScheduledExecutionsDue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "deflow_scheduled_executions_due",
		Help: "Number of scheduled workflow executions currently due or overdue.",
	})

	// PoolTotalLiquidityUSD mirrors PoolManager's total_liquidity_usd.
	PoolTotalLiquidityUSD = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "deflow_pool_total_liquidity_usd",
		Help: "Pool's total estimated liquidity in USD.",
	})

	// PoolPhase reports the pool's current phase as a label-only gauge set
	// to 1 for the active phase, 0 for every other phase label.
	PoolPhase = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "deflow_pool_phase",
		Help: "Pool phase indicator (1 for the currently active phase label, 0 otherwise).",
	}, []string{"phase"})

	// TreasuryDistributionsTotal counts executed monthly profit distributions.
	TreasuryDistributionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deflow_treasury_distributions_total",
		Help: "Total number of executed treasury profit distributions.",
	})
)

// CircuitStateValue maps a CircuitState string to the numeric gauge value
// CircuitBreakerState expects.
func CircuitStateValue(state string) float64 {
	switch state {
	case "half_open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}
