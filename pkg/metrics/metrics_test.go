package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCircuitStateValueMapping(t *testing.T) {
	cases := map[string]float64{
		"closed": 0, "half_open": 1, "open": 2, "bogus": 0,
	}
	for state, want := range cases {
		if got := CircuitStateValue(state); got != want {
			t.Errorf("CircuitStateValue(%q) = %v, want %v", state, got, want)
		}
	}
}

func TestWorkflowExecutionsTotalIncrementsByStatus(t *testing.T) {
	before := testutil.ToFloat64(WorkflowExecutionsTotal.WithLabelValues("succeeded"))
	WorkflowExecutionsTotal.WithLabelValues("succeeded").Inc()
	after := testutil.ToFloat64(WorkflowExecutionsTotal.WithLabelValues("succeeded"))
	if after != before+1 {
		t.Fatalf("expected counter to increment by 1, went from %v to %v", before, after)
	}
}

func TestPoolTotalLiquidityUSDGaugeSets(t *testing.T) {
	PoolTotalLiquidityUSD.Set(12345.67)
	if got := testutil.ToFloat64(PoolTotalLiquidityUSD); got != 12345.67 {
		t.Fatalf("expected gauge value 12345.67, got %v", got)
	}
}
