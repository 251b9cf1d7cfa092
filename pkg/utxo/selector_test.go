package utxo

import (
	"testing"

	"github.com/Legatia/deflow/pkg/chain"
)

func sampleUTXOs() []chain.UTXO {
	return []chain.UTXO{
		{TxID: "a", Vout: 0, AmountSats: 10000},
		{TxID: "b", Vout: 0, AmountSats: 50000},
		{TxID: "c", Vout: 0, AmountSats: 5000},
	}
}

func TestSelectUTXOsLargestFirstPicksFewestInputs(t *testing.T) {
	sel, err := SelectUTXOs(sampleUTXOs(), 40000, 10, StrategyLargestFirst)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sel.Inputs) != 1 {
		t.Fatalf("expected a single 50000-sat input to cover 40000, got %d inputs", len(sel.Inputs))
	}
	if sel.Inputs[0].AmountSats != 50000 {
		t.Fatalf("expected the largest UTXO selected first, got %d", sel.Inputs[0].AmountSats)
	}
	// size = 10 + 148*1 + 34*2 = 226, fee = 2260
	if sel.FeeSats != 2260 {
		t.Fatalf("expected fee 2260, got %d", sel.FeeSats)
	}
	wantChange := sel.TotalInput - 40000 - sel.FeeSats
	if sel.ChangeSats != wantChange {
		t.Fatalf("expected change %d, got %d", wantChange, sel.ChangeSats)
	}
}

func TestSelectUTXOsSmallestFirstAccumulatesMultipleInputs(t *testing.T) {
	sel, err := SelectUTXOs(sampleUTXOs(), 12000, 10, StrategySmallestFirst)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sel.Inputs) < 2 {
		t.Fatalf("expected smallest-first to need more than one input, got %d", len(sel.Inputs))
	}
	if sel.Inputs[0].AmountSats != 5000 {
		t.Fatalf("expected the smallest UTXO selected first, got %d", sel.Inputs[0].AmountSats)
	}
}

func TestSelectUTXOsInsufficientFunds(t *testing.T) {
	_, err := SelectUTXOs(sampleUTXOs(), 1_000_000, 10, StrategyLargestFirst)
	if err != ErrInsufficientFunds {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestSelectUTXOsBranchAndBoundFallsBackToLargestFirst(t *testing.T) {
	got, err := SelectUTXOs(sampleUTXOs(), 40000, 10, StrategyBranchAndBound)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want, err := SelectUTXOs(sampleUTXOs(), 40000, 10, StrategyLargestFirst)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.TotalInput != want.TotalInput || len(got.Inputs) != len(want.Inputs) {
		t.Fatalf("expected BranchAndBound to match LargestFirst's result, got %+v want %+v", got, want)
	}
}

func TestSelectUTXOsUnknownStrategyErrors(t *testing.T) {
	if _, err := SelectUTXOs(sampleUTXOs(), 1000, 10, Strategy("bogus")); err == nil {
		t.Fatal("expected an error for an unknown strategy")
	}
}

func TestSelectUTXOsEmptyAvailableSetErrors(t *testing.T) {
	if _, err := SelectUTXOs(nil, 1000, 10, StrategyLargestFirst); err != ErrInsufficientFunds {
		t.Fatalf("expected ErrInsufficientFunds on an empty UTXO set, got %v", err)
	}
}
