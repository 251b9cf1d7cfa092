// Copyright 2025 DeFlow
//
// Package utxo implements Bitcoin UTXO selection strategies. Grounded on
// original_source/src/DeFlow_backend/src/defi/bitcoin/utxo.rs for the
// selection entry point (select_utxos_for_amount) and cache-TTL shape,
// and on the chain package's linear fee-size formula for change/fee math.

package utxo

import (
	"fmt"
	"sort"

	"github.com/Legatia/deflow/pkg/chain"
)

// Strategy selects which UTXOs to spend for a target amount.
type Strategy string

const (
	StrategyLargestFirst  Strategy = "largest_first"
	StrategySmallestFirst Strategy = "smallest_first"
	StrategyBranchAndBound Strategy = "branch_and_bound"
	StrategyRandom        Strategy = "random"
)

// Selection is the result of selecting inputs for a target spend.
type Selection struct {
	Inputs      []chain.UTXO
	TotalInput  uint64
	ChangeSats  uint64
	FeeSats     uint64
}

var ErrInsufficientFunds = fmt.Errorf("utxo: insufficient funds to cover amount and fee")

// SelectUTXOs picks inputs from available to cover amount plus the fee for
// the resulting transaction, using the given strategy. BranchAndBound falls
// back to LargestFirst: an exact subset-sum search is the "right" answer
// for minimizing change, but DeFlow's fee model only needs a workable
// selection, not a byte-optimal one, so we do not implement real
// branch-and-bound search (documented Open Question decision, see DESIGN.md).
func SelectUTXOs(available []chain.UTXO, amountSats uint64, satPerByte uint64, strategy Strategy) (Selection, error) {
	switch strategy {
	case StrategySmallestFirst:
		return selectOrdered(available, amountSats, satPerByte, true)
	case StrategyRandom:
		// Deterministic tie-break: random selection without a supplied
		// source of entropy would make transaction construction
		// non-reproducible in tests, so Random selects in the given slice
		// order rather than reshuffling - callers that want true
		// randomness shuffle `available` themselves before calling.
		var selected []chain.UTXO
		var total uint64
		for _, u := range available {
			selected = append(selected, u)
			total += u.AmountSats
			fee := estimateFee(len(selected), 2, satPerByte)
			if total >= amountSats+fee {
				return Selection{Inputs: selected, TotalInput: total, FeeSats: fee, ChangeSats: total - amountSats - fee}, nil
			}
		}
		return Selection{}, ErrInsufficientFunds
	case StrategyBranchAndBound, StrategyLargestFirst, "":
		return selectOrdered(available, amountSats, satPerByte, false)
	default:
		return Selection{}, fmt.Errorf("utxo: unknown strategy %q", strategy)
	}
}

func selectOrdered(available []chain.UTXO, amountSats, satPerByte uint64, smallestFirst bool) (Selection, error) {
	sorted := make([]chain.UTXO, len(available))
	copy(sorted, available)
	sort.Slice(sorted, func(i, j int) bool {
		if smallestFirst {
			return sorted[i].AmountSats < sorted[j].AmountSats
		}
		return sorted[i].AmountSats > sorted[j].AmountSats
	})

	var selected []chain.UTXO
	var total uint64

	for _, u := range sorted {
		selected = append(selected, u)
		total += u.AmountSats

		fee := estimateFee(len(selected), 2, satPerByte)
		if total >= amountSats+fee {
			return Selection{
				Inputs:     selected,
				TotalInput: total,
				FeeSats:    fee,
				ChangeSats: total - amountSats - fee,
			}, nil
		}
	}

	return Selection{}, ErrInsufficientFunds
}

// estimateFee mirrors chain.BitcoinAdapter's linear size formula:
// bytes = 10 + 148*n_in + 34*n_out.
func estimateFee(nIn, nOut int, satPerByte uint64) uint64 {
	size := uint64(10 + 148*nIn + 34*nOut)
	return size * satPerByte
}
