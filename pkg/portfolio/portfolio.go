// Copyright 2025 DeFlow
//
// Package portfolio composes a user's addresses and balances across every
// registered chain into one read-only view (§2 PortfolioAggregator). It
// calls each chain.Adapter through the registry the same way
// main.go's buildExecutors does, but never writes anything — there's no
// action node type for it, only a query path.

package portfolio

import (
	"context"
	"sync"

	"github.com/Legatia/deflow/pkg/chain"
	"github.com/Legatia/deflow/pkg/pool"
	"github.com/Legatia/deflow/pkg/signing"
)

// AssetBalance is one chain's balance entry in a Snapshot.
type AssetBalance struct {
	Chain   chain.ChainId
	Address string
	Amount  uint64 // smallest unit for this chain
	USD     float64
}

// Snapshot is the composed cross-chain view for one user.
type Snapshot struct {
	UserID   string
	Balances []AssetBalance
	TotalUSD float64
	Errors   []string // chain IDs that failed to resolve, logged not raised
}

// assetForChain maps a chain to the pool.Asset its native balance should be
// priced in, reusing the pool's shared price table instead of maintaining
// a second one for portfolio valuation.
func assetForChain(id chain.ChainId) (pool.Asset, bool) {
	switch id {
	case chain.ChainBitcoin:
		return pool.AssetBTC, true
	case chain.ChainEthereum, chain.ChainArbitrum, chain.ChainOptimism, chain.ChainBase:
		return pool.AssetETH, true
	case chain.ChainPolygon:
		return pool.AssetMATIC, true
	case chain.ChainAvalanche:
		return pool.AssetAVAX, true
	case chain.ChainSolana:
		return pool.AssetSOL, true
	default:
		return "", false
	}
}

// Aggregator composes per-chain address/balance lookups into one Snapshot.
type Aggregator struct {
	registry *chain.Registry
	oracle   signing.Oracle
}

// NewAggregator creates an Aggregator reading through registry using oracle
// for address derivation.
func NewAggregator(registry *chain.Registry, oracle signing.Oracle) *Aggregator {
	return &Aggregator{registry: registry, oracle: oracle}
}

// Compose derives userID's address and fetches its balance on every chain
// currently registered, concurrently. A single chain's failure is recorded
// in Snapshot.Errors and does not prevent the other chains' balances from
// being returned, mirroring DeriveAllAddresses' partial-failure tolerance.
func (a *Aggregator) Compose(ctx context.Context, userID string) Snapshot {
	chains := a.registry.List()

	type result struct {
		balance AssetBalance
		err     error
	}
	results := make([]result, len(chains))

	var wg sync.WaitGroup
	for i, chainID := range chains {
		wg.Add(1)
		go func(i int, chainID chain.ChainId) {
			defer wg.Done()
			results[i] = result{balance: AssetBalance{Chain: chainID}}
			adapter, err := a.registry.Get(chainID)
			if err != nil {
				results[i].err = err
				return
			}
			addr, err := adapter.DeriveAddress(ctx, a.oracle, userID)
			if err != nil {
				results[i].err = err
				return
			}
			amount, err := adapter.GetBalance(ctx, addr)
			if err != nil {
				results[i].err = err
				return
			}
			results[i].balance.Address = addr.Value
			results[i].balance.Amount = amount
			if asset, ok := assetForChain(chainID); ok {
				results[i].balance.USD = pool.EstimateAssetUSDValue(asset, amount)
			}
		}(i, chainID)
	}
	wg.Wait()

	snap := Snapshot{UserID: userID}
	for _, r := range results {
		if r.err != nil {
			snap.Errors = append(snap.Errors, string(r.balance.Chain)+": "+r.err.Error())
			continue
		}
		snap.Balances = append(snap.Balances, r.balance)
		snap.TotalUSD += r.balance.USD
	}
	return snap
}
