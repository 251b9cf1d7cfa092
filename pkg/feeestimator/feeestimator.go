// Copyright 2025 DeFlow
//
// Package feeestimator wraps a chain.Adapter's EstimateFee with a bounded
// per-(chain, priority) cache, so repeated fee lookups for the same tier
// within the TTL window don't re-derive (or, in production, re-dial an RPC
// endpoint for) the same quote. Grounded on §4.10's "cache per chain with a
// 30-second TTL" requirement; no teacher or pack example ships a caching
// library, so this is a small hand-built TTL cache over stdlib sync/time,
// the same deliberate-stdlib exception already recorded for
// pkg/engine/circuit_breaker.go.

package feeestimator

import (
	"context"
	"sync"
	"time"

	"github.com/Legatia/deflow/pkg/chain"
	"github.com/Legatia/deflow/pkg/pool"
)

// DefaultTTL is the cache lifetime for a fee quote, per §4.10.
const DefaultTTL = 30 * time.Second

type cacheKey struct {
	chain    chain.ChainId
	priority string
}

type cacheEntry struct {
	quote   chain.FeeQuote
	expires time.Time
}

// Estimator caches FeeQuotes per (chain, priority) for TTL, falling through
// to the underlying adapter on a miss or expiry.
type Estimator struct {
	mu      sync.Mutex
	cache   map[cacheKey]cacheEntry
	ttl     time.Duration
	timeNow func() time.Time
}

// NewEstimator creates an Estimator caching quotes for ttl (DefaultTTL when
// ttl <= 0).
func NewEstimator(ttl time.Duration) *Estimator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Estimator{
		cache:   make(map[cacheKey]cacheEntry),
		ttl:     ttl,
		timeNow: time.Now,
	}
}

// assetForFeeUSD maps a chain family to the pool.Asset its native fee is
// denominated in, so TotalFeeUSD can reuse the pool's shared price table
// instead of keeping a second one.
func assetForFeeUSD(id chain.ChainId) (pool.Asset, bool) {
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

// Estimate returns adapter's fee quote for req, serving a cached quote when
// one is still fresh for this (chain, priority) pair. TotalFeeUSD is filled
// in from the pool's price table using the quote's native-unit total.
func (e *Estimator) Estimate(ctx context.Context, adapter chain.Adapter, req chain.TransferRequest) (chain.FeeQuote, error) {
	priority := req.Priority
	if priority == "" {
		priority = "medium"
	}
	key := cacheKey{chain: req.Chain, priority: priority}

	e.mu.Lock()
	if entry, ok := e.cache[key]; ok && e.timeNow().Before(entry.expires) {
		e.mu.Unlock()
		return entry.quote, nil
	}
	e.mu.Unlock()

	quote, err := adapter.EstimateFee(ctx, req)
	if err != nil {
		return chain.FeeQuote{}, err
	}
	quote.TotalFeeUSD = e.estimateUSD(quote)

	e.mu.Lock()
	e.cache[key] = cacheEntry{quote: quote, expires: e.timeNow().Add(e.ttl)}
	e.mu.Unlock()

	return quote, nil
}

func (e *Estimator) estimateUSD(quote chain.FeeQuote) float64 {
	asset, ok := assetForFeeUSD(quote.Chain)
	if !ok {
		return 0
	}
	amount, ok := parseUint(quote.TotalFeeNative)
	if !ok {
		return 0
	}
	return pool.EstimateAssetUSDValue(asset, amount)
}

func parseUint(s string) (uint64, bool) {
	if s == "" {
		return 0, false
	}
	var v uint64
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		v = v*10 + uint64(r-'0')
	}
	return v, true
}

// Invalidate drops every cached quote for chainID, forcing the next
// Estimate call for any priority on that chain to miss.
func (e *Estimator) Invalidate(chainID chain.ChainId) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for k := range e.cache {
		if k.chain == chainID {
			delete(e.cache, k)
		}
	}
}
