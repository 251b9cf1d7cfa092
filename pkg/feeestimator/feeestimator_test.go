// Copyright 2025 DeFlow

package feeestimator

import (
	"context"
	"testing"
	"time"

	"github.com/Legatia/deflow/pkg/chain"
	"github.com/Legatia/deflow/pkg/signing"
)

// countingAdapter implements chain.Adapter, counting EstimateFee calls so
// tests can assert on cache hits vs misses.
type countingAdapter struct {
	calls int
	quote chain.FeeQuote
}

func (a *countingAdapter) Chain() chain.ChainId { return chain.ChainBitcoin }
func (a *countingAdapter) DeriveAddress(ctx context.Context, oracle signing.Oracle, userID string) (chain.Address, error) {
	return chain.Address{}, nil
}
func (a *countingAdapter) DeriveAllAddresses(ctx context.Context, oracle signing.Oracle, userID string) ([]chain.Address, []error) {
	return nil, nil
}
func (a *countingAdapter) GetBalance(ctx context.Context, addr chain.Address) (uint64, error) {
	return 0, nil
}
func (a *countingAdapter) GetUTXOs(ctx context.Context, addr chain.Address) ([]chain.UTXO, error) {
	return nil, nil
}
func (a *countingAdapter) EstimateFee(ctx context.Context, req chain.TransferRequest) (chain.FeeQuote, error) {
	a.calls++
	return a.quote, nil
}
func (a *countingAdapter) BuildTransfer(ctx context.Context, req chain.TransferRequest, fee chain.FeeQuote) (chain.UnsignedTransaction, error) {
	return chain.UnsignedTransaction{}, nil
}
func (a *countingAdapter) Broadcast(ctx context.Context, tx chain.SignedTransaction) (string, error) {
	return "", nil
}

func TestEstimateCachesWithinTTL(t *testing.T) {
	adapter := &countingAdapter{quote: chain.FeeQuote{Chain: chain.ChainBitcoin, SatPerByte: 10, TotalFeeNative: "2200"}}
	est := NewEstimator(30 * time.Second)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	est.timeNow = func() time.Time { return now }

	req := chain.TransferRequest{Chain: chain.ChainBitcoin, Priority: "medium"}
	if _, err := est.Estimate(context.Background(), adapter, req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := est.Estimate(context.Background(), adapter, req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if adapter.calls != 1 {
		t.Fatalf("expected the second call to hit cache, adapter was called %d times", adapter.calls)
	}
}

func TestEstimateMissesAfterTTLExpires(t *testing.T) {
	adapter := &countingAdapter{quote: chain.FeeQuote{Chain: chain.ChainBitcoin, TotalFeeNative: "2200"}}
	est := NewEstimator(30 * time.Second)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	est.timeNow = func() time.Time { return now }

	req := chain.TransferRequest{Chain: chain.ChainBitcoin, Priority: "medium"}
	if _, err := est.Estimate(context.Background(), adapter, req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	now = now.Add(31 * time.Second)
	if _, err := est.Estimate(context.Background(), adapter, req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if adapter.calls != 2 {
		t.Fatalf("expected cache miss after TTL expiry, adapter was called %d times", adapter.calls)
	}
}

func TestEstimateCachesPerPriorityIndependently(t *testing.T) {
	adapter := &countingAdapter{quote: chain.FeeQuote{Chain: chain.ChainBitcoin, TotalFeeNative: "2200"}}
	est := NewEstimator(30 * time.Second)

	if _, err := est.Estimate(context.Background(), adapter, chain.TransferRequest{Chain: chain.ChainBitcoin, Priority: "low"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := est.Estimate(context.Background(), adapter, chain.TransferRequest{Chain: chain.ChainBitcoin, Priority: "high"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if adapter.calls != 2 {
		t.Fatalf("expected distinct priorities to miss independently, adapter was called %d times", adapter.calls)
	}
}

func TestEstimateFillsTotalFeeUSDFromPoolPriceTable(t *testing.T) {
	adapter := &countingAdapter{quote: chain.FeeQuote{Chain: chain.ChainBitcoin, TotalFeeNative: "100000000"}} // 1 BTC
	est := NewEstimator(30 * time.Second)

	quote, err := est.Estimate(context.Background(), adapter, chain.TransferRequest{Chain: chain.ChainBitcoin})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quote.TotalFeeUSD <= 0 {
		t.Fatalf("expected a positive USD estimate for a 1 BTC fee, got %v", quote.TotalFeeUSD)
	}
}

func TestInvalidateDropsOnlyTheGivenChain(t *testing.T) {
	adapter := &countingAdapter{quote: chain.FeeQuote{Chain: chain.ChainBitcoin, TotalFeeNative: "2200"}}
	est := NewEstimator(30 * time.Second)

	if _, err := est.Estimate(context.Background(), adapter, chain.TransferRequest{Chain: chain.ChainBitcoin}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	est.Invalidate(chain.ChainBitcoin)
	if _, err := est.Estimate(context.Background(), adapter, chain.TransferRequest{Chain: chain.ChainBitcoin}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if adapter.calls != 2 {
		t.Fatalf("expected Invalidate to force a cache miss, adapter was called %d times", adapter.calls)
	}
}
