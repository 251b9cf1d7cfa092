// Copyright 2025 DeFlow
//
// Solana adapter: derives a base58 Ed25519 address. Fee estimation is a
// fixed lamports-per-signature figure rather than a market-driven quote -
// Solana's fee market is priority-fee-based and out of scope for a
// faithful simulation here (Non-goal: no concrete RPC providers).

package chain

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcutil/base58"

	"github.com/Legatia/deflow/pkg/signing"
)

const solanaBaseFeeLamports = 5000

// SolanaAdapter implements Adapter for Solana.
type SolanaAdapter struct{}

func NewSolanaAdapter() *SolanaAdapter { return &SolanaAdapter{} }

func (a *SolanaAdapter) Chain() ChainId { return ChainSolana }

func (a *SolanaAdapter) derivationPath(userID string) signing.DerivationPath {
	return signing.NewDerivationPath("solana", userID)
}

func (a *SolanaAdapter) DeriveAddress(ctx context.Context, oracle signing.Oracle, userID string) (Address, error) {
	pub, err := oracle.PublicKey(ctx, signing.SchemeEd25519, a.derivationPath(userID))
	if err != nil {
		return Address{}, fmt.Errorf("solana: derive public key: %w", err)
	}
	if len(pub) != 32 {
		return Address{}, fmt.Errorf("solana: expected 32-byte ed25519 public key, got %d", len(pub))
	}
	return Address{Chain: ChainSolana, Value: base58.Encode(pub), DerivationPath: a.derivationPath(userID)}, nil
}

func (a *SolanaAdapter) DeriveAllAddresses(ctx context.Context, oracle signing.Oracle, userID string) ([]Address, []error) {
	addr, err := a.DeriveAddress(ctx, oracle, userID)
	if err != nil {
		return nil, []error{err}
	}
	return []Address{addr}, nil
}

func (a *SolanaAdapter) GetBalance(ctx context.Context, addr Address) (uint64, error) {
	return 0, fmt.Errorf("solana: GetBalance requires an RPC provider (out of scope)")
}

func (a *SolanaAdapter) GetUTXOs(ctx context.Context, addr Address) ([]UTXO, error) {
	return nil, ErrNotUTXOBased
}

func (a *SolanaAdapter) EstimateFee(ctx context.Context, req TransferRequest) (FeeQuote, error) {
	return FeeQuote{
		Chain:              ChainSolana,
		TotalFeeNative:     fmt.Sprintf("%d", solanaBaseFeeLamports),
		ConfirmationTarget: 32, // slots to finality
		EstimatedSeconds:   13,
	}, nil
}

func (a *SolanaAdapter) BuildTransfer(ctx context.Context, req TransferRequest, fee FeeQuote) (UnsignedTransaction, error) {
	return UnsignedTransaction{}, fmt.Errorf("solana: BuildTransfer requires an RPC provider for a recent blockhash (out of scope)")
}

func (a *SolanaAdapter) Broadcast(ctx context.Context, tx SignedTransaction) (string, error) {
	return "", fmt.Errorf("solana: Broadcast requires an RPC provider (out of scope)")
}
