// Copyright 2025 DeFlow
//
// ChainAdapter is the per-chain execution surface every workflow action
// node calls through. Implementations must be thread-safe, matching the
// teacher's ChainExecutionStrategy contract (pkg/chain/strategy/interface.go).

package chain

import (
	"context"

	"github.com/Legatia/deflow/pkg/signing"
)

// Adapter is the chain-specific execution surface (§4.8).
type Adapter interface {
	// Chain returns the chain this adapter executes against.
	Chain() ChainId

	// DeriveAddress derives a user's deposit/control address on this chain
	// from the signing oracle's public key material, without ever holding
	// a private key locally.
	DeriveAddress(ctx context.Context, oracle signing.Oracle, userID string) (Address, error)

	// DeriveAllAddresses derives every address variant this chain supports
	// for a user (only meaningful for Bitcoin's P2PKH/P2WPKH/P2TR trio).
	// Tolerates partial failure: it returns whatever addresses it could
	// derive plus the errors for the ones it could not, mirroring the
	// original's get_all_addresses behavior of logging-and-continuing
	// instead of aborting on the first failure.
	DeriveAllAddresses(ctx context.Context, oracle signing.Oracle, userID string) ([]Address, []error)

	// GetBalance returns the current balance of addr in the chain's smallest unit.
	GetBalance(ctx context.Context, addr Address) (uint64, error)

	// GetUTXOs returns the spendable UTXOs for addr. Only meaningful for
	// FamilyBitcoin; EVM/Solana adapters return ErrNotUTXOBased.
	GetUTXOs(ctx context.Context, addr Address) ([]UTXO, error)

	// EstimateFee estimates the network fee for a transfer of the given shape.
	EstimateFee(ctx context.Context, req TransferRequest) (FeeQuote, error)

	// BuildTransfer constructs an unsigned transaction for req, ready to be
	// handed to the signing oracle.
	BuildTransfer(ctx context.Context, req TransferRequest, fee FeeQuote) (UnsignedTransaction, error)

	// Broadcast submits a signed transaction to the network and returns its
	// chain-native transaction identifier.
	Broadcast(ctx context.Context, tx SignedTransaction) (txID string, err error)
}

// FeeQuote is a chain-specific fee estimate returned by EstimateFee (§4.10).
type FeeQuote struct {
	Chain ChainId

	// Bitcoin fields
	SatPerByte     uint64
	EstimatedBytes uint64

	// EVM fields
	GasLimit             uint64
	GasPriceWei          uint64 // legacy
	MaxFeePerGasWei      uint64 // EIP-1559
	MaxPriorityFeeWei    uint64 // EIP-1559
	IsEIP1559            bool

	TotalFeeNative string  // decimal string in the chain's native unit
	TotalFeeUSD    float64 // best-effort USD estimate, set by pkg/feeestimator from the pool price table

	ConfirmationTarget  int // blocks
	EstimatedSeconds    int
}

// ErrNotUTXOBased is returned by GetUTXOs on non-Bitcoin adapters.
var ErrNotUTXOBased = &ErrUnsupportedChain{}
