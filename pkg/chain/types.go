// Copyright 2025 DeFlow
//
// Chain identifiers and the cross-chain asset types every ChainAdapter
// implementation exchanges. Mirrors the teacher's ChainPlatform registry
// (pkg/chain/strategy/interface.go) but narrows the platform set to the
// eight chains DeFlow automates and swaps the anchor-workflow payloads for
// DeFi-native ones (addresses, UTXOs, transfers).

package chain

import "fmt"

// ChainId identifies one of the chains DeFlow can execute workflow actions on.
type ChainId string

const (
	ChainBitcoin   ChainId = "bitcoin"
	ChainEthereum  ChainId = "ethereum"
	ChainArbitrum  ChainId = "arbitrum"
	ChainOptimism  ChainId = "optimism"
	ChainPolygon   ChainId = "polygon"
	ChainAvalanche ChainId = "avalanche"
	ChainBase      ChainId = "base"
	ChainSolana    ChainId = "solana"
)

// Family groups chains that share an address/signing scheme.
type Family string

const (
	FamilyBitcoin Family = "bitcoin"
	FamilyEVM     Family = "evm"
	FamilySolana  Family = "solana"
)

// Family returns the address/signing family for this chain.
func (c ChainId) Family() Family {
	switch c {
	case ChainBitcoin:
		return FamilyBitcoin
	case ChainEthereum, ChainArbitrum, ChainOptimism, ChainPolygon, ChainAvalanche, ChainBase:
		return FamilyEVM
	case ChainSolana:
		return FamilySolana
	default:
		return ""
	}
}

// IsValid reports whether c is one of the chains DeFlow knows how to execute on.
func (c ChainId) IsValid() bool {
	return c.Family() != ""
}

// EVMChainID returns the numeric EIP-155 chain id for EVM family chains.
// The second return value is false for non-EVM chains.
func (c ChainId) EVMChainID() (int64, bool) {
	switch c {
	case ChainEthereum:
		return 1, true
	case ChainArbitrum:
		return 42161, true
	case ChainOptimism:
		return 10, true
	case ChainPolygon:
		return 137, true
	case ChainAvalanche:
		return 43114, true
	case ChainBase:
		return 8453, true
	default:
		return 0, false
	}
}

// AverageBlockTime is the expected block production cadence, used by the
// fee estimator to translate a confirmation-block target into a wall-clock
// estimate (§4.10).
func (c ChainId) AverageBlockTime() (seconds int, ok bool) {
	switch c {
	case ChainEthereum:
		return 60, true
	case ChainArbitrum:
		return 15, true
	case ChainOptimism:
		return 12, true
	case ChainPolygon:
		return 3, true
	case ChainAvalanche:
		return 3, true
	case ChainBase:
		return 12, true
	default:
		return 0, false
	}
}

// BitcoinAddressType enumerates the address encodings DeFlow derives for a
// Bitcoin user, matching the original's get_all_addresses trio.
type BitcoinAddressType string

const (
	BitcoinP2PKH  BitcoinAddressType = "p2pkh"
	BitcoinP2WPKH BitcoinAddressType = "p2wpkh"
	BitcoinP2TR   BitcoinAddressType = "p2tr"
)

// Address is a derived, chain-scoped address for a DeFlow user.
type Address struct {
	Chain       ChainId
	Value       string
	BitcoinType BitcoinAddressType // only set when Chain == ChainBitcoin
	DerivationPath [][]byte
}

// UTXO is an unspent Bitcoin transaction output.
type UTXO struct {
	TxID         string
	Vout         uint32
	AmountSats   uint64
	ScriptPubKey []byte
	Confirmations int
}

// TransferRequest is the chain-agnostic instruction to move funds, produced
// by a workflow action node and consumed by BuildTransfer.
type TransferRequest struct {
	Chain     ChainId
	FromUser  string
	ToAddress string
	Asset     string // "BTC", "ETH", "USDC", ...
	Amount    uint64 // smallest unit (sats, wei, lamports, token base units)

	// Priority selects the fee tier EstimateFee prices for: "low", "medium"
	// (default when empty), "high", or "urgent".
	Priority string
}

// UnsignedTransaction is a chain-specific transaction ready for SigningOracle.
type UnsignedTransaction struct {
	Chain   ChainId
	Payload []byte // serialized, chain-specific unsigned transaction
	SigHash []byte // the hash the SigningOracle must sign
}

// SignedTransaction carries a signature produced by the SigningOracle,
// attached back to its unsigned payload for broadcast.
type SignedTransaction struct {
	Chain     ChainId
	Payload   []byte
	Signature []byte
}

// String implements fmt.Stringer for log lines.
func (c ChainId) String() string {
	return string(c)
}

// ErrUnsupportedChain is returned by registry lookups for an unknown ChainId.
type ErrUnsupportedChain struct {
	Chain ChainId
}

func (e *ErrUnsupportedChain) Error() string {
	return fmt.Sprintf("unsupported chain: %s", e.Chain)
}
