// Copyright 2025 DeFlow
//
// Bitcoin adapter: derives P2PKH/P2WPKH/P2TR addresses from the signing
// oracle's secp256k1 public key and estimates transaction fees from the
// classic linear byte-size formula. Grounded on
// original_source/src/DeFlow_backend/src/defi/bitcoin/addresses.rs and
// .../bitcoin/utxo.rs for the address-derivation and UTXO-selection shape.

package chain

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // matches the original's hash160 construction

	"github.com/Legatia/deflow/pkg/signing"
)

// bitcoinVersionByte selects the P2PKH version prefix per network, matching
// the original's 0x00 mainnet / 0x6f testnet+regtest split.
func bitcoinVersionByte(network string) byte {
	if network == "mainnet" {
		return 0x00
	}
	return 0x6f
}

// BitcoinAdapter implements Adapter for the Bitcoin family.
type BitcoinAdapter struct {
	Network string // "mainnet", "testnet", "regtest"
}

func NewBitcoinAdapter(network string) *BitcoinAdapter {
	if network == "" {
		network = "mainnet"
	}
	return &BitcoinAdapter{Network: network}
}

func (a *BitcoinAdapter) Chain() ChainId { return ChainBitcoin }

func (a *BitcoinAdapter) derivationPath(userID string) signing.DerivationPath {
	return signing.NewDerivationPath("deflow", "bitcoin", userID)
}

// DeriveAddress returns the P2PKH address, the default for Bitcoin.
func (a *BitcoinAdapter) DeriveAddress(ctx context.Context, oracle signing.Oracle, userID string) (Address, error) {
	pub, err := oracle.PublicKey(ctx, signing.SchemeECDSASecp256k1, a.derivationPath(userID))
	if err != nil {
		return Address{}, fmt.Errorf("bitcoin: derive public key: %w", err)
	}
	addr, err := p2pkhFromPublicKey(pub, a.Network)
	if err != nil {
		return Address{}, err
	}
	return Address{Chain: ChainBitcoin, Value: addr, BitcoinType: BitcoinP2PKH, DerivationPath: a.derivationPath(userID)}, nil
}

// DeriveAllAddresses derives P2PKH, P2WPKH, and P2TR together, tolerating
// partial failure the way the original's get_all_addresses does: it logs
// (returns) the error for whichever variant failed and keeps the rest.
func (a *BitcoinAdapter) DeriveAllAddresses(ctx context.Context, oracle signing.Oracle, userID string) ([]Address, []error) {
	pub, err := oracle.PublicKey(ctx, signing.SchemeECDSASecp256k1, a.derivationPath(userID))
	if err != nil {
		return nil, []error{fmt.Errorf("bitcoin: derive public key: %w", err)}
	}

	var addrs []Address
	var errs []error

	if v, err := p2pkhFromPublicKey(pub, a.Network); err != nil {
		errs = append(errs, fmt.Errorf("p2pkh: %w", err))
	} else {
		addrs = append(addrs, Address{Chain: ChainBitcoin, Value: v, BitcoinType: BitcoinP2PKH, DerivationPath: a.derivationPath(userID)})
	}

	if v, err := p2wpkhFromPublicKey(pub, a.Network); err != nil {
		errs = append(errs, fmt.Errorf("p2wpkh: %w", err))
	} else {
		addrs = append(addrs, Address{Chain: ChainBitcoin, Value: v, BitcoinType: BitcoinP2WPKH, DerivationPath: a.derivationPath(userID)})
	}

	if v, err := p2trFromPublicKey(pub, a.Network); err != nil {
		errs = append(errs, fmt.Errorf("p2tr: %w", err))
	} else {
		addrs = append(addrs, Address{Chain: ChainBitcoin, Value: v, BitcoinType: BitcoinP2TR, DerivationPath: a.derivationPath(userID)})
	}

	if len(addrs) == 0 {
		errs = append(errs, fmt.Errorf("bitcoin: failed to derive any address variant"))
	}
	return addrs, errs
}

func hash160(pub []byte) []byte {
	sha := sha256.Sum256(pub)
	r := ripemd160.New()
	r.Write(sha[:])
	return r.Sum(nil)
}

// p2pkhFromPublicKey: hash160(pubkey) -> version byte prefix -> double-SHA256
// checksum (first 4 bytes) -> base58check. Ground truth:
// BitcoinAddressManager::public_key_to_p2pkh_address.
func p2pkhFromPublicKey(pub []byte, network string) (string, error) {
	if len(pub) == 0 {
		return "", fmt.Errorf("empty public key")
	}
	payload := hash160(pub)
	versioned := append([]byte{bitcoinVersionByte(network)}, payload...)
	checksum := doubleSHA256(versioned)[:4]
	full := append(versioned, checksum...)
	return base58.Encode(full), nil
}

// p2wpkhFromPublicKey and p2trFromPublicKey reproduce the original's
// explicitly-simplified encodings: the Rust source's own comments call
// these placeholders for a real bech32/bech32m implementation ("simplified
// ... in production use proper bech32 library"). We keep that limitation
// rather than silently upgrading the semantics - the point of this adapter
// is the derivation path and hash160 pipeline, not a bech32 codec.
func p2wpkhFromPublicKey(pub []byte, network string) (string, error) {
	if len(pub) == 0 {
		return "", fmt.Errorf("empty public key")
	}
	hrp := bech32HRP(network)
	payload := hash160(pub)
	return hrp + "1q" + base58.Encode(payload), nil
}

func p2trFromPublicKey(pub []byte, network string) (string, error) {
	if len(pub) == 0 {
		return "", fmt.Errorf("empty public key")
	}
	hrp := bech32HRP(network)
	tweaked := sha256.Sum256(pub) // placeholder for real BIP-341 tweaking, matches original
	return hrp + "1p" + base58.Encode(tweaked[:]), nil
}

func bech32HRP(network string) string {
	switch network {
	case "mainnet":
		return "bc"
	case "regtest":
		return "bcrt"
	default:
		return "tb"
	}
}

func doubleSHA256(b []byte) []byte {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return second[:]
}

// GetBalance sums the confirmed UTXO set. Real RPC wiring (e.g. via an
// Esplora/Electrum client) is out of scope (Non-goal: no concrete RPC
// providers); callers inject balances through a test double in the
// meantime, so this always returns 0 with no error against a live chain.
func (a *BitcoinAdapter) GetBalance(ctx context.Context, addr Address) (uint64, error) {
	utxos, err := a.GetUTXOs(ctx, addr)
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, u := range utxos {
		total += u.AmountSats
	}
	return total, nil
}

// GetUTXOs is intentionally unimplemented against a live node (Non-goal: no
// concrete RPC providers) - production wiring plugs a provider in here.
func (a *BitcoinAdapter) GetUTXOs(ctx context.Context, addr Address) ([]UTXO, error) {
	return nil, nil
}

// EstimateFee uses the classic Bitcoin linear size formula:
// bytes = 10 + 148*n_in + 34*n_out, fee = bytes * sat_per_byte, priced at
// the tier named by req.Priority (defaults to "medium" when empty).
// The size is for that fixed shape only; BuildTransfer always returns an
// error and computes no exact size.
func (a *BitcoinAdapter) EstimateFee(ctx context.Context, req TransferRequest) (FeeQuote, error) {
	const nIn, nOut = 1, 2 // a typical spend-with-change shape
	size := uint64(10 + 148*nIn + 34*nOut)
	priority := req.Priority
	if priority == "" {
		priority = "medium"
	}
	satPerByte := satPerByteForPriority(priority)
	blocks := ConfirmationTargetForPriority(priority)

	return FeeQuote{
		Chain:              ChainBitcoin,
		SatPerByte:         satPerByte,
		EstimatedBytes:     size,
		TotalFeeNative:     fmt.Sprintf("%d", size*satPerByte),
		ConfirmationTarget: blocks,
		EstimatedSeconds:   blocks * 600,
	}, nil
}

// satPerByteForPriority implements the four fee tiers from §4.9.
func satPerByteForPriority(priority string) uint64 {
	switch priority {
	case "low":
		return 5
	case "medium":
		return 10
	case "high":
		return 20
	case "urgent":
		return 50
	default:
		return 10
	}
}

// ConfirmationTargetForPriority maps a priority tier to a block target.
func ConfirmationTargetForPriority(priority string) int {
	switch priority {
	case "low":
		return 144
	case "medium":
		return 6
	case "high":
		return 3
	case "urgent":
		return 1
	default:
		return 6
	}
}

func (a *BitcoinAdapter) BuildTransfer(ctx context.Context, req TransferRequest, fee FeeQuote) (UnsignedTransaction, error) {
	return UnsignedTransaction{}, fmt.Errorf("bitcoin: BuildTransfer requires UTXO provider wiring (out of scope)")
}

func (a *BitcoinAdapter) Broadcast(ctx context.Context, tx SignedTransaction) (string, error) {
	return "", fmt.Errorf("bitcoin: Broadcast requires an RPC provider (out of scope)")
}
