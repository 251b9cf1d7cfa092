// Copyright 2025 DeFlow
//
// Package signing defines the abstract threshold-signing boundary every
// ChainAdapter derives addresses and signs transactions through. DeFlow
// never holds a user's private key: every address is derived from a public
// key the Oracle returns for a deterministic derivation path, and every
// transaction is signed by handing the Oracle a sighash, the way the
// original canister delegates to ic_cdk's threshold ECDSA/Schnorr/EdDSA
// instead of custodying keys.
package signing

import "context"

// Scheme identifies the signature algorithm a derivation path produces.
type Scheme string

const (
	SchemeECDSASecp256k1 Scheme = "ecdsa_secp256k1" // Bitcoin, EVM
	SchemeEd25519        Scheme = "ed25519"         // Solana
	SchemeSchnorr        Scheme = "schnorr_bip340"  // Bitcoin taproot
)

// DerivationPath is the byte-path handed to the oracle to deterministically
// scope a key to (product, chain, user[, index]). Grounded on the original's
// get_derivation_path: [b"deflow", b"bitcoin", user_bytes] /
// [b"ethereum", user_bytes].
type DerivationPath [][]byte

// NewDerivationPath builds a path from string segments, UTF-8 encoded.
func NewDerivationPath(segments ...string) DerivationPath {
	path := make(DerivationPath, len(segments))
	for i, s := range segments {
		path[i] = []byte(s)
	}
	return path
}

// Oracle is the abstract signing boundary. Production deployments back this
// with a threshold-ECDSA/EdDSA network; tests back it with a deterministic
// local stand-in. That stand-in, LocalOracle, derives private keys and
// caches them in process memory.
type Oracle interface {
	// PublicKey returns the public key material for path under scheme.
	PublicKey(ctx context.Context, scheme Scheme, path DerivationPath) ([]byte, error)

	// Sign returns a signature over sigHash for path under scheme.
	Sign(ctx context.Context, scheme Scheme, path DerivationPath, sigHash []byte) ([]byte, error)
}

// KeyName identifies which named oracle key a derivation path is scoped
// under (analogous to the original's `key_name` field on the per-chain
// address manager), so one Oracle instance can serve several environments
// (e.g. "dfx_test_key" vs a production key) without re-deriving paths.
type KeyName string
