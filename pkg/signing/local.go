package signing

import (
	"context"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// LocalOracle is a deterministic, in-process stand-in for a real threshold
// signing network. It derives a path-scoped keypair via HMAC-SHA256(seed,
// path) the same way the teacher's Ed25519StrategyConfig is handed an
// already-derived key rather than deriving it itself - this repo owns the
// derivation step because the spec's SigningOracle contract puts derivation
// in scope, production signing out of scope.
//
// Not for production use: a real deployment replaces this with a call into
// a threshold-ECDSA/EdDSA signing network that never reconstructs a whole
// private key in one place.
type LocalOracle struct {
	seed []byte

	mu   sync.Mutex
	keys map[string]derivedKey
}

type derivedKey struct {
	scheme Scheme
	priv   []byte
}

// NewLocalOracle builds a LocalOracle seeded with masterSeed. The same seed
// always derives the same keys for the same path, so tests are reproducible.
func NewLocalOracle(masterSeed []byte) *LocalOracle {
	return &LocalOracle{
		seed: masterSeed,
		keys: make(map[string]derivedKey),
	}
}

func pathKey(scheme Scheme, path DerivationPath) string {
	h := sha256.New()
	h.Write([]byte(scheme))
	for _, seg := range path {
		h.Write([]byte{0})
		h.Write(seg)
	}
	return string(h.Sum(nil))
}

func (o *LocalOracle) derive(scheme Scheme, path DerivationPath) derivedKey {
	key := pathKey(scheme, path)

	o.mu.Lock()
	defer o.mu.Unlock()

	if dk, ok := o.keys[key]; ok {
		return dk
	}

	mac := hmac.New(sha256.New, o.seed)
	mac.Write([]byte(key))
	seed := mac.Sum(nil)

	dk := derivedKey{scheme: scheme, priv: seed}
	o.keys[key] = dk
	return dk
}

// PublicKey implements Oracle.
func (o *LocalOracle) PublicKey(ctx context.Context, scheme Scheme, path DerivationPath) ([]byte, error) {
	dk := o.derive(scheme, path)

	switch scheme {
	case SchemeECDSASecp256k1, SchemeSchnorr:
		_, pub := btcec.PrivKeyFromBytes(dk.priv)
		return pub.SerializeUncompressed(), nil
	case SchemeEd25519:
		priv := ed25519.NewKeyFromSeed(dk.priv)
		pub := priv.Public().(ed25519.PublicKey)
		return []byte(pub), nil
	default:
		return nil, fmt.Errorf("signing: unsupported scheme %q", scheme)
	}
}

// Sign implements Oracle.
func (o *LocalOracle) Sign(ctx context.Context, scheme Scheme, path DerivationPath, sigHash []byte) ([]byte, error) {
	dk := o.derive(scheme, path)

	switch scheme {
	case SchemeECDSASecp256k1:
		priv, _ := btcec.PrivKeyFromBytes(dk.priv)
		sig := ecdsa.Sign(priv, sigHash)
		return sig.Serialize(), nil
	case SchemeEd25519:
		priv := ed25519.NewKeyFromSeed(dk.priv)
		return ed25519.Sign(priv, sigHash), nil
	case SchemeSchnorr:
		// Taproot key-path Schnorr signing is intentionally left
		// unimplemented: the original's tweak_public_key_for_taproot is
		// itself a placeholder (a plain SHA256, not real BIP-341 tweaking),
		// so a faithful port has nothing real to sign against yet.
		return nil, fmt.Errorf("signing: schnorr signing not implemented")
	default:
		return nil, fmt.Errorf("signing: unsupported scheme %q", scheme)
	}
}
