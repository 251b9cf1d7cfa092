package signing

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

func hash32(s string) []byte {
	h := sha256.Sum256([]byte(s))
	return h[:]
}

func TestLocalOraclePublicKeyIsDeterministicPerPath(t *testing.T) {
	o := NewLocalOracle([]byte("seed"))
	path := NewDerivationPath("deflow", "bitcoin", "user-1")

	pub1, err := o.PublicKey(context.Background(), SchemeECDSASecp256k1, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pub2, err := o.PublicKey(context.Background(), SchemeECDSASecp256k1, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(pub1, pub2) {
		t.Fatal("expected the same path to derive the same public key")
	}
	if len(pub1) != 65 || pub1[0] != 0x04 {
		t.Fatalf("expected a 65-byte uncompressed secp256k1 public key, got %d bytes starting 0x%x", len(pub1), pub1[0])
	}
}

func TestLocalOracleDifferentPathsDeriveDifferentKeys(t *testing.T) {
	o := NewLocalOracle([]byte("seed"))
	a, err := o.PublicKey(context.Background(), SchemeECDSASecp256k1, NewDerivationPath("deflow", "bitcoin", "user-1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := o.PublicKey(context.Background(), SchemeECDSASecp256k1, NewDerivationPath("deflow", "bitcoin", "user-2"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatal("expected distinct derivation paths to yield distinct keys")
	}
}

func TestLocalOracleECDSASignatureVerifies(t *testing.T) {
	o := NewLocalOracle([]byte("seed"))
	path := NewDerivationPath("deflow", "bitcoin", "user-1")

	pub, err := o.PublicKey(context.Background(), SchemeECDSASecp256k1, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msgHash := hash32("sign me")
	sig, err := o.Sign(context.Background(), SchemeECDSASecp256k1, path, msgHash)
	if err != nil {
		t.Fatalf("unexpected error signing: %v", err)
	}

	parsedSig, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		t.Fatalf("expected a valid DER signature, got error: %v", err)
	}
	parsedPub, err := btcec.ParsePubKey(pub)
	if err != nil {
		t.Fatalf("expected a valid public key, got error: %v", err)
	}
	if !parsedSig.Verify(msgHash, parsedPub) {
		t.Fatal("expected the signature to verify against the derived public key")
	}
}

func TestLocalOracleEd25519SignatureVerifies(t *testing.T) {
	o := NewLocalOracle([]byte("seed"))
	path := NewDerivationPath("solana", "user-1")

	pub, err := o.PublicKey(context.Background(), SchemeEd25519, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	msg := []byte("sign me")
	sig, err := o.Sign(context.Background(), SchemeEd25519, path, msg)
	if err != nil {
		t.Fatalf("unexpected error signing: %v", err)
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), msg, sig) {
		t.Fatal("expected the ed25519 signature to verify")
	}
}

func TestLocalOracleSchnorrSigningIsUnimplemented(t *testing.T) {
	o := NewLocalOracle([]byte("seed"))
	path := NewDerivationPath("deflow", "bitcoin", "user-1")
	if _, err := o.Sign(context.Background(), SchemeSchnorr, path, hash32("x")); err == nil {
		t.Fatal("expected schnorr signing to report unimplemented")
	}
}

func TestLocalOracleUnsupportedSchemeErrors(t *testing.T) {
	o := NewLocalOracle([]byte("seed"))
	path := NewDerivationPath("x")
	if _, err := o.PublicKey(context.Background(), Scheme("bogus"), path); err == nil {
		t.Fatal("expected an unsupported scheme to error")
	}
}
