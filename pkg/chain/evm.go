// Copyright 2025 DeFlow
//
// EVM adapter: derives Keccak-256/EIP-55 addresses, computes CREATE-opcode
// contract addresses via RLP, and estimates fees with both legacy and
// EIP-1559 strategies. Grounded on
// original_source/src/DeFlow_backend/src/defi/ethereum/addresses.rs for the
// derivation path and address math, and on the teacher's
// pkg/ethereum/client.go retry-loop style for RPC interaction shape.

package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/Legatia/deflow/pkg/signing"
)

// EVMAdapter implements Adapter for Ethereum and its L2s.
type EVMAdapter struct {
	chain ChainId
}

func NewEVMAdapter(chain ChainId) (*EVMAdapter, error) {
	if chain.Family() != FamilyEVM {
		return nil, fmt.Errorf("evm: %s is not an EVM-family chain", chain)
	}
	return &EVMAdapter{chain: chain}, nil
}

func (a *EVMAdapter) Chain() ChainId { return a.chain }

func (a *EVMAdapter) derivationPath(userID string) signing.DerivationPath {
	return signing.NewDerivationPath("ethereum", userID)
}

// DeriveAddress: drop the uncompressed pubkey's 0x04 prefix, Keccak-256 the
// remaining 64 bytes, take the last 20 bytes, EIP-55 checksum-encode.
// Ground truth: EthereumAddressManager::public_key_to_ethereum_address.
func (a *EVMAdapter) DeriveAddress(ctx context.Context, oracle signing.Oracle, userID string) (Address, error) {
	pub, err := oracle.PublicKey(ctx, signing.SchemeECDSASecp256k1, a.derivationPath(userID))
	if err != nil {
		return Address{}, fmt.Errorf("evm: derive public key: %w", err)
	}
	addr, err := publicKeyToEthereumAddress(pub)
	if err != nil {
		return Address{}, err
	}
	return Address{Chain: a.chain, Value: addr, DerivationPath: a.derivationPath(userID)}, nil
}

// DeriveAllAddresses: EVM chains have a single address format, so this is
// DeriveAddress wrapped in the slice-of-one-or-error shape the interface
// requires for parity with Bitcoin's multi-variant derivation.
func (a *EVMAdapter) DeriveAllAddresses(ctx context.Context, oracle signing.Oracle, userID string) ([]Address, []error) {
	addr, err := a.DeriveAddress(ctx, oracle, userID)
	if err != nil {
		return nil, []error{err}
	}
	return []Address{addr}, nil
}

func publicKeyToEthereumAddress(pub []byte) (string, error) {
	if len(pub) != 65 || pub[0] != 0x04 {
		return "", fmt.Errorf("evm: expected 65-byte uncompressed public key with 0x04 prefix, got %d bytes", len(pub))
	}
	hash := crypto.Keccak256(pub[1:])
	addr := common.BytesToAddress(hash[12:])
	return addr.Hex(), nil // common.Address.Hex() already applies EIP-55 mixed-case checksum
}

// ContractDeploymentAddress reproduces CREATE-opcode address derivation:
// keccak256(rlp([sender, nonce]))[12:]. Ground truth:
// EthereumAddressManager::calculate_contract_address.
func ContractDeploymentAddress(sender common.Address, nonce uint64) (common.Address, error) {
	data, err := rlp.EncodeToBytes([]interface{}{sender.Bytes(), nonce})
	if err != nil {
		return common.Address{}, fmt.Errorf("evm: rlp encode: %w", err)
	}
	hash := crypto.Keccak256(data)
	return common.BytesToAddress(hash[12:]), nil
}

// GetBalance requires a live RPC client; out of scope per Non-goals (no
// concrete RPC providers). Production wiring injects an ethclient.Client
// the way the teacher's pkg/ethereum does.
func (a *EVMAdapter) GetBalance(ctx context.Context, addr Address) (uint64, error) {
	return 0, fmt.Errorf("evm: GetBalance requires an RPC provider (out of scope)")
}

func (a *EVMAdapter) GetUTXOs(ctx context.Context, addr Address) ([]UTXO, error) {
	return nil, ErrNotUTXOBased
}

// EstimateFee implements both tiers from §4.9: EIP-1559 pricing with a
// buffer multiplier over fixed placeholder base and priority fees (no fee
// history is queried), and a legacy gas-price multiplier fallback when the
// chain doesn't support 1559 (none of DeFlow's six EVM chains fall in that
// bucket today, but the switch mirrors
// the teacher's SendContractTransactionWithRetry gas-escalation style of
// keeping both code paths live).
func (a *EVMAdapter) EstimateFee(ctx context.Context, req TransferRequest) (FeeQuote, error) {
	const gasLimit = 21000 // plain value transfer; ERC-20 transfers use a higher caller-supplied limit

	priority := req.Priority
	if priority == "" {
		priority = "medium"
	}
	seconds, supportsEIP1559 := a.chain.AverageBlockTime()
	blocks := blocksToConfirmForPriority(priority)

	if !supportsEIP1559 {
		// Legacy gas-price multiplier fallback (§4.10); unreachable for
		// DeFlow's six EVM chains today, but kept live the way the teacher's
		// SendContractTransactionWithRetry keeps both gas strategies ready.
		gasPriceGwei := int64(20) // placeholder absent a live eth_gasPrice call (Non-goal: no RPC providers)
		gasPrice := int64(float64(gasPriceGwei) * legacyGasMultiplier(priority) * 1_000_000_000)
		totalWei := new(big.Int).Mul(big.NewInt(gasPrice), big.NewInt(gasLimit))

		return FeeQuote{
			Chain:              a.chain,
			GasLimit:           gasLimit,
			GasPriceWei:        uint64(gasPrice),
			IsEIP1559:          false,
			TotalFeeNative:     totalWei.String(),
			ConfirmationTarget: blocks,
			EstimatedSeconds:   seconds * blocks,
		}, nil
	}

	baseFeeGwei := int64(20) // placeholder absent a live eth_feeHistory call (Non-goal: no RPC providers)
	priorityGwei := int64(2)
	buffer := eip1559Buffer(priority)

	maxPriority := priorityGwei * 1_000_000_000
	maxFee := int64(float64(baseFeeGwei+priorityGwei) * buffer * 1_000_000_000)

	totalWei := new(big.Int).Mul(big.NewInt(maxFee), big.NewInt(gasLimit))

	return FeeQuote{
		Chain:              a.chain,
		GasLimit:           gasLimit,
		MaxFeePerGasWei:    uint64(maxFee),
		MaxPriorityFeeWei:  uint64(maxPriority),
		IsEIP1559:          true,
		TotalFeeNative:     totalWei.String(),
		ConfirmationTarget: blocks,
		EstimatedSeconds:   seconds * blocks,
	}, nil
}

// eip1559Buffer implements the four buffer tiers from §4.9.
func eip1559Buffer(priority string) float64 {
	switch priority {
	case "low":
		return 1.1
	case "medium":
		return 1.2
	case "high":
		return 1.3
	case "urgent":
		return 1.5
	default:
		return 1.2
	}
}

// legacyGasMultiplier implements the legacy-chain multiplier tiers from §4.9.
func legacyGasMultiplier(priority string) float64 {
	switch priority {
	case "low":
		return 0.9
	case "medium":
		return 1.0
	case "high":
		return 1.2
	case "urgent":
		return 1.5
	default:
		return 1.0
	}
}

// blocksToConfirmForPriority implements the per-priority block-count targets.
func blocksToConfirmForPriority(priority string) int {
	switch priority {
	case "low":
		return 3
	case "medium":
		return 2
	case "high", "urgent":
		return 1
	default:
		return 2
	}
}

func (a *EVMAdapter) BuildTransfer(ctx context.Context, req TransferRequest, fee FeeQuote) (UnsignedTransaction, error) {
	return UnsignedTransaction{}, fmt.Errorf("evm: BuildTransfer requires an RPC provider for nonce/chain state (out of scope)")
}

func (a *EVMAdapter) Broadcast(ctx context.Context, tx SignedTransaction) (string, error) {
	return "", fmt.Errorf("evm: Broadcast requires an RPC provider (out of scope)")
}
