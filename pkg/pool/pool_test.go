package pool

import (
	"testing"

	"github.com/Legatia/deflow/pkg/apperrors"
	"github.com/Legatia/deflow/pkg/chain"
)

func TestWithdrawalBlockedDuringBootstrap(t *testing.T) {
	m := NewManager()
	s := NewState()
	if err := m.AddLiquidity(s, chain.ChainBitcoin, AssetBTC, 1_00000000); err != nil {
		t.Fatalf("unexpected error seeding liquidity: %v", err)
	}

	err := m.WithdrawForExecution(s, AssetBTC, 1000)
	if kind, ok := apperrors.KindOf(err); !ok || kind != apperrors.KindPhaseBlocked {
		t.Fatalf("expected KindPhaseBlocked during bootstrap, got %v (%v)", kind, err)
	}
}

func TestActivationRequiresBothTargetsAndLiquidity(t *testing.T) {
	m := NewManager()
	s := NewState()
	if err := m.SetBootstrapTargets(s, map[Asset]uint64{AssetBTC: 1_00000000}); err != nil {
		t.Fatalf("unexpected error setting targets: %v", err)
	}

	// Meet the unit target but stay under the USD activation threshold by
	// raising it for this test rather than depositing an unrealistic amount.
	original := ActivationThresholdUSD
	ActivationThresholdUSD = 1_000_000_000
	defer func() { ActivationThresholdUSD = original }()

	if err := m.AddLiquidity(s, chain.ChainBitcoin, AssetBTC, 1_00000000); err != nil {
		t.Fatalf("unexpected error adding liquidity: %v", err)
	}

	err := m.ActivatePool(s)
	if kind, ok := apperrors.KindOf(err); !ok || kind != apperrors.KindBootstrapIncomplete {
		t.Fatalf("expected KindBootstrapIncomplete when liquidity is below threshold, got %v (%v)", kind, err)
	}

	ActivationThresholdUSD = 1.0
	if err := m.ActivatePool(s); err != nil {
		t.Fatalf("expected activation to succeed once both gates pass, got %v", err)
	}
	if s.Phase != PhaseActive {
		t.Fatalf("expected phase Active, got %v", s.Phase)
	}
}

func TestWithdrawalSucceedsOnceActive(t *testing.T) {
	m := NewManager()
	s := NewState()
	original := ActivationThresholdUSD
	ActivationThresholdUSD = 1.0
	defer func() { ActivationThresholdUSD = original }()

	if err := m.AddLiquidity(s, chain.ChainBitcoin, AssetBTC, 1_00000000); err != nil {
		t.Fatalf("unexpected error adding liquidity: %v", err)
	}
	if err := m.ActivatePool(s); err != nil {
		t.Fatalf("unexpected activation error: %v", err)
	}

	if err := m.WithdrawForExecution(s, AssetBTC, 1000); err != nil {
		t.Fatalf("expected withdrawal to succeed once active, got %v", err)
	}
}

func TestWithdrawalBlockedDuringEmergency(t *testing.T) {
	m := NewManager()
	s := NewState()
	m.EmergencyPause(s, "oracle desync")

	err := m.WithdrawForExecution(s, AssetBTC, 1)
	if kind, ok := apperrors.KindOf(err); !ok || kind != apperrors.KindEmergencyStopTriggered {
		t.Fatalf("expected KindEmergencyStopTriggered, got %v (%v)", kind, err)
	}
}

func TestAddToReservesOverflowIsRejected(t *testing.T) {
	m := NewManager()
	s := NewState()
	if err := m.AddLiquidity(s, chain.ChainBitcoin, AssetBTC, ^uint64(0)); err != nil {
		t.Fatalf("unexpected error seeding near-max reserve: %v", err)
	}

	err := m.AddToReserves(s, AssetBTC, 1)
	if kind, ok := apperrors.KindOf(err); !ok || kind != apperrors.KindArithmeticOverflow {
		t.Fatalf("expected KindArithmeticOverflow, got %v (%v)", kind, err)
	}
}

func TestEstimateAssetUSDValue(t *testing.T) {
	// 1 BTC at 8 decimals, $45,000 table price.
	got := EstimateAssetUSDValue(AssetBTC, 100000000)
	if got != 45000.0 {
		t.Fatalf("expected 45000.0, got %v", got)
	}
}

func TestBootstrapProgressWithNoTargetsIsComplete(t *testing.T) {
	m := NewManager()
	s := NewState()
	if got := m.BootstrapProgress(s); got != 1.0 {
		t.Fatalf("expected 1.0 progress with no targets, got %v", got)
	}
}
