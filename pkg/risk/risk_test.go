package risk

import (
	"testing"

	"github.com/Legatia/deflow/pkg/apperrors"
)

func TestLevelForScoreBuckets(t *testing.T) {
	cases := map[int]Level{
		0: LevelLow, 3: LevelLow,
		4: LevelMedium, 6: LevelMedium,
		7: LevelHigh, 8: LevelHigh,
		9: LevelCritical, 10: LevelCritical,
	}
	for score, want := range cases {
		if got := LevelForScore(score); got != want {
			t.Errorf("LevelForScore(%d) = %v, want %v", score, got, want)
		}
	}
}

func TestScoreFlagsHighDrawdownAndBridging(t *testing.T) {
	p := Profile{
		DeclaredRiskLevel:  3,
		ChainCount:         1,
		UsesBridging:       true,
		MaxDrawdownPercent: 25,
		WinRatePercent:     35,
	}
	assessment := Score(p)

	if assessment.CategoryScores[CategoryMarket] < 8 {
		t.Errorf("expected market score >= 8 for 25%% drawdown, got %d", assessment.CategoryScores[CategoryMarket])
	}
	if assessment.CategoryScores[CategoryBridge] != 8 {
		t.Errorf("expected bridge score 8 when UsesBridging, got %d", assessment.CategoryScores[CategoryBridge])
	}
	if assessment.CategoryScores[CategoryConcentration] != 7 {
		t.Errorf("expected concentration score 7 for single chain, got %d", assessment.CategoryScores[CategoryConcentration])
	}

	foundDrawdown, foundBridge := false, false
	for _, f := range assessment.Factors {
		if f == "elevated max drawdown" {
			foundDrawdown = true
		}
		if f == "cross-chain bridging exposure" {
			foundBridge = true
		}
	}
	if !foundDrawdown || !foundBridge {
		t.Errorf("expected drawdown and bridging factors, got %v", assessment.Factors)
	}
}

func TestShouldEmergencyStop(t *testing.T) {
	if !ShouldEmergencyStop(Profile{MaxDrawdownPercent: 35}) {
		t.Error("expected emergency stop at exactly the drawdown threshold")
	}
	if !ShouldEmergencyStop(Profile{WinRatePercent: 15}) {
		t.Error("expected emergency stop at exactly the win-rate threshold")
	}
	if ShouldEmergencyStop(Profile{MaxDrawdownPercent: 34.9, WinRatePercent: 15.1}) {
		t.Error("did not expect emergency stop just below both thresholds")
	}
}

func TestValidateAllocationRejectsOverGlobalLimit(t *testing.T) {
	m := NewManager(100000)
	err := m.ValidateAllocation("user-1", Assessment{Score: 1}, 0, 150000)
	if kind, ok := apperrors.KindOf(err); !ok || kind != apperrors.KindRiskLimitExceeded {
		t.Fatalf("expected KindRiskLimitExceeded, got %v (%v)", kind, err)
	}
}

func TestValidateAllocationRejectsOverUserRiskScore(t *testing.T) {
	m := NewManager(1000000)
	err := m.ValidateAllocation("user-1", Assessment{Score: 9}, 0, 1000)
	if kind, ok := apperrors.KindOf(err); !ok || kind != apperrors.KindRiskLimitExceeded {
		t.Fatalf("expected KindRiskLimitExceeded for high risk score, got %v (%v)", kind, err)
	}
}

func TestValidateAllocationAcceptsWithinLimits(t *testing.T) {
	m := NewManager(1000000)
	err := m.ValidateAllocation("user-1", Assessment{Score: 3}, 0, 1000)
	if err != nil {
		t.Fatalf("expected no error within limits, got %v", err)
	}
}

func TestEmergencyStopLifecycle(t *testing.T) {
	m := NewManager(1000000)
	if ok, _ := m.IsEmergencyStopped("strat-1"); ok {
		t.Fatal("expected no emergency stop initially")
	}
	m.TriggerEmergencyStop("strat-1", "drawdown breach")
	if ok, reason := m.IsEmergencyStopped("strat-1"); !ok || reason != "drawdown breach" {
		t.Fatalf("expected active stop with reason, got ok=%v reason=%q", ok, reason)
	}
	m.ClearEmergencyStop("strat-1")
	if ok, _ := m.IsEmergencyStopped("strat-1"); ok {
		t.Fatal("expected stop cleared")
	}
}
