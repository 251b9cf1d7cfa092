package treasury

import (
	"testing"
	"time"

	"github.com/Legatia/deflow/pkg/apperrors"
)

func TestDistributionSplitsEightyTwentyAcrossHierarchy(t *testing.T) {
	hierarchy := TeamHierarchy{
		OwnerPrincipal: "owner",
		Developers:     []string{"dev-1", "dev-2"},
	}
	l := NewLedger(hierarchy, 1000)
	l.AddSubscriptionRevenue(50000)
	l.AddTransactionFeeRevenue(10000)

	netProfit := l.MonthlyProfit() // 60000 - max(0, 15000) = 45000
	if netProfit != 45000 {
		t.Fatalf("expected net profit 45000, got %v", netProfit)
	}

	if err := l.CheckAndExecuteDistribution(time.Now()); err != nil {
		t.Fatalf("unexpected error running distribution: %v", err)
	}

	wantPerMember := 45000 * 0.8 / 3 // owner + 2 devs
	if got := l.TeamMemberEarnings["owner"]; got != wantPerMember {
		t.Errorf("owner earnings = %v, want %v", got, wantPerMember)
	}
	if got := l.TeamMemberEarnings["dev-1"]; got != wantPerMember {
		t.Errorf("dev-1 earnings = %v, want %v", got, wantPerMember)
	}
	if got := l.EmergencyFund; got != 45000*0.2 {
		t.Errorf("emergency fund = %v, want %v", got, 45000*0.2)
	}

	// Revenue buckets reset after a successful distribution.
	if l.TotalMonthlyRevenue() != 0 {
		t.Errorf("expected revenue buckets reset to zero, got %v", l.TotalMonthlyRevenue())
	}
}

func TestDistributionSkippedWhenFrequencyNotElapsed(t *testing.T) {
	l := NewLedger(TeamHierarchy{OwnerPrincipal: "owner"}, 1000)
	l.AddSubscriptionRevenue(50000)
	l.LastDistributionTime = time.Now()

	if err := l.CheckAndExecuteDistribution(time.Now()); err != nil {
		t.Fatalf("expected no-op (nil error) before frequency elapses, got %v", err)
	}
	if l.TotalMonthlyRevenue() == 0 {
		t.Fatal("expected revenue untouched when distribution was skipped")
	}
}

func TestDistributionRejectedBelowMinimumThreshold(t *testing.T) {
	l := NewLedger(TeamHierarchy{OwnerPrincipal: "owner"}, 100000)
	l.AddSubscriptionRevenue(20000) // net profit 5000 < 100000 minimum

	err := l.CheckAndExecuteDistribution(time.Now())
	if kind, ok := apperrors.KindOf(err); !ok || kind != apperrors.KindNoEarnings {
		t.Fatalf("expected KindNoEarnings, got %v (%v)", kind, err)
	}
}

func TestWithdrawEarningsRejectsNonMember(t *testing.T) {
	l := NewLedger(TeamHierarchy{OwnerPrincipal: "owner"}, 1000)
	_, err := l.WithdrawEarnings("stranger")
	if kind, ok := apperrors.KindOf(err); !ok || kind != apperrors.KindUnauthorizedTeamMember {
		t.Fatalf("expected KindUnauthorizedTeamMember, got %v (%v)", kind, err)
	}
}

func TestWithdrawEarningsZeroesBalance(t *testing.T) {
	l := NewLedger(TeamHierarchy{OwnerPrincipal: "owner"}, 1000)
	l.AddSubscriptionRevenue(50000)
	if err := l.CheckAndExecuteDistribution(time.Now()); err != nil {
		t.Fatalf("unexpected distribution error: %v", err)
	}

	amount, err := l.WithdrawEarnings("owner")
	if err != nil {
		t.Fatalf("unexpected withdraw error: %v", err)
	}
	if amount <= 0 {
		t.Fatalf("expected positive withdrawal amount, got %v", amount)
	}
	if l.TeamMemberEarnings["owner"] != 0 {
		t.Fatalf("expected balance zeroed after withdrawal, got %v", l.TeamMemberEarnings["owner"])
	}

	_, err = l.WithdrawEarnings("owner")
	if kind, ok := apperrors.KindOf(err); !ok || kind != apperrors.KindNoEarnings {
		t.Fatalf("expected KindNoEarnings on second withdrawal, got %v (%v)", kind, err)
	}
}
