// Copyright 2025 DeFlow
//
// Unit tests for TreasuryRepository. Uses a live test database (set
// DEFLOW_TEST_DB to a Postgres DSN) or skips.

package database

import (
	"context"
	"testing"
	"time"
)

func TestRecordAndListDistributions(t *testing.T) {
	if testDB == nil {
		t.Skip("test database not configured")
	}
	repo := NewTreasuryRepository(testClient())
	ctx := context.Background()

	defer func() {
		_, _ = testDB.ExecContext(ctx, "DELETE FROM treasury_distributions WHERE member_count = $1", 7)
	}()

	if err := repo.RecordDistribution(ctx, &DistributionRecord{
		NetProfitUSD:     10000,
		DistributableUSD: 9000,
		ReserveUSD:       1000,
		MemberCount:      7,
		ExecutedAt:       time.Now(),
	}); err != nil {
		t.Fatalf("unexpected error recording distribution: %v", err)
	}

	distributions, err := repo.ListDistributions(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error listing distributions: %v", err)
	}
	found := false
	for _, d := range distributions {
		if d.MemberCount == 7 {
			found = true
		}
	}
	if !found {
		t.Fatal("expected the recorded distribution to be listed")
	}
}

func TestRecordWithdrawal(t *testing.T) {
	if testDB == nil {
		t.Skip("test database not configured")
	}
	repo := NewTreasuryRepository(testClient())
	ctx := context.Background()

	if err := repo.RecordWithdrawal(ctx, &WithdrawalRecord{
		Principal:   "acc://team-member.acme",
		AmountUSD:   500,
		WithdrawnAt: time.Now(),
	}); err != nil {
		t.Fatalf("unexpected error recording withdrawal: %v", err)
	}
}
