// Copyright 2025 DeFlow
//
// Treasury Repository - append-only audit log for team earnings
// distributions and withdrawals. Adapted from repository_anchor.go's
// CRUD-over-QueryRowContext idiom, narrowed to the insert-then-read shape
// an audit trail needs (no update path: distribution rows are immutable).

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TreasuryRepository persists treasury distribution and withdrawal events.
type TreasuryRepository struct {
	client *Client
}

// NewTreasuryRepository creates a treasury repository.
func NewTreasuryRepository(client *Client) *TreasuryRepository {
	return &TreasuryRepository{client: client}
}

// DistributionRecord is one executed monthly profit distribution.
type DistributionRecord struct {
	DistributionID   uuid.UUID
	NetProfitUSD     float64
	DistributableUSD float64
	ReserveUSD       float64
	MemberCount      int
	ExecutedAt       time.Time
}

// RecordDistribution inserts an immutable audit row for a completed
// distribution run.
func (r *TreasuryRepository) RecordDistribution(ctx context.Context, rec *DistributionRecord) error {
	rec.DistributionID = uuid.New()

	query := `
		INSERT INTO treasury_distributions (
			distribution_id, net_profit_usd, distributable_usd, reserve_usd, member_count, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.client.ExecContext(ctx, query,
		rec.DistributionID, rec.NetProfitUSD, rec.DistributableUSD, rec.ReserveUSD, rec.MemberCount, rec.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record distribution: %w", err)
	}
	return nil
}

// WithdrawalRecord is one team member's earnings withdrawal.
type WithdrawalRecord struct {
	WithdrawalID uuid.UUID
	Principal    string
	AmountUSD    float64
	WithdrawnAt  time.Time
}

// RecordWithdrawal inserts an immutable audit row for a team member
// withdrawing accumulated earnings.
func (r *TreasuryRepository) RecordWithdrawal(ctx context.Context, rec *WithdrawalRecord) error {
	rec.WithdrawalID = uuid.New()

	query := `
		INSERT INTO treasury_withdrawals (withdrawal_id, principal, amount_usd, withdrawn_at)
		VALUES ($1, $2, $3, $4)`

	_, err := r.client.ExecContext(ctx, query, rec.WithdrawalID, rec.Principal, rec.AmountUSD, rec.WithdrawnAt)
	if err != nil {
		return fmt.Errorf("failed to record withdrawal: %w", err)
	}
	return nil
}

// ListDistributions returns the most recent distributions, newest first,
// capped at limit.
func (r *TreasuryRepository) ListDistributions(ctx context.Context, limit int) ([]*DistributionRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.client.QueryContext(ctx, `
		SELECT distribution_id, net_profit_usd, distributable_usd, reserve_usd, member_count, executed_at
		FROM treasury_distributions
		ORDER BY executed_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list distributions: %w", err)
	}
	defer rows.Close()

	var out []*DistributionRecord
	for rows.Next() {
		rec := &DistributionRecord{}
		if err := rows.Scan(&rec.DistributionID, &rec.NetProfitUSD, &rec.DistributableUSD, &rec.ReserveUSD, &rec.MemberCount, &rec.ExecutedAt); err != nil {
			return nil, fmt.Errorf("failed to scan distribution row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
