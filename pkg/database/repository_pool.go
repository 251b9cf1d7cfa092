// Copyright 2025 DeFlow
//
// Pool Repository - append-only audit log for liquidity reserve deposits,
// withdrawals, and phase transitions. Adapted from repository_anchor.go's
// insert-and-list idiom.

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PoolRepository persists pool reserve and phase-transition audit rows.
type PoolRepository struct {
	client *Client
}

// NewPoolRepository creates a pool repository.
func NewPoolRepository(client *Client) *PoolRepository {
	return &PoolRepository{client: client}
}

// ReserveEventRecord is one deposit or withdrawal against pool reserves.
type ReserveEventRecord struct {
	EventID     uuid.UUID
	ChainID     string
	Asset       string
	EventType   string // "deposit", "withdrawal", "fee"
	AmountSats  uint64
	OccurredAt  time.Time
}

// RecordReserveEvent inserts an immutable audit row for a reserve mutation.
func (r *PoolRepository) RecordReserveEvent(ctx context.Context, rec *ReserveEventRecord) error {
	rec.EventID = uuid.New()

	query := `
		INSERT INTO pool_reserve_events (event_id, chain_id, asset, event_type, amount, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.client.ExecContext(ctx, query, rec.EventID, rec.ChainID, rec.Asset, rec.EventType, rec.AmountSats, rec.OccurredAt)
	if err != nil {
		return fmt.Errorf("failed to record reserve event: %w", err)
	}
	return nil
}

// PhaseTransitionRecord is one pool phase change (e.g. bootstrapping -> active).
type PhaseTransitionRecord struct {
	TransitionID uuid.UUID
	FromPhase    string
	ToPhase      string
	Reason       string
	OccurredAt   time.Time
}

// RecordPhaseTransition inserts an immutable audit row for a pool phase
// change.
func (r *PoolRepository) RecordPhaseTransition(ctx context.Context, rec *PhaseTransitionRecord) error {
	rec.TransitionID = uuid.New()

	query := `
		INSERT INTO pool_phase_transitions (transition_id, from_phase, to_phase, reason, occurred_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.client.ExecContext(ctx, query, rec.TransitionID, rec.FromPhase, rec.ToPhase, rec.Reason, rec.OccurredAt)
	if err != nil {
		return fmt.Errorf("failed to record phase transition: %w", err)
	}
	return nil
}

// ListReserveEvents returns the most recent reserve events for chainID/asset,
// newest first, capped at limit.
func (r *PoolRepository) ListReserveEvents(ctx context.Context, chainID, asset string, limit int) ([]*ReserveEventRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.client.QueryContext(ctx, `
		SELECT event_id, chain_id, asset, event_type, amount, occurred_at
		FROM pool_reserve_events
		WHERE chain_id = $1 AND asset = $2
		ORDER BY occurred_at DESC
		LIMIT $3`, chainID, asset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reserve events: %w", err)
	}
	defer rows.Close()

	var out []*ReserveEventRecord
	for rows.Next() {
		rec := &ReserveEventRecord{}
		if err := rows.Scan(&rec.EventID, &rec.ChainID, &rec.Asset, &rec.EventType, &rec.AmountSats, &rec.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan reserve event row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
