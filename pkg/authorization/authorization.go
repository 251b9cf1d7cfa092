// Copyright 2025 DeFlow
//
// Package authorization issues and consumes single-use execution
// authorizations: a workflow action that moves funds must present a valid,
// unexpired, not-yet-consumed authorization before the engine will run it.
// Issue signs each grant with the owning user's session key through
// pkg/signing.Oracle; Consume checks existence, single use and expiry only
// and does not verify the stored signature. Grounded on the teacher's
// sentinel-error + Kind-tagged rejection style (pkg/apperrors).

package authorization

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Legatia/deflow/pkg/apperrors"
	"github.com/Legatia/deflow/pkg/signing"
)

// DefaultExpiry is how long an issued authorization remains valid before it
// must be reissued.
const DefaultExpiry = 5 * time.Minute

// ExecutionAuthorization is a single-use grant to run one workflow
// execution.
type ExecutionAuthorization struct {
	ID          uuid.UUID
	UserID      string
	WorkflowID  uuid.UUID
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Signature   []byte
	SigningHash []byte
	Consumed    bool
}

// Service issues and validates ExecutionAuthorizations, keyed by ID, using
// oracle to sign each grant with the user's derived session key.
type Service struct {
	mu     sync.Mutex
	oracle signing.Oracle
	grants map[uuid.UUID]*ExecutionAuthorization
	expiry time.Duration
}

// NewService creates an authorization service backed by oracle for
// signing issued grants.
func NewService(oracle signing.Oracle, expiry time.Duration) *Service {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Service{
		oracle: oracle,
		grants: make(map[uuid.UUID]*ExecutionAuthorization),
		expiry: expiry,
	}
}

// Issue creates and records a new authorization for userID to run
// workflowID, signed over sigHash using the user's derivation path.
func (s *Service) Issue(ctx context.Context, userID string, workflowID uuid.UUID, sigHash []byte) (*ExecutionAuthorization, error) {
	path := signing.NewDerivationPath("deflow", "authorization", userID)
	sig, err := s.oracle.Sign(ctx, signing.SchemeECDSASecp256k1, path, sigHash)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindSignatureRequired, err)
	}

	now := time.Now()
	grant := &ExecutionAuthorization{
		ID:          uuid.New(),
		UserID:      userID,
		WorkflowID:  workflowID,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.expiry),
		Signature:   sig,
		SigningHash: sigHash,
	}

	s.mu.Lock()
	s.grants[grant.ID] = grant
	s.mu.Unlock()

	return grant, nil
}

// Consume validates and marks an authorization used. An authorization can
// only ever be consumed once; a second attempt (replay) is rejected even if
// it hasn't expired yet. The stored signature is not re-verified here.
func (s *Service) Consume(id uuid.UUID) (*ExecutionAuthorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	grant, ok := s.grants[id]
	if !ok {
		return nil, apperrors.New(apperrors.KindSignatureRequired, "authorization not found")
	}
	if grant.Consumed {
		return nil, apperrors.New(apperrors.KindAuthorizationAlreadyUsed, "authorization already consumed")
	}
	if time.Now().After(grant.ExpiresAt) {
		return nil, apperrors.New(apperrors.KindAuthorizationExpired, "authorization has expired")
	}

	grant.Consumed = true
	return grant, nil
}

// Revoke invalidates an authorization before it's consumed (e.g. the user
// cancelled the action).
func (s *Service) Revoke(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grants, id)
}
