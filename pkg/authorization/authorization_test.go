package authorization

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Legatia/deflow/pkg/apperrors"
	"github.com/Legatia/deflow/pkg/signing"
)

func TestIssueThenConsumeSucceedsOnce(t *testing.T) {
	oracle := signing.NewLocalOracle([]byte("seed"))
	svc := NewService(oracle, time.Minute)

	grant, err := svc.Issue(context.Background(), "user-1", uuid.New(), []byte("hash"))
	if err != nil {
		t.Fatalf("unexpected error issuing: %v", err)
	}
	if len(grant.Signature) == 0 {
		t.Fatal("expected a non-empty signature")
	}

	consumed, err := svc.Consume(grant.ID)
	if err != nil {
		t.Fatalf("unexpected error consuming: %v", err)
	}
	if !consumed.Consumed {
		t.Fatal("expected the grant to be marked consumed")
	}

	_, err = svc.Consume(grant.ID)
	if kind, ok := apperrors.KindOf(err); !ok || kind != apperrors.KindAuthorizationAlreadyUsed {
		t.Fatalf("expected KindAuthorizationAlreadyUsed on replay, got %v (%v)", kind, err)
	}
}

func TestConsumeRejectsExpiredAuthorization(t *testing.T) {
	oracle := signing.NewLocalOracle([]byte("seed"))
	svc := NewService(oracle, time.Millisecond)

	grant, err := svc.Issue(context.Background(), "user-1", uuid.New(), []byte("hash"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	_, err = svc.Consume(grant.ID)
	if kind, ok := apperrors.KindOf(err); !ok || kind != apperrors.KindAuthorizationExpired {
		t.Fatalf("expected KindAuthorizationExpired, got %v (%v)", kind, err)
	}
}

func TestConsumeUnknownIDFails(t *testing.T) {
	oracle := signing.NewLocalOracle([]byte("seed"))
	svc := NewService(oracle, time.Minute)

	_, err := svc.Consume(uuid.New())
	if kind, ok := apperrors.KindOf(err); !ok || kind != apperrors.KindSignatureRequired {
		t.Fatalf("expected KindSignatureRequired for an unknown grant, got %v (%v)", kind, err)
	}
}

func TestRevokeMakesGrantUnconsumable(t *testing.T) {
	oracle := signing.NewLocalOracle([]byte("seed"))
	svc := NewService(oracle, time.Minute)

	grant, err := svc.Issue(context.Background(), "user-1", uuid.New(), []byte("hash"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc.Revoke(grant.ID)

	_, err = svc.Consume(grant.ID)
	if kind, ok := apperrors.KindOf(err); !ok || kind != apperrors.KindSignatureRequired {
		t.Fatalf("expected KindSignatureRequired after revoke, got %v (%v)", kind, err)
	}
}
