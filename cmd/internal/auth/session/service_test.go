package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func newTestService(t *testing.T) (*Service, *InMemoryStore) {
	t.Helper()
	store := NewInMemoryStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(log, store), store
}

func TestValidate_ValidToken(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	now := time.Now().UTC()

	token := "token-valid-1"
	store.Seed(
		Row{ID: TokenID(token), UserID: "user-1", ExpiresAt: now.Add(time.Hour)},
		Identity{ID: "user-1", Username: "ada"},
	)

	ident, row, err := svc.Validate(context.Background(), token, now)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if ident.ID != "user-1" || ident.Username != "ada" {
		t.Fatalf("unexpected identity: %+v", ident)
	}
	if row.UserID != "user-1" {
		t.Fatalf("unexpected row: %+v", row)
	}
}

func TestValidate_EmptyToken(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)

	_, _, err := svc.Validate(context.Background(), "   ", time.Now().UTC())
	if !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
}

func TestValidate_UnknownToken(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)

	_, _, err := svc.Validate(context.Background(), "nope", time.Now().UTC())
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestValidate_ExpiredTokenDeletesSession(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	now := time.Now().UTC()

	token := "token-expired-1"
	store.Seed(
		Row{ID: TokenID(token), UserID: "user-2", ExpiresAt: now.Add(-time.Minute)},
		Identity{ID: "user-2", Username: "grace"},
	)

	_, _, err := svc.Validate(context.Background(), token, now)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}

	// Lazy expiry removed the row: a second attempt sees no session at all.
	_, _, err = svc.Validate(context.Background(), token, now)
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after lazy delete, got %v", err)
	}
}

func TestValidate_ExpiryBoundaryIsStrict(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	now := time.Now().UTC()

	token := "token-boundary-1"
	store.Seed(
		Row{ID: TokenID(token), UserID: "user-3", ExpiresAt: now},
		Identity{ID: "user-3", Username: "linus"},
	)

	// expiresAt == now is already expired: validity requires strictly-future expiry.
	_, _, err := svc.Validate(context.Background(), token, now)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired at boundary, got %v", err)
	}
}

func TestDelete_AbsentSessionIsNoop(t *testing.T) {
	t.Parallel()

	store := NewInMemoryStore()
	if err := store.Delete(context.Background(), "absent"); err != nil {
		t.Fatalf("Delete absent: %v", err)
	}
}
