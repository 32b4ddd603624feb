package todo

import (
	"context"
	"errors"
	"testing"
)

func TestInMemoryStore_InsertAndList(t *testing.T) {
	t.Parallel()

	s := NewInMemoryStore()
	ctx := context.Background()

	a, err := s.Insert(ctx, "owner-1", "milk")
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if a.ID == 0 || a.Completed || a.Title != "milk" || a.UserID != "owner-1" {
		t.Fatalf("unexpected todo: %+v", a)
	}

	b, err := s.Insert(ctx, "owner-1", "eggs")
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if b.ID <= a.ID {
		t.Fatalf("ids must be increasing: %d then %d", a.ID, b.ID)
	}

	if _, err := s.Insert(ctx, "owner-2", "other"); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	list, err := s.ListByOwner(ctx, "owner-1")
	if err != nil {
		t.Fatalf("ListByOwner: %v", err)
	}
	if len(list) != 2 || list[0].ID != a.ID || list[1].ID != b.ID {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestInMemoryStore_SetCompleted(t *testing.T) {
	t.Parallel()

	s := NewInMemoryStore()
	ctx := context.Background()

	created, err := s.Insert(ctx, "owner-1", "milk")
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	updated, err := s.SetCompleted(ctx, "owner-1", created.ID, true)
	if err != nil {
		t.Fatalf("SetCompleted: %v", err)
	}
	if !updated.Completed || updated.Title != "milk" {
		t.Fatalf("unexpected todo: %+v", updated)
	}

	// Cross-owner update must look like a missing record.
	if _, err := s.SetCompleted(ctx, "owner-2", created.ID, true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for cross-owner update, got %v", err)
	}

	if _, err := s.SetCompleted(ctx, "owner-1", 9999, true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for absent id, got %v", err)
	}
}

func TestInMemoryStore_Delete(t *testing.T) {
	t.Parallel()

	s := NewInMemoryStore()
	ctx := context.Background()

	created, err := s.Insert(ctx, "owner-1", "milk")
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if err := s.Delete(ctx, "owner-2", created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for cross-owner delete, got %v", err)
	}

	if err := s.Delete(ctx, "owner-1", created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	// Second delete of the same id is a NotFound, not a success.
	if err := s.Delete(ctx, "owner-1", created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}

	list, err := s.ListByOwner(ctx, "owner-1")
	if err != nil {
		t.Fatalf("ListByOwner: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %+v", list)
	}
}
