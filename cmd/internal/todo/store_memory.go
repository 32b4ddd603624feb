package todo

import (
	"context"
	"sort"
	"sync"
)

// InMemoryStore is a dev/test fallback when no database is configured.
type InMemoryStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]Todo
}

// NewInMemoryStore constructs an empty in-memory todo store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{rows: make(map[int64]Todo)}
}

// Close closes the store (noop for in-memory).
func (s *InMemoryStore) Close() error { return nil }

// ListByOwner returns all todos for ownerID ordered by id ASC.
func (s *InMemoryStore) ListByOwner(ctx context.Context, ownerID string) ([]Todo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	out := make([]Todo, 0, 8)
	for _, t := range s.rows {
		if t.UserID == ownerID {
			out = append(out, t)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Insert creates a todo with a server-assigned id and completed=false.
func (s *InMemoryStore) Insert(ctx context.Context, ownerID, title string) (Todo, error) {
	if err := ctx.Err(); err != nil {
		return Todo{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	t := Todo{
		ID:        s.nextID,
		Title:     title,
		Completed: false,
		UserID:    ownerID,
	}
	s.rows[t.ID] = t
	return t, nil
}

// SetCompleted updates the completed flag of an owned todo.
func (s *InMemoryStore) SetCompleted(ctx context.Context, ownerID string, id int64, completed bool) (Todo, error) {
	if err := ctx.Err(); err != nil {
		return Todo{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.rows[id]
	if !ok || t.UserID != ownerID {
		return Todo{}, ErrNotFound
	}
	t.Completed = completed
	s.rows[id] = t
	return t, nil
}

// Delete removes an owned todo.
func (s *InMemoryStore) Delete(ctx context.Context, ownerID string, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.rows[id]
	if !ok || t.UserID != ownerID {
		return ErrNotFound
	}
	delete(s.rows, id)
	return nil
}
