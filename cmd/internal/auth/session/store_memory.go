package session

import (
	"context"
	"sync"
)

// InMemoryStore is a dev/test fallback when no database is configured.
type InMemoryStore struct {
	mu    sync.Mutex
	rows  map[string]Row
	users map[string]Identity
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		rows:  make(map[string]Row),
		users: make(map[string]Identity),
	}
}

// Seed installs a session and its identity. Intended for dev mode and tests.
func (s *InMemoryStore) Seed(row Row, ident Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[row.ID] = row
	s.users[row.UserID] = ident
}

// Get loads a session row and its identity by session id.
func (s *InMemoryStore) Get(ctx context.Context, sessionID string) (Row, Identity, error) {
	if err := ctx.Err(); err != nil {
		return Row{}, Identity{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[sessionID]
	if !ok {
		return Row{}, Identity{}, ErrSessionNotFound
	}
	ident, ok := s.users[row.UserID]
	if !ok {
		return Row{}, Identity{}, ErrSessionNotFound
	}
	return row, ident, nil
}

// Delete removes a session row (no-op when absent).
func (s *InMemoryStore) Delete(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, sessionID)
	return nil
}
