package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Service implements token validation for todosync.
//
// It resolves an opaque bearer token to the owning user and session, and
// performs lazy expiry deletion: an expired session discovered during
// validation is removed before the error is returned.
type Service struct {
	log   *slog.Logger
	store Store
}

// NewService constructs a Service over the provided store.
func NewService(log *slog.Logger, store Store) *Service {
	return &Service{log: log, store: store}
}

// Validate resolves token to its identity and session row.
//
// A session is valid iff its expiry is strictly in the future at "now".
// Errors: ErrNoToken, ErrSessionNotFound, ErrSessionExpired, or a store error.
func (s *Service) Validate(ctx context.Context, token string, now time.Time) (Identity, Row, error) {
	token = normalizeToken(token)
	if token == "" {
		return Identity{}, Row{}, ErrNoToken
	}

	sessionID := TokenID(token)

	row, ident, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return Identity{}, Row{}, err
	}

	if !row.ExpiresAt.After(now) {
		// Lazy expiry: the row is removed as a side effect of the lookup
		// that discovered it. A concurrent delete is fine (no-op).
		if err := s.store.Delete(ctx, sessionID); err != nil {
			return Identity{}, Row{}, fmt.Errorf("delete expired session: %w", err)
		}
		s.log.Info("session.expired.deleted", "session_id", sessionID, "user_id", row.UserID)
		return Identity{}, Row{}, ErrSessionExpired
	}

	return ident, row, nil
}
