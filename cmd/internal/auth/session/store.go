package session

import (
	"context"
	"time"
)

// Identity is the authenticated user a session belongs to.
type Identity struct {
	ID       string
	Username string
}

// Row mirrors a stored session record.
//
// The id is derived from the bearer token (SHA-256 hex), so the plain token
// never touches the database.
type Row struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
}

// Store abstracts persistence for session lookup and lazy expiry deletion.
type Store interface {
	// Get loads a session row and its owning identity by session id.
	// Returns ErrSessionNotFound when the id matches nothing.
	Get(ctx context.Context, sessionID string) (Row, Identity, error)

	// Delete removes a session row. Deleting an absent row is a no-op,
	// not an error (lazy expiry must be at-most-once but race-tolerant).
	Delete(ctx context.Context, sessionID string) error
}
