package session

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL (sessions joined with users).
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed session store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("session: nil pool")
	}
	return &PostgresStore{pool: pool}, nil
}

// Get loads a session row and its owning identity by session id.
func (s *PostgresStore) Get(ctx context.Context, sessionID string) (Row, Identity, error) {
	var (
		row   Row
		ident Identity
	)

	err := s.pool.QueryRow(ctx, `
		SELECT s.id, s.user_id, s.expires_at, u.id, u.username
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.id = $1
	`, sessionID).Scan(
		&row.ID,
		&row.UserID,
		&row.ExpiresAt,
		&ident.ID,
		&ident.Username,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, Identity{}, ErrSessionNotFound
	}
	if err != nil {
		return Row{}, Identity{}, err
	}

	return row, ident, nil
}

// Delete removes a session row. Zero rows affected is not an error.
func (s *PostgresStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	return err
}
