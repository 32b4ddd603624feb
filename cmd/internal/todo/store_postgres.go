package todo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a Store backed by PostgreSQL.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
// - Close() is therefore a no-op.
//
// Every query carries the owner in its WHERE clause, so a forged or guessed
// id can never reach another owner's rows.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed Store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("todo: nil pool")
	}
	return &PostgresStore{pool: pool}, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

// ListByOwner returns all todos for ownerID ordered by id ASC.
func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID string) ([]Todo, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, completed, user_id
		FROM todos
		WHERE user_id = $1
		ORDER BY id ASC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Todo, 0, 16)
	for rows.Next() {
		var t Todo
		if err := rows.Scan(&t.ID, &t.Title, &t.Completed, &t.UserID); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Insert creates a todo with a server-assigned id and completed=false.
func (s *PostgresStore) Insert(ctx context.Context, ownerID, title string) (Todo, error) {
	var t Todo
	err := s.pool.QueryRow(ctx, `
		INSERT INTO todos (title, completed, user_id)
		VALUES ($1, FALSE, $2)
		RETURNING id, title, completed, user_id
	`, title, ownerID).Scan(&t.ID, &t.Title, &t.Completed, &t.UserID)
	if err != nil {
		return Todo{}, err
	}
	return t, nil
}

// SetCompleted updates the completed flag of an owned todo.
func (s *PostgresStore) SetCompleted(ctx context.Context, ownerID string, id int64, completed bool) (Todo, error) {
	var t Todo
	err := s.pool.QueryRow(ctx, `
		UPDATE todos
		SET completed = $1
		WHERE id = $2 AND user_id = $3
		RETURNING id, title, completed, user_id
	`, completed, id, ownerID).Scan(&t.ID, &t.Title, &t.Completed, &t.UserID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Todo{}, ErrNotFound
	}
	if err != nil {
		return Todo{}, err
	}
	return t, nil
}

// Delete removes an owned todo.
func (s *PostgresStore) Delete(ctx context.Context, ownerID string, id int64) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM todos
		WHERE id = $1 AND user_id = $2
	`, id, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
