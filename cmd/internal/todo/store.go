// Package todo contains the durable record store boundary for todosync.
package todo

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an id does not exist or is not owned by the caller.
// Callers cannot distinguish the two cases, which keeps cross-owner probing blind.
var ErrNotFound = errors.New("todo not found")

// Todo is the persisted record.
//
// Only Completed is ever mutated after creation; ID is server-assigned and immutable.
type Todo struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
	UserID    string `json:"userId"`
}

// Store persists and queries todos.
//
// Every operation is owner-scoped: implementations must never touch a record
// whose user_id differs from ownerID, regardless of the id argument.
type Store interface {
	// ListByOwner returns all todos for ownerID, ordered by id ASC.
	ListByOwner(ctx context.Context, ownerID string) ([]Todo, error)

	// Insert creates a todo with a server-assigned id and completed=false.
	Insert(ctx context.Context, ownerID, title string) (Todo, error)

	// SetCompleted updates the completed flag of an owned todo.
	// Returns ErrNotFound when id is absent or owned by someone else.
	SetCompleted(ctx context.Context, ownerID string, id int64, completed bool) (Todo, error)

	// Delete removes an owned todo.
	// Returns ErrNotFound when id is absent or owned by someone else.
	Delete(ctx context.Context, ownerID string, id int64) error

	Close() error
}
