// Package v1 defines the todosync wire protocol v1.
//
// This package is intentionally stable and dependency-light.
// It is shared between server and clients to keep the wire protocol authoritative.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Event type constants (wire-stable).
const (
	// TypeFetchTodos requests the full todo list of the connection's owner (client -> server).
	TypeFetchTodos = "fetchTodos"
	// TypeAddTodo requests creation of a todo (client -> server).
	TypeAddTodo = "addTodo"
	// TypeUpdateTodo requests toggling a todo's completed flag (client -> server).
	TypeUpdateTodo = "updateTodo"
	// TypeDeleteTodo requests deletion of a todo (client -> server).
	TypeDeleteTodo = "deleteTodo"

	// TypeTodos returns the full list in reply to fetchTodos (server -> sender).
	TypeTodos = "todos"

	// TypeTodoAdded announces a created todo to the owner's room (server -> room).
	TypeTodoAdded = "todoAdded"
	// TypeTodoUpdated announces a completed-flag change to the owner's room (server -> room).
	TypeTodoUpdated = "todoUpdated"
	// TypeTodoDeleted announces a deletion to the owner's room (server -> room).
	TypeTodoDeleted = "todoDeleted"

	// TypeTodoAddedConfirmation confirms addTodo to the originating connection only.
	TypeTodoAddedConfirmation = "todoAddedConfirmation"
	// TypeTodoUpdateConfirmation confirms updateTodo to the originating connection only.
	TypeTodoUpdateConfirmation = "todoUpdateConfirmation"
	// TypeTodoDeleteConfirmation confirms deleteTodo to the originating connection only.
	TypeTodoDeleteConfirmation = "todoDeleteConfirmation"

	// TypeError is a sender-directed failure reply (server -> sender).
	TypeError = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeFetchTodos,
		TypeAddTodo,
		TypeUpdateTodo,
		TypeDeleteTodo,
		TypeTodos,
		TypeTodoAdded,
		TypeTodoUpdated,
		TypeTodoDeleted,
		TypeTodoAddedConfirmation,
		TypeTodoUpdateConfirmation,
		TypeTodoDeleteConfirmation,
		TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// ---- Payloads ----

// AddTodoPayload requests creation of a todo.
//
// The owner is always the connection's authenticated principal. A legacy
// client field carrying a user id is deliberately absent here; servers must
// never honor one.
type AddTodoPayload struct {
	Title string `json:"title"`
}

// UpdateTodoPayload requests setting the completed flag of an owned todo.
type UpdateTodoPayload struct {
	ID        int64 `json:"id"`
	Completed bool  `json:"completed"`
}

// DeleteTodoPayload requests deletion of an owned todo.
type DeleteTodoPayload struct {
	ID int64 `json:"id"`
}

// TodoPayload is the canonical record shape carried by todos, todoAdded and
// todoAddedConfirmation.
type TodoPayload struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
	UserID    string `json:"userId"`
}

// TodoCompletedPayload is carried by todoUpdated and todoUpdateConfirmation.
type TodoCompletedPayload struct {
	ID        int64 `json:"id"`
	Completed bool  `json:"completed"`
}

// ErrorPayload is a sender-directed failure reply.
type ErrorPayload struct {
	Message string `json:"message"`
}
