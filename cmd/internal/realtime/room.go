package realtime

import (
	"log/slog"
	"sync"

	v1 "todosync/shared/contracts/sync/v1"
)

// Room is the in-memory membership + broadcast fanout primitive for one owner.
// All connections authenticated as the same user share a room, so sibling
// tabs/devices converge on every mutation.
//
// Concurrency guarantees:
// - join/remove are safe under concurrent Broadcast.
// - Broadcast never blocks (drops under backpressure).
// - Broadcast is panic-safe because Client.Send is never closed by the server.
type Room struct {
	log     *slog.Logger
	OwnerID string

	mu      sync.RWMutex
	members map[string]*Client
}

// NewRoom constructs a room for ownerID.
func NewRoom(log *slog.Logger, ownerID string) *Room {
	return &Room{
		log:     log,
		OwnerID: ownerID,
		members: make(map[string]*Client),
	}
}

func (r *Room) join(client *Client) {
	if r == nil || client == nil || client.ConnID == "" {
		return
	}

	r.mu.Lock()
	r.members[client.ConnID] = client
	r.mu.Unlock()

	r.log.Info("room.member.join", "owner_id", r.OwnerID, "conn_id", client.ConnID)
}

// remove deletes a connection from membership. Safe to call for a connection
// that already left. Returns the remaining member count.
func (r *Room) remove(connID string) int {
	if r == nil || connID == "" {
		return 0
	}

	r.mu.Lock()
	_, present := r.members[connID]
	delete(r.members, connID)
	n := len(r.members)
	r.mu.Unlock()

	if present {
		r.log.Info("room.member.leave", "owner_id", r.OwnerID, "conn_id", connID)
	}
	return n
}

// Len returns the current member count.
func (r *Room) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Members returns a snapshot of the current members.
func (r *Room) Members() []*Client {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Client, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m)
	}
	return out
}

// Broadcast fanouts an envelope to all members, the sender included.
// Non-blocking: if a member queue is full or the client is shutting down, that
// delivery is dropped rather than blocking the room. Returns how many members
// the envelope was actually queued for.
func (r *Room) Broadcast(env v1.Envelope) int {
	if r == nil {
		return 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for _, m := range r.members {
		if m == nil {
			continue
		}

		select {
		case <-m.Done():
			// Skip clients that are shutting down.
			continue
		default:
		}

		select {
		case m.Send <- env:
			delivered++
		default:
			// Drop rather than block the whole room.
		}
	}
	return delivered
}
