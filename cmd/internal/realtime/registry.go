package realtime

import (
	"log/slog"
	"sync"

	v1 "todosync/shared/contracts/sync/v1"
)

// Registry owns in-memory rooms keyed by owner id.
//
// It is an explicit instance with its own lifecycle (created at service start,
// dropped at shutdown) rather than process-global state. Rooms with zero
// members are pruned, so absence of a key means no open connections for that
// owner.
type Registry struct {
	log *slog.Logger

	mu    sync.Mutex
	rooms map[string]*Room
}

// NewRegistry constructs a Registry instance.
func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		log:   log,
		rooms: make(map[string]*Room),
	}
}

// Join adds client to the room named by ownerID, creating the room on first
// use, and returns the room handle. A connection joins exactly one room for
// its whole admitted lifetime: the key is always the connection's own
// authenticated user id.
func (r *Registry) Join(ownerID string, client *Client) *Room {
	r.mu.Lock()
	room, ok := r.rooms[ownerID]
	if !ok {
		room = NewRoom(r.log, ownerID)
		r.rooms[ownerID] = room
	}
	r.mu.Unlock()

	room.join(client)
	return room
}

// Leave removes client from its room and prunes the room when it empties.
// Idempotent: leaving a connection that already left (or never joined) is a no-op.
func (r *Registry) Leave(client *Client) {
	if client == nil || client.UserID == "" {
		return
	}

	r.mu.Lock()
	room := r.rooms[client.UserID]
	r.mu.Unlock()
	if room == nil {
		return
	}

	if room.remove(client.ConnID) == 0 {
		r.mu.Lock()
		// Re-check under the lock: a concurrent Join may have repopulated it.
		if cur := r.rooms[client.UserID]; cur == room && cur.Len() == 0 {
			delete(r.rooms, client.UserID)
		}
		r.mu.Unlock()
	}
}

// Members returns a snapshot of the open connections for ownerID.
func (r *Registry) Members(ownerID string) []*Client {
	r.mu.Lock()
	room := r.rooms[ownerID]
	r.mu.Unlock()
	return room.Members()
}

// Broadcast fanouts env to every current member of ownerID's room and returns
// the delivery count. Broadcasting to an absent room delivers to nobody.
func (r *Registry) Broadcast(ownerID string, env v1.Envelope) int {
	r.mu.Lock()
	room := r.rooms[ownerID]
	r.mu.Unlock()
	return room.Broadcast(env)
}

// RoomCount returns the number of live (non-empty) rooms.
func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}
