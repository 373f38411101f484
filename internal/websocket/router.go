package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/johndosdos/chatrelay/internal/model"
)

// Router maps rooms to the clients bound to them and turns ChatEvents into
// wire frames. The hub loop binds and unbinds; bus consumers call Deliver
// from their own goroutine, hence the lock.
type Router struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
	bound map[*Client]string
}

func NewRouter() *Router {
	return &Router{
		rooms: make(map[string]map[*Client]struct{}),
		bound: make(map[*Client]string),
	}
}

// Bind puts c in room, removing it from any room it was in.
func (r *Router) Bind(c *Client, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.unbindLocked(c)
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		r.rooms[room] = members
	}
	members[c] = struct{}{}
	r.bound[c] = room
}

// Unbind removes c from its room. Unbinding an unbound client is a no-op.
func (r *Router) Unbind(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unbindLocked(c)
}

func (r *Router) unbindLocked(c *Client) {
	room, ok := r.bound[c]
	if !ok {
		return
	}
	delete(r.bound, c)
	if members, ok := r.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
}

// Deliver sends evt to every client bound to evt.Room and returns how many
// clients it was queued for. Clients with a full buffer are skipped.
func (r *Router) Deliver(evt model.ChatEvent) int {
	p, err := json.Marshal(evt)
	if err != nil {
		slog.Error("failed to encode chat event", "error", err)
		return 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for c := range r.rooms[evt.Room] {
		select {
		case c.send <- p:
			n++
		default:
			slog.Warn("skipping message payload - channel full or client slow",
				"conn_id", c.ID,
				"room", evt.Room)
		}
	}
	return n
}

// Members returns the number of clients bound to room.
func (r *Router) Members(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

// RoomCount returns the number of rooms with at least one client.
func (r *Router) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
