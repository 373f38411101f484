// Package presence tracks which user is online in which room.
package presence

import (
	"sort"
	"sync"
	"time"
)

// Entry is the presence state of one username.
type Entry struct {
	Username string
	Room     string
	Online   bool
	LastSeen time.Time
	// ConnID is the connection that last marked the user online. It is kept
	// after the user goes offline.
	ConnID string
}

// Tracker keeps one Entry per username. A user is in exactly one room at a
// time and the latest join wins.
type Tracker struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	now     func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now for last-seen stamps.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// MarkOnline records username as online in room through connID, replacing
// whatever connection and room the entry held before.
func (t *Tracker) MarkOnline(username, connID, room string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[username]
	if !ok {
		e = &Entry{Username: username}
		t.entries[username] = e
	}
	e.ConnID = connID
	e.Room = room
	e.Online = true
	e.LastSeen = t.now().UTC()
}

// MarkOffline flips username offline if connID is still its current
// connection. It returns false for unknown users, users already offline and
// disconnects from a connection a newer join has superseded.
func (t *Tracker) MarkOffline(username, connID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[username]
	if !ok || !e.Online || e.ConnID != connID {
		return false
	}
	e.Online = false
	e.LastSeen = t.now().UTC()
	return true
}

// ListOnline returns the sorted usernames currently online in room.
func (t *Tracker) ListOnline(room string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	users := []string{}
	for _, e := range t.entries {
		if e.Online && e.Room == room {
			users = append(users, e.Username)
		}
	}
	sort.Strings(users)
	return users
}

// Lookup returns a copy of the entry for username.
func (t *Tracker) Lookup(username string) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.entries[username]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// OnlineCount returns how many users are online across all rooms.
func (t *Tracker) OnlineCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, e := range t.entries {
		if e.Online {
			n++
		}
	}
	return n
}
