package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/johndosdos/chatrelay/internal/presence"
	"github.com/johndosdos/chatrelay/internal/store"
)

// ServeUsers lists the users currently online in a room.
func ServeUsers(tracker *presence.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room := chi.URLParam(r, "room")

		users := make([]store.User, 0)
		for _, name := range tracker.ListOnline(room) {
			e, ok := tracker.Lookup(name)
			if !ok || !e.Online || e.Room != room {
				continue
			}
			users = append(users, store.User{
				Username: e.Username,
				ConnID:   e.ConnID,
				Room:     e.Room,
				Online:   true,
				LastSeen: e.LastSeen,
			})
		}

		respondJSON(w, http.StatusOK, users)
	}
}
