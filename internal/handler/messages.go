package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/johndosdos/chatrelay/internal/store"
)

// HistoryLimit is how many messages ServeMessages returns.
const HistoryLimit = 50

type MessageLister interface {
	RecentMessages(ctx context.Context, room string, limit int) ([]store.Message, error)
}

// ServeMessages returns the recent history of a room, oldest first.
func ServeMessages(st MessageLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room := chi.URLParam(r, "room")

		msgs, err := st.RecentMessages(r.Context(), room, HistoryLimit)
		if err != nil {
			slog.ErrorContext(r.Context(), "failed to load messages from database",
				"error", err,
				"room", room)
			respondError(w, http.StatusInternalServerError, "Failed to fetch messages")
			return
		}

		respondJSON(w, http.StatusOK, msgs)
	}
}
