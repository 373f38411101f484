package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/johndosdos/chatrelay/internal/presence"
	ws "github.com/johndosdos/chatrelay/internal/websocket"
)

type healthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Connections int       `json:"connections"`
	Rooms       int       `json:"rooms"`
	OnlineUsers int       `json:"onlineUsers"`
}

func ServeHealth(h *ws.Hub, tracker *presence.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, healthResponse{
			Status:      "OK",
			Timestamp:   time.Now().UTC(),
			Connections: h.Connections(),
			Rooms:       h.Rooms(),
			OnlineUsers: tracker.OnlineCount(),
		})
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
