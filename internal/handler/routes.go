package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/johndosdos/chatrelay/internal"
	"github.com/johndosdos/chatrelay/internal/presence"
	ratelimiter "github.com/johndosdos/chatrelay/internal/rate_limiter"
	ws "github.com/johndosdos/chatrelay/internal/websocket"
)

type Deps struct {
	Hub      *ws.Hub
	Presence *presence.Tracker
	Messages MessageLister
	// Limiter guards websocket upgrades. Nil disables it.
	Limiter *ratelimiter.IPRateLimiter
	Origins []string
}

// Routes mounts the websocket endpoint and the JSON API.
func Routes(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(internal.CORS(d.Origins))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", ServeHealth(d.Hub, d.Presence))
		r.Get("/messages/{room}", ServeMessages(d.Messages))
		r.Get("/users/{room}", ServeUsers(d.Presence))
	})

	wsHandler := http.Handler(ServeWs(d.Hub, d.Origins))
	if d.Limiter != nil {
		wsHandler = d.Limiter.Middleware(wsHandler)
	}
	r.Method(http.MethodGet, "/ws", wsHandler)

	return r
}
