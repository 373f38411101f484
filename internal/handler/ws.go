package handler

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/coder/websocket"

	ws "github.com/johndosdos/chatrelay/internal/websocket"
)

// ServeWs handles the client's websocket connection upgrade.
// origins are frontend URLs; only their hosts are matched.
func ServeWs(h *ws.Hub, origins []string) http.HandlerFunc {
	originPatterns := originHosts(origins)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns:     originPatterns,
			InsecureSkipVerify: len(originPatterns) == 0,
		})
		if err != nil {
			slog.WarnContext(ctx, "failed to accept websocket",
				"error", err,
				"remote_addr", r.RemoteAddr)
			return
		}

		c := ws.NewClient(conn)
		if err := h.Register(ctx, c); err != nil {
			slog.WarnContext(ctx, "failed to register client", "error", err)
			conn.Close(websocket.StatusTryAgainLater, "server is shutting down")
			return
		}
		slog.DebugContext(ctx, "upgraded connection", "conn_id", c.ID)

		// We block on ReadPump because the request context is canceled as
		// soon as we return from the handler.
		go c.WritePump(ctx)
		c.ReadPump(ctx, h)
	}
}

func originHosts(origins []string) []string {
	var hosts []string
	for _, o := range origins {
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			hosts = append(hosts, o)
			continue
		}
		hosts = append(hosts, u.Host)
	}
	return hosts
}
