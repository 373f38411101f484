package websocket

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/coder/websocket"

	"github.com/johndosdos/chatrelay/internal/model"
)

// ReadPump reads client frames and hands them to the hub in arrival order.
// When the connection ends it runs the disconnect path and waits for it,
// so the leave event is submitted before the socket is released.
func (c *Client) ReadPump(ctx context.Context, h *Hub) {
	defer func() {
		h.Disconnect(c)
		c.conn.CloseNow()
	}()

	c.conn.SetReadLimit(maxMsgSize)

	for {
		msgType, p, err := c.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure &&
				status != websocket.StatusGoingAway &&
				status != -1 {
				slog.WarnContext(ctx, "websocket read failed",
					"error", err,
					"conn_id", c.ID)
			}
			return
		}

		// Only text frames carry chat frames.
		if msgType != websocket.MessageText {
			continue
		}

		var frame model.ClientFrame
		if err := json.Unmarshal(p, &frame); err != nil {
			slog.WarnContext(ctx, "failed to process payload from client",
				"error", err,
				"conn_id", c.ID)
			continue
		}

		switch frame.Normalize().Type {
		case model.FrameJoin:
			h.Join(c, frame)
		case model.FrameMessage:
			h.Message(c, frame)
		default:
			slog.DebugContext(ctx, "ignoring unknown frame type",
				"type", frame.Type,
				"conn_id", c.ID)
		}
	}
}
