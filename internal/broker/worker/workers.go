// Package worker bridges bus consumers to the local gateway.
package worker

import (
	"log/slog"

	"github.com/johndosdos/chatrelay/internal/broker"
	"github.com/johndosdos/chatrelay/internal/model"
)

// Sink receives events for local fan-out. *websocket.Hub implements it.
type Sink interface {
	Deliver(evt model.ChatEvent) int
}

// WorkerHub returns the DeliverFunc a bus subscription hands its events to.
func WorkerHub(sink Sink) broker.DeliverFunc {
	return func(evt model.ChatEvent) {
		n := sink.Deliver(evt)
		slog.Debug("payload received",
			"type", evt.Kind,
			"room", evt.Room,
			"recipients", n)
	}
}
