// Package model holds the frames clients send over the websocket and the
// chat events that travel over the bus and back out to rooms.
package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidFrame is returned when a client frame cannot be turned into an
// operation.
var ErrInvalidFrame = errors.New("invalid client frame")

// Inbound frame types sent by clients over the transport.
const (
	FrameJoin    = "join"
	FrameMessage = "message"
)

// ClientFrame is the JSON envelope a client sends over the websocket.
// Closing the connection is the third inbound event and has no frame.
type ClientFrame struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Room     string `json:"room"`
	Content  string `json:"content"`
}

// Normalize trims surrounding whitespace from the identifying fields.
func (f ClientFrame) Normalize() ClientFrame {
	f.Type = strings.TrimSpace(f.Type)
	f.Username = strings.TrimSpace(f.Username)
	f.Room = strings.TrimSpace(f.Room)
	return f
}

// CheckJoin reports whether the frame carries what a join needs.
func (f ClientFrame) CheckJoin() error {
	if f.Username == "" || f.Room == "" {
		return fmt.Errorf("%w: join requires username and room", ErrInvalidFrame)
	}
	return nil
}
