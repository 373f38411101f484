package model

import (
	"errors"
	"fmt"
	"time"
)

// SystemUsername is the sender of synthesized join and leave announcements.
const SystemUsername = "System"

// Kind is the type of a ChatEvent.
type Kind string

const (
	KindJoin    Kind = "join"
	KindMessage Kind = "message"
	KindLeave   Kind = "leave"
)

// ErrInvalidEvent is returned by Validate for events that must not be
// published or delivered.
var ErrInvalidEvent = errors.New("invalid chat event")

// ChatEvent is the unit carried on the bus and delivered to rooms. The
// same JSON form is used for bus payloads and websocket frames.
type ChatEvent struct {
	Kind      Kind      `json:"type"`
	Room      string    `json:"room"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// Subject is the user a join or leave announcement is about.
	Subject string `json:"subject,omitempty"`
}

// NewJoinEvent builds the announcement for username entering room.
func NewJoinEvent(username, room string, at time.Time) ChatEvent {
	return ChatEvent{
		Kind:      KindJoin,
		Room:      room,
		Username:  SystemUsername,
		Content:   JoinContent(username),
		Timestamp: at.UTC(),
		Subject:   username,
	}
}

// NewLeaveEvent builds the announcement for username leaving room.
func NewLeaveEvent(username, room string, at time.Time) ChatEvent {
	return ChatEvent{
		Kind:      KindLeave,
		Room:      room,
		Username:  SystemUsername,
		Content:   LeaveContent(username),
		Timestamp: at.UTC(),
		Subject:   username,
	}
}

// NewMessageEvent builds a chat message stamped with the server time.
func NewMessageEvent(content, username, room string, at time.Time) ChatEvent {
	return ChatEvent{
		Kind:      KindMessage,
		Room:      room,
		Username:  username,
		Content:   content,
		Timestamp: at.UTC(),
	}
}

func JoinContent(username string) string {
	return fmt.Sprintf("%s joined the chat", username)
}

func LeaveContent(username string) string {
	return fmt.Sprintf("%s left the chat", username)
}

// Validate checks the fields every consumer relies on.
func (e ChatEvent) Validate() error {
	switch e.Kind {
	case KindJoin, KindMessage, KindLeave:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, e.Kind)
	}
	if e.Room == "" {
		return fmt.Errorf("%w: empty room", ErrInvalidEvent)
	}
	if e.Username == "" {
		return fmt.Errorf("%w: empty username", ErrInvalidEvent)
	}
	return nil
}
