// Package websocket is the connection gateway: it accepts websocket
// clients, turns their frames into chat events on the bus and routes bus
// events back to the clients of each room.
package websocket

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/johndosdos/chatrelay/internal/broker"
	"github.com/johndosdos/chatrelay/internal/model"
	"github.com/johndosdos/chatrelay/internal/presence"
	"github.com/johndosdos/chatrelay/internal/store"
)

// ErrHubStopped is returned by Register once the hub loop has exited.
var ErrHubStopped = errors.New("hub is not running")

type sanitizer interface {
	Sanitize(s string) string
}

// Store is the part of the durable store the gateway writes to.
type Store interface {
	SaveMessage(ctx context.Context, m store.Message) (store.Message, error)
	UpsertUser(ctx context.Context, u store.User) error
	MarkUserOffline(ctx context.Context, username, connID string, at time.Time) error
}

// Config tunes the hub.
type Config struct {
	Topic       string
	DefaultRoom string
	// MessageRate messages per MessageWindow are allowed per connection.
	// Zero disables limiting.
	MessageRate   int
	MessageWindow time.Duration
	Clock         func() time.Time
}

type op int

const (
	opRegister op = iota
	opJoin
	opMessage
	opDisconnect
)

// request is one unit of work for the hub loop. Every request of a client
// travels through the same channel, so a client's join is handled before
// its later messages and its disconnect.
type request struct {
	op     op
	client *Client
	frame  model.ClientFrame
	done   chan struct{}
}

// Hub owns the per-connection lifecycle. All presence and router mutation
// happens on the goroutine running Run.
type Hub struct {
	bus       broker.Bus
	router    *Router
	presence  *presence.Tracker
	store     Store
	sanitizer sanitizer
	cfg       Config

	requests chan request
	stopped  chan struct{}
	clients  map[string]*Client
	conns    atomic.Int64
}

// NewHub returns a new instance of Hub. st may be nil when nothing is
// persisted.
func NewHub(bus broker.Bus, router *Router, tracker *presence.Tracker, st Store, cfg Config) *Hub {
	if cfg.Topic == "" {
		cfg.Topic = broker.DefaultTopic
	}
	if cfg.DefaultRoom == "" {
		cfg.DefaultRoom = "general"
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Hub{
		bus:       bus,
		router:    router,
		presence:  tracker,
		store:     st,
		sanitizer: bluemonday.StrictPolicy(),
		cfg:       cfg,
		requests:  make(chan request, 1024),
		stopped:   make(chan struct{}),
		clients:   make(map[string]*Client),
	}
}

// Deliver hands a bus event to the router. It is the DeliverFunc the bus
// subscription is registered with.
func (h *Hub) Deliver(evt model.ChatEvent) int {
	return h.router.Deliver(evt)
}

// Done is closed once Run has returned and every client was disconnected.
func (h *Hub) Done() <-chan struct{} {
	return h.stopped
}

// Connections returns the number of registered clients.
func (h *Hub) Connections() int {
	return int(h.conns.Load())
}

// Rooms returns the number of rooms with at least one bound client.
func (h *Hub) Rooms() int {
	return h.router.RoomCount()
}

// Run manages incoming client traffic until ctx is done. On the way out it
// disconnects every remaining client, publishing their leave events.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)

	for {
		select {
		case req := <-h.requests:
			h.handle(ctx, req)

		case <-ctx.Done():
			slog.Info("hub stopping", "reason", ctx.Err(), "clients", len(h.clients))
			h.drain(context.WithoutCancel(ctx))
			return
		}
	}
}

func (h *Hub) handle(ctx context.Context, req request) {
	switch req.op {
	case opRegister:
		h.register(req.client)
	case opJoin:
		h.onJoin(ctx, req.client, req.frame)
	case opMessage:
		h.onMessage(ctx, req.client, req.frame)
	case opDisconnect:
		h.onDisconnect(ctx, req.client)
	}
	if req.done != nil {
		close(req.done)
	}
}

// drain finishes queued requests and disconnects whoever is left.
func (h *Hub) drain(ctx context.Context) {
	for {
		select {
		case req := <-h.requests:
			h.handle(ctx, req)
		default:
			for _, c := range h.clients {
				h.onDisconnect(ctx, c)
			}
			return
		}
	}
}

// submit queues req, returning false if the hub has stopped.
func (h *Hub) submit(req request) bool {
	select {
	case <-h.stopped:
		return false
	default:
	}
	select {
	case h.requests <- req:
		return true
	case <-h.stopped:
		return false
	}
}

// wait blocks until req was handled or the hub stopped.
func (h *Hub) wait(req request) {
	select {
	case <-req.done:
	case <-h.stopped:
	}
}

// Register adds c to the hub and waits until the loop has accepted it.
func (h *Hub) Register(ctx context.Context, c *Client) error {
	req := request{op: opRegister, client: c, done: make(chan struct{})}
	if !h.submit(req) {
		return ErrHubStopped
	}
	select {
	case <-req.done:
		return nil
	case <-h.stopped:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Join queues a join frame. It does not wait for the outcome.
func (h *Hub) Join(c *Client, frame model.ClientFrame) {
	h.submit(request{op: opJoin, client: c, frame: frame})
}

// Message queues a chat message frame. It does not wait for the outcome.
func (h *Hub) Message(c *Client, frame model.ClientFrame) {
	h.submit(request{op: opMessage, client: c, frame: frame})
}

// Disconnect runs the disconnect path for c and waits for it, so the leave
// event has been submitted when it returns.
func (h *Hub) Disconnect(c *Client) {
	req := request{op: opDisconnect, client: c, done: make(chan struct{})}
	if h.submit(req) {
		h.wait(req)
	}
}

func (h *Hub) register(c *Client) {
	if h.cfg.MessageRate > 0 && h.cfg.MessageWindow > 0 && c.messageLim == nil {
		c.SetMessageLimiter(h.cfg.MessageRate, h.cfg.MessageWindow)
	}
	h.clients[c.ID] = c
	h.conns.Store(int64(len(h.clients)))
	slog.Debug("client registered", "conn_id", c.ID)
}

func (h *Hub) onJoin(ctx context.Context, c *Client, frame model.ClientFrame) {
	if c.closed {
		return
	}
	frame = frame.Normalize()
	if err := frame.CheckJoin(); err != nil {
		slog.WarnContext(ctx, "rejected join",
			"error", err,
			"conn_id", c.ID)
		return
	}

	moving := c.username != frame.Username || c.room != frame.Room

	// Moving to another room or identity: the old room hears a leave, but
	// only while this connection still owns the old identity.
	if moving && c.username != "" && c.room != "" {
		h.router.Unbind(c)
		if c.username != frame.Username {
			if h.presence.MarkOffline(c.username, c.ID) {
				h.persistOffline(ctx, c.username, c.ID)
				h.publish(ctx, model.NewLeaveEvent(c.username, c.room, h.cfg.Clock()))
			}
		} else if h.ownsPresence(c) {
			h.publish(ctx, model.NewLeaveEvent(c.username, c.room, h.cfg.Clock()))
		}
	}

	c.username, c.room = frame.Username, frame.Room
	h.router.Bind(c, c.room)
	h.presence.MarkOnline(c.username, c.ID, c.room)

	if h.store != nil {
		err := h.store.UpsertUser(ctx, store.User{
			Username: c.username,
			ConnID:   c.ID,
			Room:     c.room,
			Online:   true,
			LastSeen: h.cfg.Clock().UTC(),
		})
		if err != nil {
			slog.WarnContext(ctx, "failed to store user", "error", err, "username", c.username)
		}
	}

	h.publish(ctx, model.NewJoinEvent(c.username, c.room, h.cfg.Clock()))
}

// ownsPresence reports whether c is the live connection of its username.
func (h *Hub) ownsPresence(c *Client) bool {
	e, ok := h.presence.Lookup(c.username)
	return ok && e.Online && e.ConnID == c.ID
}

func (h *Hub) onMessage(ctx context.Context, c *Client, frame model.ClientFrame) {
	if c.closed {
		return
	}
	frame = frame.Normalize()

	content := strings.TrimSpace(h.sanitizer.Sanitize(frame.Content))
	if content == "" {
		slog.DebugContext(ctx, "ignoring empty message", "conn_id", c.ID)
		return
	}

	username := firstNonEmpty(frame.Username, c.username)
	room := firstNonEmpty(frame.Room, c.room, h.cfg.DefaultRoom)
	if username == "" {
		slog.WarnContext(ctx, "rejected message without username", "conn_id", c.ID)
		return
	}

	if !c.allowMessage() {
		slog.WarnContext(ctx, "message rate limit exceeded",
			"conn_id", c.ID,
			"username", username)
		return
	}

	evt := model.NewMessageEvent(content, username, room, h.cfg.Clock())

	if h.store != nil {
		saved, err := h.store.SaveMessage(ctx, store.Message{
			Room:      evt.Room,
			Username:  evt.Username,
			Content:   evt.Content,
			Timestamp: evt.Timestamp,
		})
		if err != nil {
			slog.ErrorContext(ctx, "failed to store message",
				"error", err,
				"username", username,
				"room", room)
			return
		}
		evt.Timestamp = saved.Timestamp
	}

	h.publish(ctx, evt)
}

func (h *Hub) onDisconnect(ctx context.Context, c *Client) {
	if c.closed {
		return
	}
	c.closed = true

	h.router.Unbind(c)
	delete(h.clients, c.ID)
	h.conns.Store(int64(len(h.clients)))

	if c.username != "" && c.room != "" && h.presence.MarkOffline(c.username, c.ID) {
		h.persistOffline(ctx, c.username, c.ID)
		h.publish(ctx, model.NewLeaveEvent(c.username, c.room, h.cfg.Clock()))
	}

	close(c.send)
	slog.Debug("client unregistered", "conn_id", c.ID, "username", c.username)
}

func (h *Hub) persistOffline(ctx context.Context, username, connID string) {
	if h.store == nil {
		return
	}
	if err := h.store.MarkUserOffline(ctx, username, connID, h.cfg.Clock()); err != nil {
		slog.WarnContext(ctx, "failed to store user offline", "error", err, "username", username)
	}
}

// publish submits evt and logs the outcome. Failures never reach the
// client that caused the event.
func (h *Hub) publish(ctx context.Context, evt model.ChatEvent) broker.Outcome {
	out := h.bus.Publish(ctx, h.cfg.Topic, evt)
	if !out.OK() {
		slog.WarnContext(ctx, "chat event dropped",
			"type", evt.Kind,
			"room", evt.Room,
			"username", evt.Username,
			"error", out.Err)
		return out
	}
	slog.DebugContext(ctx, "chat event submitted",
		"type", evt.Kind,
		"room", evt.Room,
		"status", out.Status.String())
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
