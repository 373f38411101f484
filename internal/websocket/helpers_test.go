package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/johndosdos/chatrelay/internal/broker"
	"github.com/johndosdos/chatrelay/internal/model"
	"github.com/johndosdos/chatrelay/internal/presence"
)

const testTopic = "chat-messages"

func newTestClient(id string) *Client {
	return &Client{ID: id, send: make(chan []byte, sendBuffer)}
}

// startHub runs a hub over bus until the test ends. The bus is subscribed
// to the hub's router.
func startHub(t *testing.T, bus broker.Bus, st Store, cfg Config) (*Hub, context.CancelFunc) {
	t.Helper()

	cfg.Topic = testTopic
	h := NewHub(bus, NewRouter(), presence.NewTracker(), st, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, bus.Connect(ctx))
	require.NoError(t, bus.Subscribe(ctx, testTopic, func(evt model.ChatEvent) {
		h.Deliver(evt)
	}))

	go h.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.stopped
		_ = bus.Disconnect()
	})
	return h, cancel
}

func register(t *testing.T, h *Hub, ids ...string) []*Client {
	t.Helper()
	var out []*Client
	for _, id := range ids {
		c := newTestClient(id)
		require.NoError(t, h.Register(context.Background(), c))
		out = append(out, c)
	}
	return out
}

func join(h *Hub, c *Client, username, room string) {
	h.Join(c, model.ClientFrame{Type: model.FrameJoin, Username: username, Room: room})
}

func say(h *Hub, c *Client, content string) {
	h.Message(c, model.ClientFrame{Type: model.FrameMessage, Content: content})
}

// recv decodes the next frame queued for c.
func recv(t *testing.T, c *Client) model.ChatEvent {
	t.Helper()
	select {
	case p, ok := <-c.send:
		require.True(t, ok, "send channel of %s closed", c.ID)
		var evt model.ChatEvent
		require.NoError(t, json.Unmarshal(p, &evt))
		return evt
	case <-time.After(2 * time.Second):
		t.Fatalf("no frame for %s", c.ID)
		return model.ChatEvent{}
	}
}

func expectSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case p, ok := <-c.send:
		if ok {
			t.Fatalf("unexpected frame for %s: %s", c.ID, p)
		}
		t.Fatalf("send channel of %s closed", c.ID)
	case <-time.After(50 * time.Millisecond):
	}
}

// flush waits until every request queued so far has been handled.
func flush(t *testing.T, h *Hub) {
	t.Helper()
	c := newTestClient("flush-" + uuid.NewString())
	require.NoError(t, h.Register(context.Background(), c))
	h.Disconnect(c)
}

// recordingBus keeps every published event and delivers nothing.
type recordingBus struct {
	mu     sync.Mutex
	events []model.ChatEvent
}

func (b *recordingBus) Connect(context.Context) error { return nil }

func (b *recordingBus) Publish(_ context.Context, topic string, evt model.ChatEvent) broker.Outcome {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, evt)
	return broker.Outcome{Status: broker.Published, Topic: topic}
}

func (b *recordingBus) Subscribe(context.Context, string, broker.DeliverFunc) error { return nil }

func (b *recordingBus) Disconnect() error { return nil }

func (b *recordingBus) published() []model.ChatEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.ChatEvent(nil), b.events...)
}

// loopStream is a broker.Stream that hands published payloads straight to
// its consumers. Publishing fails while failing is set.
type loopStream struct {
	mu      sync.Mutex
	failing bool
	subs    []func([]byte) error
}

func (s *loopStream) Connect(context.Context) error { return nil }

func (s *loopStream) setFailing(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = v
}

func (s *loopStream) Publish(_ context.Context, _ string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errBrokerDown
	}
	for _, handle := range s.subs {
		_ = handle(data)
	}
	return nil
}

func (s *loopStream) Consume(_ context.Context, _ string, handle func([]byte) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, handle)
	return nil
}

func (s *loopStream) Close() error { return nil }

// heldStream queues published payloads and hands them to its consumer
// from another goroutine once released, like a broker with lag.
type heldStream struct {
	mu       sync.Mutex
	queued   [][]byte
	held     chan struct{}
	incoming chan []byte
}

func newHeldStream() *heldStream {
	return &heldStream{held: make(chan struct{}), incoming: make(chan []byte, 256)}
}

func (s *heldStream) Connect(context.Context) error { return nil }

func (s *heldStream) Publish(_ context.Context, _ string, data []byte) error {
	s.mu.Lock()
	s.queued = append(s.queued, data)
	s.mu.Unlock()
	s.incoming <- data
	return nil
}

func (s *heldStream) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queued)
}

func (s *heldStream) release() {
	close(s.held)
}

func (s *heldStream) Consume(ctx context.Context, _ string, handle func([]byte) error) error {
	go func() {
		select {
		case <-s.held:
		case <-ctx.Done():
			return
		}
		for {
			select {
			case data := <-s.incoming:
				_ = handle(data)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (s *heldStream) Close() error { return nil }
