package broker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/johndosdos/chatrelay/internal/model"
)

// memStream is an in-memory Stream. Each consumer gets its own ordered
// channel, like an ephemeral JetStream consumer.
type memStream struct {
	mu         sync.Mutex
	connectErr error
	publishErr func(data []byte) error
	connected  bool
	closed     bool
	subs       map[string][]chan []byte
}

func newMemStream() *memStream {
	return &memStream{subs: make(map[string][]chan []byte)}
}

func (s *memStream) Connect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connectErr != nil {
		return s.connectErr
	}
	s.connected = true
	return nil
}

func (s *memStream) Publish(_ context.Context, topic string, data []byte) error {
	s.mu.Lock()
	publishErr := s.publishErr
	s.mu.Unlock()
	if publishErr != nil {
		if err := publishErr(data); err != nil {
			return err
		}
	}
	s.inject(topic, data)
	return nil
}

func (s *memStream) inject(topic string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs[topic] {
		ch <- data
	}
}

func (s *memStream) Consume(ctx context.Context, topic string, handle func(data []byte) error) error {
	ch := make(chan []byte, 256)
	s.mu.Lock()
	s.subs[topic] = append(s.subs[topic], ch)
	s.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case data := <-ch:
				_ = handle(data)
			}
		}
	}()
	return nil
}

func (s *memStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// collector gathers delivered events.
type collector struct {
	ch chan model.ChatEvent
}

func newCollector() *collector {
	return &collector{ch: make(chan model.ChatEvent, 256)}
}

func (c *collector) deliver(evt model.ChatEvent) {
	c.ch <- evt
}

func (c *collector) take(t *testing.T, n int) []model.ChatEvent {
	t.Helper()
	var got []model.ChatEvent
	for len(got) < n {
		select {
		case evt := <-c.ch:
			got = append(got, evt)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d events", len(got), n)
		}
	}
	return got
}

func (c *collector) expectNone(t *testing.T) {
	t.Helper()
	select {
	case evt := <-c.ch:
		t.Fatalf("unexpected event: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}
