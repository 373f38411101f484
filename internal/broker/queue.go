package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/johndosdos/chatrelay/internal/model"
)

const defaultPublishTimeout = 5 * time.Second

// QueueBus publishes JSON encoded events to a Stream and feeds consumed
// events back to subscribers. Delivery is at-most-once: there is no retry
// and no dead-lettering.
type QueueBus struct {
	stream         Stream
	publishTimeout time.Duration

	mu        sync.Mutex
	connected bool
	cancels   []context.CancelFunc
}

func NewQueueBus(stream Stream, publishTimeout time.Duration) *QueueBus {
	if publishTimeout <= 0 {
		publishTimeout = defaultPublishTimeout
	}
	return &QueueBus{stream: stream, publishTimeout: publishTimeout}
}

func (b *QueueBus) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.connected {
		return nil
	}
	if err := b.stream.Connect(ctx); err != nil {
		return fmt.Errorf("connect stream: %w", err)
	}
	b.connected = true
	return nil
}

func (b *QueueBus) isConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *QueueBus) Publish(ctx context.Context, topic string, evt model.ChatEvent) Outcome {
	if !b.isConnected() {
		return dropped(topic, ErrNotConnected)
	}
	if err := evt.Validate(); err != nil {
		return dropped(topic, err)
	}

	p, err := json.Marshal(evt)
	if err != nil {
		return dropped(topic, fmt.Errorf("could not encode event to JSON: %w", err))
	}

	pubCtx, cancel := context.WithTimeout(ctx, b.publishTimeout)
	defer cancel()

	if err := b.stream.Publish(pubCtx, topic, p); err != nil {
		return dropped(topic, fmt.Errorf("failed to publish to topic [%s]: %w", topic, err))
	}
	return Outcome{Status: Published, Topic: topic}
}

func (b *QueueBus) Subscribe(ctx context.Context, topic string, deliver DeliverFunc) error {
	if !b.isConnected() {
		return ErrNotConnected
	}

	subCtx, cancel := context.WithCancel(ctx)
	handle := func(data []byte) error {
		var evt model.ChatEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			slog.Warn("could not decode bus payload",
				"topic", topic,
				"error", err)
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if err := evt.Validate(); err != nil {
			slog.Warn("rejected bus event",
				"topic", topic,
				"error", err)
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		deliver(evt)
		return nil
	}

	if err := b.stream.Consume(subCtx, topic, handle); err != nil {
		cancel()
		return fmt.Errorf("failed to start consuming [%s]: %w", topic, err)
	}

	b.mu.Lock()
	b.cancels = append(b.cancels, cancel)
	b.mu.Unlock()
	return nil
}

func (b *QueueBus) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return ErrAlreadyClosed
	}

	for _, cancel := range b.cancels {
		cancel()
	}
	b.cancels = nil
	b.connected = false

	if err := b.stream.Close(); err != nil {
		return fmt.Errorf("close stream: %w", err)
	}
	return nil
}
