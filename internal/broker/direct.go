package broker

import (
	"context"
	"sync"

	"github.com/johndosdos/chatrelay/internal/model"
)

// DirectBus bypasses the broker: Publish calls the subscriber of the topic
// before returning, so delivery order equals call order. It only reaches
// connections of this process.
type DirectBus struct {
	mu       sync.RWMutex
	handlers map[string]DeliverFunc
}

func NewDirectBus() *DirectBus {
	return &DirectBus{handlers: make(map[string]DeliverFunc)}
}

func (b *DirectBus) Connect(context.Context) error { return nil }

func (b *DirectBus) Publish(_ context.Context, topic string, evt model.ChatEvent) Outcome {
	if err := evt.Validate(); err != nil {
		return dropped(topic, err)
	}

	b.mu.RLock()
	deliver, ok := b.handlers[topic]
	b.mu.RUnlock()
	if !ok {
		return dropped(topic, ErrNoSubscriber)
	}

	deliver(evt)
	return Outcome{Status: Delivered, Topic: topic}
}

// Subscribe replaces any previous subscriber of topic.
func (b *DirectBus) Subscribe(_ context.Context, topic string, deliver DeliverFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = deliver
	return nil
}

func (b *DirectBus) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.handlers)
	return nil
}
