// Package broker carries chat events between server instances. A Bus is
// either queue-mediated (through a Stream such as NATS JetStream) or direct,
// delivering in-process without a broker.
package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/johndosdos/chatrelay/internal/model"
)

var (
	ErrNoSubscriber  = errors.New("no subscriber for topic")
	ErrNotConnected  = errors.New("bus is not connected")
	ErrMalformed     = errors.New("malformed bus payload")
	ErrAlreadyClosed = errors.New("bus already disconnected")
)

// DeliverFunc receives events coming off the bus.
type DeliverFunc func(evt model.ChatEvent)

// Status is what happened to a published event.
type Status int

const (
	// Published means the event was handed to the broker.
	Published Status = iota + 1
	// Delivered means the event was delivered in-process.
	Delivered
	// Dropped means the event is lost. Nothing retries it.
	Dropped
)

func (s Status) String() string {
	switch s {
	case Published:
		return "published"
	case Delivered:
		return "delivered"
	case Dropped:
		return "dropped"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome is the result of Bus.Publish. Publishing never returns an error;
// a failed publish is an Outcome with Status Dropped and the cause in Err.
type Outcome struct {
	Status Status
	Topic  string
	Err    error
}

// OK reports whether the event left the publisher.
func (o Outcome) OK() bool {
	return o.Status == Published || o.Status == Delivered
}

func dropped(topic string, err error) Outcome {
	return Outcome{Status: Dropped, Topic: topic, Err: err}
}

// Bus is the publish/subscribe surface the gateway talks to. The strategy is
// chosen once, at construction.
type Bus interface {
	// Connect opens producer and consumer sessions. It must return before
	// the process accepts transport connections.
	Connect(ctx context.Context) error
	Publish(ctx context.Context, topic string, evt model.ChatEvent) Outcome
	// Subscribe registers deliver for topic. Events reach deliver in the
	// order the bus hands them over.
	Subscribe(ctx context.Context, topic string, deliver DeliverFunc) error
	// Disconnect tears both sessions down. Call it last during shutdown.
	Disconnect() error
}

// Stream is the byte-level broker a QueueBus runs on.
type Stream interface {
	Connect(ctx context.Context) error
	Publish(ctx context.Context, topic string, data []byte) error
	// Consume calls handle for every message on topic until ctx is done or
	// the stream is closed. A non-nil error from handle rejects that one
	// message; consumption continues.
	Consume(ctx context.Context, topic string, handle func(data []byte) error) error
	Close() error
}

// New picks the strategy: queue-mediated over stream when enabled, direct
// otherwise.
func New(enabled bool, stream Stream, publishTimeout time.Duration) Bus {
	if !enabled || stream == nil {
		return NewDirectBus()
	}
	return NewQueueBus(stream, publishTimeout)
}
