package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// JetStreamConfig describes how to reach NATS.
type JetStreamConfig struct {
	URLs           []string
	CredsFile      string
	User           string
	Password       string
	ClientName     string
	ConnectTimeout time.Duration
	// ConsumerGroup names a durable consumer shared by every instance that
	// uses the same group. Empty gives each instance its own ephemeral
	// consumer, so every instance sees every event.
	ConsumerGroup string
}

// JetStream is the Stream backed by NATS JetStream.
type JetStream struct {
	cfg JetStreamConfig

	mu        sync.Mutex
	conn      *nats.Conn
	js        jetstream.JetStream
	stream    jetstream.Stream
	consumers []jetstream.ConsumeContext
}

func NewJetStream(cfg JetStreamConfig) *JetStream {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	return &JetStream{cfg: cfg}
}

func (s *JetStream) options() []nats.Option {
	opts := []nats.Option{nats.Timeout(s.cfg.ConnectTimeout)}

	if s.cfg.ClientName != "" {
		opts = append(opts, nats.Name(s.cfg.ClientName))
	}
	if s.cfg.CredsFile != "" {
		opts = append(opts, nats.UserCredentials(s.cfg.CredsFile))
	} else if s.cfg.User != "" && s.cfg.Password != "" {
		opts = append(opts, nats.UserInfo(s.cfg.User, s.cfg.Password))
	}

	opts = append(opts,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	return opts
}

// Connect dials NATS and makes sure the chat stream exists.
func (s *JetStream) Connect(ctx context.Context) error {
	if len(s.cfg.URLs) == 0 {
		return errors.New("no NATS url configured")
	}

	conn, err := nats.Connect(strings.Join(s.cfg.URLs, ","), s.options()...)
	if err != nil {
		return fmt.Errorf("failed to connect to nats: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create jetstream instance: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     StreamName,
		Subjects: []string{StreamName + ".>"},
		MaxBytes: 1 << 30, // 1GB max storage
	})
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create/update stream: %w", err)
	}

	s.mu.Lock()
	s.conn, s.js, s.stream = conn, js, stream
	s.mu.Unlock()
	return nil
}

func (s *JetStream) Publish(ctx context.Context, topic string, data []byte) error {
	s.mu.Lock()
	js := s.js
	s.mu.Unlock()
	if js == nil {
		return ErrNotConnected
	}

	_, err := js.Publish(ctx, Subject(topic), data, jetstream.WithMsgID(uuid.NewString()))
	return err
}

func (s *JetStream) Consume(ctx context.Context, topic string, handle func(data []byte) error) error {
	s.mu.Lock()
	stream := s.stream
	s.mu.Unlock()
	if stream == nil {
		return ErrNotConnected
	}

	cfg := jetstream.ConsumerConfig{
		FilterSubject: Subject(topic),
		DeliverPolicy: jetstream.DeliverNewPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
	}
	if group := durableName(s.cfg.ConsumerGroup); group != "" {
		cfg.Name = group
		cfg.Durable = group
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create or update consumer: %w", err)
	}

	consumeHandler := func(msg jetstream.Msg) {
		if err := handle(msg.Data()); err != nil {
			if err := msg.Term(); err != nil {
				slog.Warn("could not terminate message", "error", err)
			}
			return
		}
		if err := msg.Ack(); err != nil {
			slog.Warn("could not ack message", "error", err)
		}
	}

	optErrHandler := jetstream.ConsumeErrHandler(func(_ jetstream.ConsumeContext, err error) {
		slog.Warn("consumer error", "topic", topic, "error", err)
	})

	consumeCtx, err := consumer.Consume(consumeHandler, optErrHandler)
	if err != nil {
		return fmt.Errorf("failed to start consuming messages: %w", err)
	}

	s.mu.Lock()
	s.consumers = append(s.consumers, consumeCtx)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		consumeCtx.Drain()
	}()

	return nil
}

// Close stops the consumers and drains the connection so in-flight acks
// reach the server.
func (s *JetStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.consumers {
		c.Stop()
	}
	s.consumers = nil

	if s.conn == nil {
		return nil
	}
	err := s.conn.Drain()
	s.conn, s.js, s.stream = nil, nil, nil
	if err != nil {
		return fmt.Errorf("couldn't drain NATS conn: %w", err)
	}
	return nil
}
