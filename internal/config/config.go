// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/johndosdos/chatrelay/internal/broker"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Port string `env:"PORT" envDefault:"8080"`

	BusEnabled        bool          `env:"BUS_ENABLED" envDefault:"true"`
	BusFallbackDirect bool          `env:"BUS_FALLBACK_DIRECT" envDefault:"false"`
	BusTopic          string        `env:"BUS_TOPIC" envDefault:"chat-messages"`
	BusConsumerGroup  string        `env:"BUS_CONSUMER_GROUP"`
	BusPublishTimeout time.Duration `env:"BUS_PUBLISH_TIMEOUT" envDefault:"5s"`

	NatsURLs       []string `env:"NATS_URL" envSeparator:","`
	NatsCred       string   `env:"NATS_CRED"`
	NatsUser       string   `env:"NATS_USER"`
	NatsPassword   string   `env:"NATS_PASSWORD"`
	NatsClientName string   `env:"NATS_CLIENT_NAME" envDefault:"chatrelay"`

	DefaultRoom string   `env:"DEFAULT_ROOM" envDefault:"general"`
	DBURL       string   `env:"DB_URL" envDefault:"sqlite://chatrelay.db"`
	FrontendURL []string `env:"FRONTEND_URL" envSeparator:","`

	MessageRate       int           `env:"MESSAGE_RATE" envDefault:"30"`
	MessageRateWindow time.Duration `env:"MESSAGE_RATE_WINDOW" envDefault:"1m"`
	ConnectRate       int           `env:"CONNECT_RATE" envDefault:"20"`
	ConnectRateWindow time.Duration `env:"CONNECT_RATE_WINDOW" envDefault:"1m"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads an optional .env file and parses the environment into a
// validated Config. A missing .env file is not an error.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}
	return Parse()
}

// Parse parses the environment without touching .env files.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.NatsURLs = trimAll(cfg.NatsURLs)
	cfg.FrontendURL = trimAll(cfg.FrontendURL)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.BusEnabled && len(c.NatsURLs) == 0 {
		return fmt.Errorf("%w: NATS_URL is required when BUS_ENABLED is true", ErrInvalid)
	}
	if strings.TrimSpace(c.BusTopic) == "" {
		return fmt.Errorf("%w: BUS_TOPIC is empty", ErrInvalid)
	}
	if strings.TrimSpace(c.DefaultRoom) == "" {
		return fmt.Errorf("%w: DEFAULT_ROOM is empty", ErrInvalid)
	}
	if c.BusPublishTimeout <= 0 {
		return fmt.Errorf("%w: BUS_PUBLISH_TIMEOUT must be positive", ErrInvalid)
	}
	if c.MessageRate < 0 || c.ConnectRate < 0 {
		return fmt.Errorf("%w: rates cannot be negative", ErrInvalid)
	}
	if (c.MessageRate > 0 && c.MessageRateWindow <= 0) ||
		(c.ConnectRate > 0 && c.ConnectRateWindow <= 0) {
		return fmt.Errorf("%w: rate windows must be positive", ErrInvalid)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel maps LOG_LEVEL onto a slog.Level.
func (c Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("%w: LOG_LEVEL %q", ErrInvalid, c.LogLevel)
	}
	return lvl, nil
}

// JetStream returns the broker settings for the NATS stream.
func (c Config) JetStream() broker.JetStreamConfig {
	return broker.JetStreamConfig{
		URLs:           c.NatsURLs,
		CredsFile:      c.NatsCred,
		User:           c.NatsUser,
		Password:       c.NatsPassword,
		ClientName:     c.NatsClientName,
		ConnectTimeout: 5 * time.Second,
		ConsumerGroup:  c.BusConsumerGroup,
	}
}

func trimAll(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
