package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("BUS_ENABLED", "false")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "chat-messages", cfg.BusTopic)
	assert.Equal(t, "general", cfg.DefaultRoom)
	assert.Equal(t, "sqlite://chatrelay.db", cfg.DBURL)
	assert.Equal(t, 5*time.Second, cfg.BusPublishTimeout)
	assert.Equal(t, 30, cfg.MessageRate)
	assert.Equal(t, time.Minute, cfg.MessageRateWindow)
	assert.False(t, cfg.BusFallbackDirect)

	lvl, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, lvl)
}

func TestParseLists(t *testing.T) {
	t.Setenv("NATS_URL", "nats://a:4222, nats://b:4222,")
	t.Setenv("FRONTEND_URL", "http://localhost:3000 , https://chat.example.com")
	t.Setenv("BUS_CONSUMER_GROUP", "chat-group")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, []string{"nats://a:4222", "nats://b:4222"}, cfg.NatsURLs)
	assert.Equal(t, []string{"http://localhost:3000", "https://chat.example.com"}, cfg.FrontendURL)

	js := cfg.JetStream()
	assert.Equal(t, cfg.NatsURLs, js.URLs)
	assert.Equal(t, "chat-group", js.ConsumerGroup)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "bus without nats url", env: map[string]string{"BUS_ENABLED": "true", "NATS_URL": ""}},
		{name: "bad duration", env: map[string]string{"BUS_ENABLED": "false", "BUS_PUBLISH_TIMEOUT": "soon"}},
		{name: "zero publish timeout", env: map[string]string{"BUS_ENABLED": "false", "BUS_PUBLISH_TIMEOUT": "0s"}},
		{name: "negative rate", env: map[string]string{"BUS_ENABLED": "false", "MESSAGE_RATE": "-1"}},
		{name: "bad log level", env: map[string]string{"BUS_ENABLED": "false", "LOG_LEVEL": "loud"}},
		{name: "empty room", env: map[string]string{"BUS_ENABLED": "false", "DEFAULT_ROOM": " "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Parse()
			assert.Error(t, err)
		})
	}
}
