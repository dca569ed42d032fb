package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "CHAT_TRANSPORT", "CHAT_WS_URL", "CHAT_HTTP_BASE_URL",
		"CHAT_HANDSHAKE_TIMEOUT", "CHAT_PING_INTERVAL", "CHAT_RECONNECT",
		"CHAT_RECONNECT_MAX_TRIES", "CHAT_RECONNECT_MAX_INTERVAL",
		"CHAT_AUTO_JOIN", "RELAY_STORE", "RELAY_SQLITE_PATH", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Server.Addr)
	require.Equal(t, TransportWebSocket, cfg.Client.Transport)
	require.Equal(t, 10*time.Second, cfg.Client.HandshakeTimeout)
	require.Equal(t, 54*time.Second, cfg.Client.PingInterval)
	require.False(t, cfg.Client.Reconnect)
	require.EqualValues(t, 5, cfg.Client.ReconnectMaxTries)
	require.True(t, cfg.Client.AutoJoin)
	require.NotEmpty(t, cfg.Client.StateFile)
	require.Equal(t, StoreMemory, cfg.Relay.Store)
	require.Equal(t, "info", cfg.LogLevel)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("CHAT_TRANSPORT", "HTTP")
	t.Setenv("CHAT_HANDSHAKE_TIMEOUT", "3s")
	t.Setenv("CHAT_RECONNECT", "true")
	t.Setenv("CHAT_RECONNECT_MAX_TRIES", "0")
	t.Setenv("CHAT_STATE_FILE", "/tmp/id.yaml")
	t.Setenv("RELAY_STORE", "sqlite")
	t.Setenv("RELAY_SQLITE_PATH", "/tmp/relay.db")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	require.Equal(t, TransportHTTP, cfg.Client.Transport)
	require.Equal(t, 3*time.Second, cfg.Client.HandshakeTimeout)
	require.True(t, cfg.Client.Reconnect)
	require.EqualValues(t, 1, cfg.Client.ReconnectMaxTries)
	require.Equal(t, "/tmp/id.yaml", cfg.Client.StateFile)
	require.Equal(t, StoreSQLite, cfg.Relay.Store)
	require.Equal(t, "/tmp/relay.db", cfg.Relay.SQLitePath)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"PORT":                   "80 80",
		"CHAT_TRANSPORT":         "carrier-pigeon",
		"CHAT_HANDSHAKE_TIMEOUT": "soon",
		"CHAT_PING_INTERVAL":     "-1s",
		"CHAT_RECONNECT":         "maybe",
		"RELAY_STORE":            "redis",
	}

	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			require.Error(t, err)
		})
	}
}
