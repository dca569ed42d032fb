package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Transport names accepted by CHAT_TRANSPORT.
const (
	TransportWebSocket = "websocket"
	TransportHTTP      = "http"
)

// Relay store backends accepted by RELAY_STORE.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config aggregates every setting used by the widget and the relay.
type Config struct {
	Server   ServerConfig
	Client   ClientConfig
	Relay    RelayConfig
	LogLevel string
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	client, err := loadClientConfig()
	if err != nil {
		return nil, err
	}

	relay, err := loadRelayConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		Client:   client,
		Relay:    relay,
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
	}, nil
}

// ServerConfig describes the relay's HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" as-is.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// ClientConfig describes how the widget reaches the messaging endpoint.
type ClientConfig struct {
	Transport            string
	WebSocketURL         string
	HTTPBaseURL          string
	StateFile            string
	HandshakeTimeout     time.Duration
	PingInterval         time.Duration
	Reconnect            bool
	ReconnectMaxTries    uint
	ReconnectMaxInterval time.Duration
	AutoJoin             bool
}

func loadClientConfig() (ClientConfig, error) {
	transport := strings.ToLower(getEnvOrDefault("CHAT_TRANSPORT", TransportWebSocket))
	if transport != TransportWebSocket && transport != TransportHTTP {
		return ClientConfig{}, fmt.Errorf("invalid CHAT_TRANSPORT value %q: want %s or %s", transport, TransportWebSocket, TransportHTTP)
	}

	handshake, err := parseDurationEnv("CHAT_HANDSHAKE_TIMEOUT", 10*time.Second)
	if err != nil {
		return ClientConfig{}, err
	}

	ping, err := parseDurationEnv("CHAT_PING_INTERVAL", 54*time.Second)
	if err != nil {
		return ClientConfig{}, err
	}

	reconnect, err := parseBoolEnv("CHAT_RECONNECT", false)
	if err != nil {
		return ClientConfig{}, err
	}

	maxTries := uint(5)
	if override, err := parseOptionalIntEnv("CHAT_RECONNECT_MAX_TRIES"); err != nil {
		return ClientConfig{}, err
	} else if override != nil {
		if *override < 1 {
			maxTries = 1
		} else {
			maxTries = uint(*override)
		}
	}

	maxInterval, err := parseDurationEnv("CHAT_RECONNECT_MAX_INTERVAL", 30*time.Second)
	if err != nil {
		return ClientConfig{}, err
	}

	autoJoin, err := parseBoolEnv("CHAT_AUTO_JOIN", true)
	if err != nil {
		return ClientConfig{}, err
	}

	return ClientConfig{
		Transport:            transport,
		WebSocketURL:         getEnvOrDefault("CHAT_WS_URL", "ws://localhost:8080/api/chat/ws"),
		HTTPBaseURL:          getEnvOrDefault("CHAT_HTTP_BASE_URL", "http://localhost:8080"),
		StateFile:            getEnvOrDefault("CHAT_STATE_FILE", defaultStateFile()),
		HandshakeTimeout:     handshake,
		PingInterval:         ping,
		Reconnect:            reconnect,
		ReconnectMaxTries:    maxTries,
		ReconnectMaxInterval: maxInterval,
		AutoJoin:             autoJoin,
	}, nil
}

// RelayConfig selects where the relay keeps transcripts.
type RelayConfig struct {
	Store      string
	SQLitePath string
}

func loadRelayConfig() (RelayConfig, error) {
	store := strings.ToLower(getEnvOrDefault("RELAY_STORE", StoreMemory))
	if store != StoreMemory && store != StoreSQLite {
		return RelayConfig{}, fmt.Errorf("invalid RELAY_STORE value %q: want %s or %s", store, StoreMemory, StoreSQLite)
	}

	return RelayConfig{
		Store:      store,
		SQLitePath: getEnvOrDefault("RELAY_SQLITE_PATH", "relay.db"),
	}, nil
}

func defaultStateFile() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return ".site-chat.yaml"
	}
	return filepath.Join(dir, "site-chat", "identity.yaml")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, raw)
	}
	return val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
