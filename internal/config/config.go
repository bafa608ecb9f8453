package config

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Config is the root configuration for the roomclaw gateway.
type Config struct {
	Gateway   GatewayConfig   `json:"gateway"`
	Database  DatabaseConfig  `json:"database"`
	Agents    AgentsConfig    `json:"agents"`
	Providers ProvidersConfig `json:"providers"`
	Actors    ActorsConfig    `json:"actors"`
	Chat      ChatConfig      `json:"chat"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	Log       LogConfig       `json:"log"`
	mu        sync.RWMutex
}

// GatewayConfig controls the HTTP/WebSocket listener.
type GatewayConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	Token          string   `json:"token,omitempty"` // bearer token for /ws and the RPC API; empty disables auth
	AllowedOrigins []string `json:"allowed_origins,omitempty"`

	// Per-connection inbound frame rate. 0 disables limiting.
	RateLimitPerSecond float64 `json:"rate_limit_per_second"`
	RateLimitBurst     int     `json:"rate_limit_burst"`
	MaxFrameBytes      int64   `json:"max_frame_bytes"`
}

// DatabaseConfig locates actor databases and the optional shared directory.
// PostgresDSN is NEVER read from config.json (secret), only from env ROOMCLAW_POSTGRES_DSN.
type DatabaseConfig struct {
	DataDir     string `json:"data_dir"`
	PostgresDSN string `json:"-"`
}

// UsesPostgresDirectory reports whether the room directory lives in Postgres
// rather than a JSON file under DataDir.
func (c *Config) UsesPostgresDirectory() bool {
	return c.Database.PostgresDSN != ""
}

// AgentsConfig tunes the agent notification pipeline and turns.
type AgentsConfig struct {
	DebounceMs        int     `json:"debounce_ms"`
	ContextMessages   int     `json:"context_messages"`
	MaxToolIterations int     `json:"max_tool_iterations"`
	Provider          string  `json:"provider"`
	Model             string  `json:"model"`
	RoutingModel      string  `json:"routing_model,omitempty"` // defaults to Model
	MaxTokens         int     `json:"max_tokens"`
	Temperature       float64 `json:"temperature"`
}

type ProvidersConfig struct {
	OpenAI ProviderConfig `json:"openai"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key,omitempty"`
	APIBase string `json:"api_base,omitempty"`
}

type ActorsConfig struct {
	IdleTimeoutSec int `json:"idle_timeout_sec"`
}

type ChatConfig struct {
	InitMessageLimit int `json:"init_message_limit"`
}

// TelemetryConfig configures OpenTelemetry OTLP export.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"` // OTLP endpoint (e.g. "localhost:4317")
	Protocol    string            `json:"protocol,omitempty"` // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`
	ServiceName string            `json:"service_name,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

type LogConfig struct {
	Level string `json:"level"` // debug, info, warn, error
}

// DebounceWindow is the agent batching delay. Safe for concurrent use.
func (c *Config) DebounceWindow() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.Agents.DebounceMs) * time.Millisecond
}

// LogLevel parses log.level, defaulting to info.
func (c *Config) LogLevel() slog.Level {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ParseLevel(c.Log.Level)
}

func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Actors.IdleTimeoutSec) * time.Second
}

// RoutingModel returns the model used by the LLM router.
func (c *Config) RoutingModel() string {
	if c.Agents.RoutingModel != "" {
		return c.Agents.RoutingModel
	}
	return c.Agents.Model
}

// ApplyReloadable copies the settings that take effect without a restart
// (log level and debounce window) from src, preserving c's mutex.
func (c *Config) ApplyReloadable(src *Config) {
	src.mu.RLock()
	level, debounce := src.Log.Level, src.Agents.DebounceMs
	src.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.Log.Level = level
	c.Agents.DebounceMs = debounce
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
