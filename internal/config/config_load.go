package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

const secretMask = "***"

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:               "0.0.0.0",
			Port:               18800,
			RateLimitPerSecond: 20,
			RateLimitBurst:     40,
			MaxFrameBytes:      512 * 1024,
		},
		Database: DatabaseConfig{
			DataDir: "~/.roomclaw/data",
		},
		Agents: AgentsConfig{
			DebounceMs:        3000,
			ContextMessages:   10,
			MaxToolIterations: 10,
			Provider:          "openai",
			Model:             "gpt-4o-mini",
			MaxTokens:         4096,
			Temperature:       0.7,
		},
		Actors: ActorsConfig{IdleTimeoutSec: 600},
		Chat:   ChatConfig{InitMessageLimit: 50},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "roomclaw",
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file yields the defaults plus env.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*dst = n
			}
		}
	}
	envBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}

	envStr("ROOMCLAW_OPENAI_API_KEY", &c.Providers.OpenAI.APIKey)
	envStr("ROOMCLAW_OPENAI_API_BASE", &c.Providers.OpenAI.APIBase)
	envStr("ROOMCLAW_GATEWAY_TOKEN", &c.Gateway.Token)

	envStr("ROOMCLAW_HOST", &c.Gateway.Host)
	envInt("ROOMCLAW_PORT", &c.Gateway.Port)
	if v := os.Getenv("ROOMCLAW_ALLOWED_ORIGINS"); v != "" {
		c.Gateway.AllowedOrigins = strings.Split(v, ",")
	}

	envStr("ROOMCLAW_DATA_DIR", &c.Database.DataDir)
	envStr("ROOMCLAW_POSTGRES_DSN", &c.Database.PostgresDSN)

	envStr("ROOMCLAW_PROVIDER", &c.Agents.Provider)
	envStr("ROOMCLAW_MODEL", &c.Agents.Model)
	envStr("ROOMCLAW_ROUTING_MODEL", &c.Agents.RoutingModel)
	envInt("ROOMCLAW_DEBOUNCE_MS", &c.Agents.DebounceMs)

	envStr("ROOMCLAW_LOG_LEVEL", &c.Log.Level)

	envBool("ROOMCLAW_TELEMETRY_ENABLED", &c.Telemetry.Enabled)
	envStr("ROOMCLAW_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("ROOMCLAW_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("ROOMCLAW_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	envBool("ROOMCLAW_TELEMETRY_INSECURE", &c.Telemetry.Insecure)
}

// Validate rejects settings the gateway cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Gateway.Port <= 0 || c.Gateway.Port > 65535:
		return fmt.Errorf("config: gateway.port %d out of range", c.Gateway.Port)
	case c.Agents.DebounceMs < 0:
		return fmt.Errorf("config: agents.debounce_ms must not be negative")
	case c.Agents.ContextMessages < 0:
		return fmt.Errorf("config: agents.context_messages must not be negative")
	case c.Agents.MaxToolIterations <= 0:
		return fmt.Errorf("config: agents.max_tool_iterations must be positive")
	case c.Chat.InitMessageLimit <= 0:
		return fmt.Errorf("config: chat.init_message_limit must be positive")
	case c.Database.DataDir == "":
		return fmt.Errorf("config: database.data_dir is required")
	}
	if p := c.Telemetry.Protocol; p != "" && p != "grpc" && p != "http" {
		return fmt.Errorf("config: telemetry.protocol %q (want grpc or http)", p)
	}
	return nil
}

// MaskedCopy returns a deep copy with secrets masked, for display.
func (c *Config) MaskedCopy() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Deep copy via JSON round-trip
	data, err := json.Marshal(c)
	if err != nil {
		return &Config{}
	}
	cp := Default()
	if err := json.Unmarshal(data, cp); err != nil {
		return &Config{}
	}

	maskNonEmpty(&cp.Providers.OpenAI.APIKey)
	maskNonEmpty(&cp.Gateway.Token)
	return cp
}

func maskNonEmpty(s *string) {
	if *s != "" {
		*s = secretMask
	}
}

// DataDir returns the expanded actor data directory.
func (c *Config) DataDir() string {
	return ExpandHome(c.Database.DataDir)
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
