package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/roomclaw/internal/agent"
	"github.com/nextlevelbuilder/roomclaw/internal/config"
	"github.com/nextlevelbuilder/roomclaw/internal/gateway"
	httpapi "github.com/nextlevelbuilder/roomclaw/internal/http"
	"github.com/nextlevelbuilder/roomclaw/internal/mcp"
	"github.com/nextlevelbuilder/roomclaw/internal/providers"
	"github.com/nextlevelbuilder/roomclaw/internal/room"
	"github.com/nextlevelbuilder/roomclaw/internal/store"
	"github.com/nextlevelbuilder/roomclaw/internal/store/file"
	"github.com/nextlevelbuilder/roomclaw/internal/store/pg"
	"github.com/nextlevelbuilder/roomclaw/internal/tracing"
	"github.com/nextlevelbuilder/roomclaw/pkg/protocol"
)

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Run the gateway (default command)",
		Run: func(cmd *cobra.Command, args []string) {
			runGateway()
		},
	}
}

func runGateway() {
	// The level var lets config reloads change verbosity without a restart.
	var logLevel slog.LevelVar
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: &logLevel,
	})))

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	applyLogLevel(&logLevel, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, cfg.Telemetry, Version)
	if err != nil {
		slog.Warn("tracing.init_failed", "error", err)
	}
	defer shutdownTracing(context.Background())

	dataDir := cfg.DataDir()
	dir, closeDir, err := openDirectory(ctx, cfg, dataDir)
	if err != nil {
		slog.Error("failed to open directory store", "error", err)
		os.Exit(1)
	}
	defer closeDir()

	provider := buildProvider(cfg)
	hub := room.NewHub(room.HubConfig{
		DataDir:   dataDir,
		Directory: dir,
		Runner: agent.NewRunner(agent.RunnerConfig{
			Provider:      provider,
			Model:         cfg.Agents.Model,
			MaxIterations: cfg.Agents.MaxToolIterations,
			MaxTokens:     cfg.Agents.MaxTokens,
			Temperature:   cfg.Agents.Temperature,
		}),
		Selector: agent.NewSelector(provider, cfg.RoutingModel()),
		MCP:      mcp.NewBridge(mcp.WithClientInfo("roomclaw", Version)),
		Settings: room.Settings{
			DebounceWindow:   cfg.DebounceWindow,
			ContextMessages:  cfg.Agents.ContextMessages,
			InitMessageLimit: cfg.Chat.InitMessageLimit,
		},
		IdleTimeout: cfg.IdleTimeout,
	})
	if err := hub.Start(ctx); err != nil {
		slog.Error("failed to start actors", "error", err)
		os.Exit(1)
	}
	defer hub.Close()

	server := gateway.NewServer(cfg, hub)
	server.SetRPCHandler(httpapi.NewRPCHandler(hub, cfg.Gateway.Token))

	go func() {
		err := config.Watch(ctx, cfgPath, func(fresh *config.Config) {
			cfg.ApplyReloadable(fresh)
			applyLogLevel(&logLevel, cfg)
			slog.Info("config.reloaded", "debounce", cfg.DebounceWindow(), "level", cfg.LogLevel())
		})
		if err != nil {
			slog.Warn("config.watch_failed", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("graceful shutdown initiated", "signal", sig)
		cancel()
	}()

	slog.Info("roomclaw gateway starting",
		"version", Version,
		"protocol", protocol.ProtocolVersion,
		"data_dir", dataDir,
		"directory", directoryKind(cfg),
		"model", cfg.Agents.Model,
		"config", cfg.MaskedCopy(),
	)

	if err := server.Start(ctx); err != nil {
		slog.Error("gateway error", "error", err)
		os.Exit(1)
	}
}

func applyLogLevel(v *slog.LevelVar, cfg *config.Config) {
	if verbose {
		v.Set(slog.LevelDebug)
		return
	}
	v.Set(cfg.LogLevel())
}

func directoryKind(cfg *config.Config) string {
	if cfg.UsesPostgresDirectory() {
		return "postgres"
	}
	return "file"
}

// openDirectory returns the shared organization/room directory: Postgres
// when a DSN is set, otherwise a JSON file next to the actor databases.
func openDirectory(ctx context.Context, cfg *config.Config, dataDir string) (store.DirectoryStore, func(), error) {
	if cfg.UsesPostgresDirectory() {
		d, err := pg.NewPGDirectoryStore(ctx, cfg.Database.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return d, func() { d.Close() }, nil
	}
	d, err := file.NewFileDirectoryStore(filepath.Join(dataDir, "directory.json"))
	if err != nil {
		return nil, nil, err
	}
	return d, func() {}, nil
}

func buildProvider(cfg *config.Config) providers.Provider {
	if cfg.Agents.Provider != "" && cfg.Agents.Provider != "openai" {
		slog.Warn("unknown provider, using openai-compatible endpoint", "provider", cfg.Agents.Provider)
	}
	if cfg.Providers.OpenAI.APIKey == "" {
		slog.Warn("no provider API key configured; agent turns will fail (set ROOMCLAW_OPENAI_API_KEY)")
	}
	slog.Info("registered provider", "name", "openai")
	return providers.NewOpenAIProvider("openai", cfg.Providers.OpenAI.APIKey, cfg.Providers.OpenAI.APIBase, cfg.Agents.Model)
}
