package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"callshield/internal/auth"
	"callshield/internal/backend"
	"callshield/internal/config"
	"callshield/internal/detection"
	"callshield/internal/history"
	"callshield/internal/httpapi"
	"callshield/internal/notify"
	"callshield/internal/routing"
	"callshield/internal/settings"
	"callshield/pkg/logger"
	"callshield/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
)

const memoryHistoryCapacity = 1000

func newAgentCmd(load configLoader) *cobra.Command {
	var plain bool
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Run the routing orchestrator and its control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateAgent(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runAgent(ctx, cfg, plain)
		},
	}
	cmd.Flags().BoolVar(&plain, "no-color", false, "Disable coloured notices")
	return cmd
}

func seedSettings(cfg config.Config) settings.RoutingConfig {
	return settings.RoutingConfig{
		Enabled:          cfg.Routing.Enabled,
		BackendURL:       cfg.Routing.BackendURL,
		APIKey:           cfg.Routing.APIKey,
		AutoReject:       cfg.Routing.AutoReject,
		ForwardToBackend: cfg.Routing.ForwardToBackend,
	}
}

func runAgent(ctx context.Context, cfg config.Config, plain bool) error {
	log := logger.New(cfg.App.Env).With("device_id", cfg.Device.ID)
	slog.SetDefault(log)
	ctx = logger.With(ctx, log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	seed := seedSettings(cfg)
	if err := seed.Validate(); err != nil {
		return fmt.Errorf("initial routing settings: %w", err)
	}

	store, closeStore, err := openSettingsStore(ctx, cfg, seed)
	if err != nil {
		return err
	}
	defer closeStore()

	repo, closeRepo, err := openHistoryRepo(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRepo()
	hist := history.NewService(repo)

	var (
		source detection.Source = detection.Unsupported{}
		feed   *detection.Feed
	)
	if cfg.Routing.EventSource == "feed" {
		feed = detection.NewFeed(nil)
		source = feed
	}

	client := backend.New(backend.Options{
		BaseURL:  seed.BackendURL,
		APIKey:   seed.APIKey,
		Timeout:  cfg.Routing.Timeout,
		Platform: cfg.Device.Platform,
		Logger:   log,
	})

	orch := routing.New(routing.Options{
		DeviceID:    cfg.Device.ID,
		PhoneNumber: cfg.Device.PhoneNumber,
		Backend:     client,
		Settings:    store,
		Source:      source,
		Notifier: notify.Multi{
			notify.LogNotifier{Log: log},
			notify.NewConsoleNotifier(os.Stderr, plain),
		},
		History: hist,
		Logger:  log,
	})

	if err := orch.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize routing: %w", err)
	}
	current, err := orch.Configuration(ctx)
	if err != nil {
		return fmt.Errorf("load routing settings: %w", err)
	}
	if current.Enabled {
		if err := orch.Start(ctx); err != nil {
			log.Warn("call routing did not start", "err", err)
		}
	}
	defer orch.Stop()

	if cfg.App.Port == 0 {
		log.Info("control api disabled")
		<-ctx.Done()
		return nil
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		return fmt.Errorf("auth init: %w", err)
	}
	handlers := httpapi.Handlers{
		DeviceID: cfg.Device.ID,
		Routing:  orch,
		History:  hist,
		Feed:     feed,
	}
	return serve(ctx, log, "control api", newHTTPServer(cfg.HTTPAddr(), agentRoutes(log, handlers, authManager)))
}

func openSettingsStore(ctx context.Context, cfg config.Config, seed settings.RoutingConfig) (settings.Store, func(), error) {
	if cfg.Settings.Store != "redis" {
		return settings.NewMemoryStore(seed), func() {}, nil
	}
	rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password})
	if err != nil {
		return nil, nil, fmt.Errorf("redis init: %w", err)
	}
	return settings.NewRedisStore(rdb, cfg.Device.ID, seed), func() { _ = rdb.Close() }, nil
}

func openHistoryRepo(ctx context.Context, cfg config.Config) (history.Repository, func(), error) {
	if cfg.History.Store != "postgres" {
		return history.NewMemoryRepo(memoryHistoryCapacity), func() {}, nil
	}
	db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{ApplicationName: "callshield-agent"})
	if err != nil {
		return nil, nil, fmt.Errorf("postgres init: %w", err)
	}
	repo := history.NewPostgresRepo(db)
	if err := repo.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("history migrate: %w", err)
	}
	return repo, func() { _ = db.Close() }, nil
}
