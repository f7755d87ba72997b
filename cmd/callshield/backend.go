package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"callshield/internal/backendserver"
	"callshield/internal/decoy"
	"callshield/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func newBackendCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "backend",
		Short: "Run the reference routing backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logger.New(cfg.App.Env).With("component", "backend")
			slog.SetDefault(log)
			if cfg.IsProduction() {
				gin.SetMode(gin.ReleaseMode)
			}

			targets, err := backendserver.ParseTargets(cfg.Server.RedirectNumbers)
			if err != nil {
				return fmt.Errorf("REDIRECT_NUMBERS: %w", err)
			}
			opts := backendserver.Options{
				APIKey: cfg.Server.APIKey,
				Policy: backendserver.NewPolicy(cfg.Server.BlockedNumbers, targets, nil),
				Logger: log,
			}
			if cfg.Server.DecoyPersonas {
				if opts.Decoy, err = decoy.New(decoy.Options{}); err != nil {
					return err
				}
				log.Info("spam calls will be answered by decoy personas")
			}
			srv := backendserver.New(opts)
			return serve(ctx, log, "routing backend", newHTTPServer(cfg.BackendServerAddr(), backendRoutes(log, srv)))
		},
	}
}
