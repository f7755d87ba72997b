package main

import (
	"os"
	"os/signal"
	"syscall"

	"callshield/internal/backend"
	"callshield/internal/dashboard"
	"callshield/pkg/logger"

	"github.com/spf13/cobra"
)

func newDashboardCmd(load configLoader) *cobra.Command {
	var (
		once   bool
		plain  bool
		callID string
	)
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Poll the backend analytics and print them as tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// Log to stderr so tables on stdout stay readable.
			log := logger.NewWithWriter(cfg.App.Env, os.Stderr)
			client := backend.New(backend.Options{
				BaseURL: cfg.Dashboard.URL,
				APIKey:  cfg.Server.APIKey,
				Timeout: cfg.Routing.Timeout,
				Logger:  log,
			})
			p := dashboard.NewPoller(dashboard.Options{
				Client:   client,
				Interval: cfg.Dashboard.Interval,
				Logger:   log,
				Out:      cmd.OutOrStdout(),
			})

			switch {
			case callID != "":
				rec, err := p.CallDetails(ctx, callID)
				if err != nil {
					return err
				}
				dashboard.RenderCall(cmd.OutOrStdout(), rec, plain)
				return nil
			case once:
				return dashboard.Render(cmd.OutOrStdout(), p.Refresh(ctx), plain)
			default:
				return p.Run(ctx, plain)
			}
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Refresh once and exit")
	cmd.Flags().BoolVar(&plain, "no-color", false, "Disable coloured output")
	cmd.Flags().StringVar(&callID, "call", "", "Show the details of one call and exit")
	return cmd
}
