package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"callshield/internal/config"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:   "callshield",
		Short: "Incoming call routing agent and reference backend",
		Long: `callshield routes incoming calls through a routing backend.

Run "callshield agent" on the device and "callshield backend" for the
reference backend. Settings come from the environment, optionally layered
over a YAML file given with --config.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file (env vars override file values)")

	load := func() (config.Config, error) {
		if configFile != "" {
			return config.LoadFile(configFile)
		}
		return config.Load()
	}

	root.AddCommand(
		newAgentCmd(load),
		newBackendCmd(load),
		newDashboardCmd(load),
		newProbeCmd(load),
		newTokenCmd(load),
	)
	return root
}

type configLoader func() (config.Config, error)

// serve runs srv until ctx ends, then shuts it down gracefully.
func serve(ctx context.Context, log *slog.Logger, name string, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info(name+" listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Info("shutdown initiated", "server", name)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s shutdown: %w", name, err)
	}
	return nil
}

func newHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
