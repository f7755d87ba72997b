package main

import (
	"errors"
	"fmt"
	"os"

	"callshield/internal/backend"
	"callshield/pkg/logger"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var errUnreachable = errors.New("backend unreachable")

func newProbeCmd(load configLoader) *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check that the routing backend answers its health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if url == "" {
				url = cfg.Routing.BackendURL
			}
			client := backend.New(backend.Options{
				BaseURL: url,
				APIKey:  cfg.Routing.APIKey,
				Timeout: cfg.Routing.Timeout,
				Logger:  logger.NewWithWriter(cfg.App.Env, os.Stderr),
			})

			out := cmd.OutOrStdout()
			if !client.TestConnection(cmd.Context()) {
				fmt.Fprintf(out, "%s %s\n", color.RedString("unreachable"), client.BaseURL())
				return errUnreachable
			}
			fmt.Fprintf(out, "%s %s\n", color.GreenString("ok"), client.BaseURL())
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "Backend URL (defaults to BACKEND_URL)")
	return cmd
}
