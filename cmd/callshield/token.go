package main

import (
	"fmt"
	"time"

	"callshield/internal/auth"
	"callshield/internal/rbac"

	"github.com/spf13/cobra"
)

func newTokenCmd(load configLoader) *cobra.Command {
	var subject, role string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a control API access token for this device",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !rbac.Valid(role) {
				return fmt.Errorf("role must be %s or %s, got %q", rbac.RoleOperator, rbac.RoleViewer, role)
			}
			cfg, err := load()
			if err != nil {
				return err
			}
			m, err := auth.NewManager(cfg.Auth)
			if err != nil {
				return err
			}
			tok, err := m.Issue(time.Now(), subject, cfg.Device.ID, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Token subject (who will use it)")
	cmd.Flags().StringVar(&role, "role", rbac.RoleViewer, "operator or viewer")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
