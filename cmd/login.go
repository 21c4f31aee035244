// File: cmd/login.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/linkrunner/internal/observability"
	"github.com/xkilldash9x/linkrunner/internal/pipeline"
)

func newLoginCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in manually and save the session for later runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := configFrom(ctx)
			if err != nil {
				return err
			}
			rc, err := newRunContext(cmd, cfg, observability.GetLogger())
			if err != nil {
				return err
			}
			rc.Interactive = true

			if err := pipeline.Login(ctx, rc); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session saved to %s\n", rc.Sessions.Path())
			return nil
		},
	}
	cmd.Flags().Duration("timeout", 0, "How long to wait for the login to complete. (Overrides config/env)")
	_ = v.BindPFlag("session.manual_login_timeout", cmd.Flags().Lookup("timeout"))
	return cmd
}
