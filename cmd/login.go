package cmd

import (
	"fmt"

	"github.com/DevLabFoundry/zaws/internal/cmdutils"
	"github.com/spf13/cobra"
)

type loginCmdFlags struct {
	refresh bool
}

func newLoginCmd(r *Root) {
	flags := &loginCmdFlags{}
	cmd := &cobra.Command{
		Use:   "login [ACCOUNT ROLE]",
		Short: "Login to AWS with given account and role",
		Long: `Login to AWS with given account and role.
Omitting both arguments reuses the account and role of the last successful login.
With --refresh the process keeps running and re-exchanges credentials shortly
before they expire, until interrupted.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return fmt.Errorf("requires both ACCOUNT and ROLE, or neither")
			}
			return cobra.MaximumNArgs(2)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, settings, err := r.EnsureConfig(cmd)
			if err != nil {
				return err
			}
			params := cmdutils.LoginParams{
				AwsProfile: settings.AwsProfile,
				Refresh:    flags.refresh,
			}
			if len(args) == 2 {
				params.AccountName, params.RoleName = args[0], args[1]
			}
			svc, err := r.LoginSvc(cmd.Context(), conf, settings)
			if err != nil {
				return err
			}
			return svc.Login(cmd.Context(), params)
		},
	}

	cmd.PersistentFlags().BoolVarP(&flags.refresh, "refresh", "r", false, "Keep running and refresh access tokens automatically")
	r.Cmd.AddCommand(cmd)
}
