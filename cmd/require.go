package cmd

import (
	"github.com/DevLabFoundry/zaws/internal/cmdutils"
	"github.com/spf13/cobra"
)

func newRequireCmd(r *Root) {
	cmd := &cobra.Command{
		Use:   "require [ACCOUNT [ROLE]]",
		Short: "Login if necessary",
		Long: `Ensures fresh credentials without forcing a login.
Performs a single login only when the last exchange is close to the assumed
expiry, or when the hinted account/role differs from the last one.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, settings, err := r.EnsureConfig(cmd)
			if err != nil {
				return err
			}
			params := cmdutils.LoginParams{AwsProfile: settings.AwsProfile}
			if len(args) > 0 {
				params.AccountName = args[0]
			}
			if len(args) > 1 {
				params.RoleName = args[1]
			}
			svc, err := r.LoginSvc(cmd.Context(), conf, settings)
			if err != nil {
				return err
			}
			return svc.Require(cmd.Context(), params)
		},
	}
	r.Cmd.AddCommand(cmd)
}
