package cmd

import (
	"github.com/DevLabFoundry/zaws/internal/credentialexchange"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newSetDefaultCmd(r *Root) {
	cmd := &cobra.Command{
		Use:   "set-default ACCOUNT ROLE",
		Short: "Set default AWS account and role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, role := args[0], args[1]
			conf, settings, err := r.EnsureConfig(cmd)
			if err != nil {
				return err
			}
			svc, err := r.LoginSvc(cmd.Context(), conf, settings)
			if err != nil {
				return err
			}
			// the pair must exist in the caller's entitlements before
			// it can become the default
			profiles, err := svc.Profiles(cmd.Context())
			if err != nil {
				return err
			}
			if _, err := credentialexchange.FindProfile(profiles, account, role); err != nil {
				return err
			}

			conf.DefaultAccount = account
			conf.DefaultRole = role
			log.Infof("Storing configuration in %s", settings.ConfigFile)
			return credentialexchange.SaveConfig(settings.ConfigFile, conf)
		},
	}
	r.Cmd.AddCommand(cmd)
}
