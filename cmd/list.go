package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/DevLabFoundry/zaws/internal/credentialexchange"
	"github.com/spf13/cobra"
)

type listCmdFlags struct {
	output string
}

func newListCmd(r *Root) {
	flags := &listCmdFlags{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List AWS profiles",
		Long:  `List the AWS account/role profiles your identity is entitled to.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			switch flags.output {
			case "text", "json", "tsv":
				return nil
			}
			return fmt.Errorf("unsupported output format: %s", flags.output)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, settings, err := r.EnsureConfig(cmd)
			if err != nil {
				return err
			}
			svc, err := r.LoginSvc(cmd.Context(), conf, settings)
			if err != nil {
				return err
			}
			profiles, err := svc.Profiles(cmd.Context())
			if err != nil {
				return err
			}
			return renderProfiles(cmd, flags.output, profiles)
		},
	}

	cmd.PersistentFlags().StringVarP(&flags.output, "output", "o", "text", "Use alternative output format [text|json|tsv]")
	r.Cmd.AddCommand(cmd)
}

func renderProfiles(cmd *cobra.Command, output string, profiles []credentialexchange.Profile) error {
	out := cmd.OutOrStdout()
	switch output {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(profiles)
	case "tsv":
		for _, p := range profiles {
			fmt.Fprintf(out, "%s\t%s\t%s\n", p.AccountID, p.AccountName, p.RoleName)
		}
		return nil
	default:
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ACCOUNT_ID\tACCOUNT_NAME\tROLE_NAME")
		for _, p := range profiles {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", p.AccountID, p.AccountName, p.RoleName)
		}
		return tw.Flush()
	}
}
