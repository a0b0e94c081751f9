package cmd

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"github.com/spf13/cobra"
)

var (
	ErrUnableToCreateSession = errors.New("sts - cannot start a new session")
)

func newWhoamiCmd(r *Root) {
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the identity behind the written credentials",
		Long: `Calls STS GetCallerIdentity using the shared credentials profile zaws writes to.
Useful to confirm that a login actually produced working credentials.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.LoadDefaultConfig(ctx,
				config.WithSharedConfigProfile(r.rootFlags.awsProfile))
			if err != nil {
				return fmt.Errorf("failed to create session %s, %w", err, ErrUnableToCreateSession)
			}
			svc := sts.NewFromConfig(cfg)

			resp, err := svc.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
			if err != nil {
				var apiErr smithy.APIError
				if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ExpiredToken" {
					return fmt.Errorf("credentials for profile %q have expired - run \"zaws login\": %w", r.rootFlags.awsProfile, err)
				}
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Account:\t%s\n", deref(resp.Account))
			fmt.Fprintf(cmd.OutOrStdout(), "Arn:\t%s\n", deref(resp.Arn))
			fmt.Fprintf(cmd.OutOrStdout(), "UserId:\t%s\n", deref(resp.UserId))
			return nil
		},
	}
	r.Cmd.AddCommand(cmd)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
