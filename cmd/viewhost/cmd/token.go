package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/viewhost/security"
)

func newTokenCommand(opts *rootOptions) *cobra.Command {
	var (
		subject string
		roles   []string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token signed with the configured secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.Security.Secret == "" {
				return security.ErrSecretRequired
			}
			filter, err := security.NewFilter(&cfg.Security, nil)
			if err != nil {
				return err
			}
			token, err := filter.IssueToken(subject, roles...)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&subject, "subject", "s", "admin", "token subject")
	cmd.Flags().StringSliceVarP(&roles, "role", "r", nil, "role claim, repeatable")
	return cmd
}
