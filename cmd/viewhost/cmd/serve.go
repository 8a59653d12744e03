package cmd

import (
	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/viewhost/host"
	"github.com/GoCodeAlone/viewhost/internal/demoview"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the view host until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			logger, err := cfg.Logging.NewLogger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			h, err := host.New(cfg,
				host.WithViews(demoview.Definition()),
				host.WithLogger(logger),
			)
			if err != nil {
				return err
			}
			return h.Run(cmd.Context())
		},
	}
}
