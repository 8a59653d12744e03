// Package cmd implements the viewhost command line: serving views, inspecting the
// configuration and issuing admin tokens.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/viewhost/host"
)

// Version information, set at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// PrintVersion returns the version line printed by --version.
func PrintVersion() string {
	return fmt.Sprintf("viewhost v%s (commit: %s, built on: %s)", Version, Commit, Date)
}

type rootOptions struct {
	configPath string
	envPrefix  string
}

func (o *rootOptions) load() (*host.Config, error) {
	return host.LoadConfig(o.configPath, o.envPrefix)
}

// NewRootCommand creates the root command of the viewhost binary.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "viewhost",
		Short: "viewhost - host for versioned, isolated web view instances",
		Long: `viewhost mounts instances of view modules under /views/<view>/<version>/<instance>
and serves them behind a fail-safe dispatcher with a shared session store.`,
		Version:       PrintVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.SetVersionTemplate("{{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "configuration file (.yaml, .toml or .json)")
	cmd.PersistentFlags().StringVar(&opts.envPrefix, "env-prefix", host.DefaultEnvPrefix, "prefix of configuration environment variables")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newConfigCommand(opts))
	cmd.AddCommand(newTokenCommand(opts))
	return cmd
}
