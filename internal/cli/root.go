// Package cli holds the supportim command tree.
package cli

import (
	"github.com/soyeahso/supportim/internal/config"
	"github.com/soyeahso/supportim/internal/logging"
	"github.com/soyeahso/supportim/internal/version"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string

	// set by setup before any subcommand runs
	paths config.Paths
	log   *logging.Logger
)

// setup resolves the data directory and the CLI logger. serve replaces the
// logger with one built from the config file.
func setup(cmd *cobra.Command, args []string) error {
	resolved, err := config.ResolvePaths()
	if err != nil {
		return err
	}
	if cfgFile != "" {
		resolved.Config = cfgFile
	}
	paths = resolved

	level := logLevel
	if level == "" {
		level = "info"
	}
	log = logging.New(cmd.ErrOrStderr(), level)
	return nil
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "supportim",
		Short:             "Real-time customer support chat server",
		Long:              "supportim relays chat between website customers and support agents over WebSocket,\nwith an HTTP API for the agent console.",
		Version:           version.Info(),
		PersistentPreRunE: setup,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}
	cmd.SetVersionTemplate("{{.Version}}\n")

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default ~/.supportim/config.yaml)")
	flags.StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")

	cmd.AddCommand(
		newServeCmd(),
		newGatewayCmd(),
		newStatusCmd(),
		newConfigCmd(),
		newAdminCmd(),
		newVersionCmd(),
	)
	return cmd
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}
