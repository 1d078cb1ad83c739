// Package cli implements the mcssh command line.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/frederikbeimgraben/mcssh/internal/config"
)

var (
	configPath string
	cfg        *config.Config
)

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}

// NewRootCommand builds the command tree. Without a subcommand it serves.
func NewRootCommand() *cobra.Command {
	serve := serveCmd()

	root := &cobra.Command{
		Use:           "mcssh",
		Short:         "SSH front-end for the Minecraft server console",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				if err := os.Setenv("MCSSH_CONFIG", configPath); err != nil {
					return err
				}
			}
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			cfg = loaded
			return nil
		},
		RunE: serve.RunE,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (overrides MCSSH_CONFIG)")

	root.AddCommand(serve, fingerprintCmd(), authorizeCmd(), historyCmd())
	return root
}
