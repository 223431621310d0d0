package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/banshee-data/camstream/internal/version"
)

// app holds state shared by the subcommands.
type app struct {
	logLevel string
	log      zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{log: zerolog.Nop()}

	root := &cobra.Command{
		Use:           "camstream",
		Short:         "Resolve camera frame samples from recorded sessions",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log, err := setupLogging(cmd.ErrOrStderr(), a.logLevel)
			if err != nil {
				return err
			}
			a.log = log
			return nil
		},
	}
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	root.AddCommand(
		newResolveCmd(a),
		newFramesCmd(a),
		newVersionCmd(),
	)
	return root
}
