package main

import (
	"github.com/spf13/cobra"

	"imgworker/internal/daemonrun"
)

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	var replace bool
	var logLevel string
	cmd := &cobra.Command{
		Use:          "daemon",
		Short:        "Run the imgworker daemon in the foreground",
		Hidden:       true,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel: logLevel,
				Replace:  replace,
			})
		},
	}
	cmd.Flags().BoolVar(&replace, "replace", false, "Wait for skip-waiting when another worker is active")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	return cmd
}
