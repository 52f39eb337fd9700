package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"imgworker/internal/ipc"
	"imgworker/internal/logging"
	"imgworker/internal/updater"
)

func newUpgradeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade",
		Short: "Hand work over to a worker started with --replace",
		Long: "Waits for a replacement worker on the waiting socket, stops the active\n" +
			"worker, activates the replacement, and shuts the old process down.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			waitingSocket := ctx.waitingSocketPath()
			return ctx.withClient(func(active *ipc.Client) error {
				dial := func() (updater.Worker, error) {
					client, err := ipc.Dial(waitingSocket)
					if err != nil {
						return nil, err
					}
					return client, nil
				}
				opts := updater.Options{Logger: logging.NewNop()}
				if cfg != nil {
					opts.Timeout = cfg.UpdateTimeout()
				}
				updated, err := updater.Update(cmd.Context(), active, dial, opts)
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if !updated {
					fmt.Fprintf(stdout, "No waiting worker found at %s\n", waitingSocket)
					return nil
				}
				fmt.Fprintln(stdout, "Worker updated")
				return nil
			})
		},
	}
}
