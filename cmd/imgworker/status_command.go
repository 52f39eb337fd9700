package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"imgworker/internal/ipc"
	"imgworker/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var queueFilter string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show worker, component, and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var only queue.Name
			if value := strings.TrimSpace(queueFilter); value != "" {
				name, ok := queue.ParseName(value)
				if !ok {
					return fmt.Errorf("unknown queue %q (want optimize or upload)", value)
				}
				only = name
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Status()
				if err != nil {
					return err
				}
				if only != "" {
					resp.Status.Queue = filterQueue(resp.Status.Queue, only)
				}
				if asJSON {
					return writeJSON(cmd, resp.Status)
				}
				stdout := cmd.OutOrStdout()
				renderStatus(stdout, resp.Status, shouldColorize(stdout))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print status as JSON")
	cmd.Flags().StringVar(&queueFilter, "queue", "", "Only list items of one queue (optimize or upload)")
	return cmd
}

func filterQueue(views []queue.View, name queue.Name) []queue.View {
	out := make([]queue.View, 0, len(views))
	for _, v := range views {
		if v.Queue == name {
			out = append(out, v)
		}
	}
	return out
}
