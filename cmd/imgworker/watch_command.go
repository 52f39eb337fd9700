package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"imgworker/internal/broadcast"
	"imgworker/internal/ipc"
)

const watchPollWait = 25 * time.Second

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var history int
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream worker events",
		RunE: func(cmd *cobra.Command, args []string) error {
			sigCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return ctx.withClient(func(client *ipc.Client) error {
				observer, err := client.Connect()
				if err != nil {
					return err
				}
				defer client.Disconnect(observer) //nolint:errcheck

				cursor, err := client.Events(observer, 0, 0, 0)
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				events := cursor.Events
				if history >= 0 && len(events) > history {
					events = events[len(events)-history:]
				}
				for _, evt := range events {
					if err := printEvent(stdout, evt, asJSON); err != nil {
						return err
					}
				}
				return streamEvents(sigCtx, client, observer, cursor.Next, stdout, asJSON)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print events as JSON lines")
	cmd.Flags().IntVar(&history, "history", 0, "Buffered events to print before streaming (-1 for all)")
	return cmd
}

func streamEvents(ctx context.Context, client *ipc.Client, observer string, since uint64, w io.Writer, asJSON bool) error {
	for ctx.Err() == nil {
		resp, err := client.Events(observer, since, 0, watchPollWait)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		for _, evt := range resp.Events {
			if err := printEvent(w, evt, asJSON); err != nil {
				return err
			}
		}
		since = resp.Next
	}
	return nil
}

func printEvent(w io.Writer, evt broadcast.Event, asJSON bool) error {
	if asJSON {
		data, err := json.Marshal(evt)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	line := fmt.Sprintf("%6d  %s  %s", evt.Sequence, evt.Timestamp.Local().Format("15:04:05"), evt.Command)
	if len(evt.Queue) > 0 {
		line += fmt.Sprintf("  (%d items)", len(evt.Queue))
	}
	_, err := fmt.Fprintln(w, line)
	return err
}
