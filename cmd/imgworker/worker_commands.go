package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"imgworker/internal/command"
	"imgworker/internal/ipc"
)

func newWorkerCommands(ctx *commandContext) []*cobra.Command {
	var configWait time.Duration
	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "Resume a halted worker, poll the image list now, and answer its config request",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			settings := cfg.Settings()
			stdout := cmd.OutOrStdout()
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
				if err := client.Send(observer, command.Message{Command: command.GetUpdate}); err != nil {
					return err
				}
				fmt.Fprintln(stdout, "Update requested")
				if configWait <= 0 {
					return nil
				}
				asked, err := waitForCommand(client, observer, cursor.Next, command.GetConfig, configWait)
				if err != nil {
					return err
				}
				if !asked {
					fmt.Fprintln(stdout, "Worker did not request settings")
					return nil
				}
				if err := client.Send(observer, command.Message{Command: command.SetConfig, Config: &settings}); err != nil {
					return err
				}
				fmt.Fprintln(stdout, "Settings sent")
				return nil
			})
		},
	}
	updateCmd.Flags().DurationVar(&configWait, "config-wait", 5*time.Second, "How long to wait for the worker to request settings (0 to skip)")

	removeCmd := &cobra.Command{
		Use:   "remove <payload-id>",
		Short: "Remove an idle item from the worker queues",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			if id == "" {
				return fmt.Errorf("payload id is required")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if err := sendCommand(client, command.Message{Command: command.RemoveItem, ID: id}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Remove requested for %s\n", id)
				return nil
			})
		},
	}

	var stopTimeout time.Duration
	stopCmd := &cobra.Command{
		Use:   "stop-working",
		Short: "Halt the worker and drop idle items",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
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
				if err := client.Send(observer, command.Message{Command: command.StopWorking}); err != nil {
					return err
				}
				fmt.Fprintln(stdout, "Stopping worker...")
				if stopTimeout <= 0 {
					return nil
				}
				stopped, err := waitForCommand(client, observer, cursor.Next, command.Stopped, stopTimeout)
				if err != nil {
					return err
				}
				if !stopped {
					fmt.Fprintln(stdout, "Worker still finishing in-flight items")
					return nil
				}
				fmt.Fprintln(stdout, "Worker stopped")
				return nil
			})
		},
	}
	stopCmd.Flags().DurationVar(&stopTimeout, "wait", 30*time.Second, "How long to wait for in-flight items (0 to return immediately)")

	skipCmd := &cobra.Command{
		Use:   "skip-waiting",
		Short: "Activate a worker started with --replace",
		RunE: func(cmd *cobra.Command, args []string) error {
			socket := ctx.waitingSocketPath()
			client, err := ipc.Dial(socket)
			if err != nil {
				return wrapDialError(err, socket)
			}
			defer client.Close()
			if err := sendCommand(client, command.Message{Command: command.SkipWaiting}); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Waiting worker activating")
			return nil
		},
	}

	return []*cobra.Command{updateCmd, removeCmd, stopCmd, skipCmd}
}

// sendCommand delivers msg under a short-lived observer id.
func sendCommand(client *ipc.Client, msg command.Message) error {
	observer, err := client.Connect()
	if err != nil {
		return err
	}
	defer client.Disconnect(observer) //nolint:errcheck
	return client.Send(observer, msg)
}

func waitForCommand(client *ipc.Client, observer string, since uint64, name string, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}
		resp, err := client.Events(observer, since, 0, remaining)
		if err != nil {
			return false, err
		}
		for _, evt := range resp.Events {
			if evt.Command == name {
				return true, nil
			}
		}
		since = resp.Next
	}
}
