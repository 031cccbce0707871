package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"likevault/internal/ipc"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Resume processing in a running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Start()
				if err != nil {
					return err
				}
				if !resp.Started {
					return fmt.Errorf("start daemon: %s", resp.Message)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Processing resumed")
				return nil
			})
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Pause processing without terminating the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Stop()
				if err != nil {
					return err
				}
				if !resp.Stopped {
					return errors.New("daemon did not acknowledge stop")
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Processing paused")
				return nil
			})
		},
	}

	var statusJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, disk and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Status()
				if err != nil {
					return err
				}
				if statusJSON {
					return writeJSON(cmd, resp)
				}

				stdout := cmd.OutOrStdout()
				colorize := shouldColorize(stdout)
				now := time.Now()

				for _, line := range renderSectionHeader("Daemon", colorize) {
					fmt.Fprintln(stdout, line)
				}
				for _, line := range daemonLines(resp.Status, now, colorize) {
					fmt.Fprintln(stdout, line)
				}
				fmt.Fprintln(stdout)

				for _, line := range renderSectionHeader("Disk", colorize) {
					fmt.Fprintln(stdout, line)
				}
				for _, line := range diskLines(resp.Disk, colorize) {
					fmt.Fprintln(stdout, line)
				}
				fmt.Fprintln(stdout)

				for _, line := range renderSectionHeader("Queue", colorize) {
					fmt.Fprintln(stdout, line)
				}
				for _, line := range workerLines(resp.Workflow, colorize) {
					fmt.Fprintln(stdout, line)
				}
				if rows := buildQueueRows(resp.Workflow); len(rows) == 0 {
					fmt.Fprintln(stdout, "Queue is empty")
				} else {
					fmt.Fprintln(stdout, renderTable([]string{"Task", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				}
				fmt.Fprintln(stdout)

				for _, line := range renderSectionHeader("Items", colorize) {
					fmt.Fprintln(stdout, line)
				}
				rows := buildItemRows(resp.Items)
				if len(rows) == 0 {
					fmt.Fprintln(stdout, "No items archived yet")
					return nil
				}
				fmt.Fprintln(stdout, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")

	return []*cobra.Command{startCmd, stopCmd, statusCmd}
}
