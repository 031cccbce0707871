package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"likevault/internal/ipc"
)

func newFetchCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Run an ingestion pass now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Fetch()
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				if resp.Error != "" {
					return fmt.Errorf("fetch failed: %s", resp.Error)
				}
				pass := resp.Pass
				fmt.Fprintf(cmd.OutOrStdout(),
					"Fetched %d posts: %d new, %d already seen, %d removed upstream; %d tasks enqueued (%s)\n",
					pass.Fetched, pass.New, pass.Seen, pass.Deleted, pass.Enqueued, pass.Duration.Round(time.Millisecond))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
