package main

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"likevault/internal/ipc"
)

const itemTitleWidth = 48

func newItemsCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "items",
		Short: "List archived posts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Items(statuses, limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}

				stdout := cmd.OutOrStdout()
				if len(resp.Items) == 0 {
					fmt.Fprintln(stdout, "No items found")
					return nil
				}
				fmt.Fprintln(stdout, renderItemsTable(resp))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Show at most this many of the most recent items (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func renderItemsTable(resp *ipc.ItemsResponse) string {
	rows := make([][]string, 0, len(resp.Items))
	for _, item := range resp.Items {
		status := item.Status
		if item.Error != "" {
			status += " (" + truncate(item.Error, 32) + ")"
		}
		subreddit := ""
		if item.Subreddit != "" {
			subreddit = "r/" + item.Subreddit
		}
		rows = append(rows, []string{
			item.ID,
			subreddit,
			truncate(item.Title, itemTitleWidth),
			status,
			humanize.Comma(int64(item.RetryCount)),
			humanize.Time(item.UpdatedAt),
		})
	}
	layout := tableSpec{
		Headers: []string{"ID", "Subreddit", "Title", "Status", "Retries", "Updated"},
		Rows:    rows,
		Aligns:  []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	}
	if resp.Total > len(resp.Items) {
		layout.Footer = []string{fmt.Sprintf("%d of %d", len(resp.Items), resp.Total)}
	}
	return layout.render()
}

func truncate(value string, width int) string {
	value = strings.TrimSpace(value)
	if utf8.RuneCountInString(value) <= width {
		return value
	}
	runes := []rune(value)
	return string(runes[:width-1]) + "…"
}
