package main

import (
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"likevault/internal/adminbot"
	"likevault/internal/ipc"
	"likevault/internal/store"
)

func newStatsCommand(ctx *commandContext) *cobra.Command {
	var period string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show delivery statistics",
		Long:  "Show delivery statistics for one period (today, week, month, all) or every period side by side.",
		RunE: func(cmd *cobra.Command, args []string) error {
			periods := store.Periods()
			if period != "" {
				parsed, err := store.ParsePeriod(period)
				if err != nil {
					return err
				}
				periods = []store.Period{parsed}
			}

			return ctx.withClient(func(client *ipc.Client) error {
				results := make([]store.Stats, 0, len(periods))
				for _, p := range periods {
					resp, err := client.Stats(string(p))
					if err != nil {
						return err
					}
					results = append(results, resp.Stats)
				}
				if asJSON {
					if len(results) == 1 {
						return writeJSON(cmd, results[0])
					}
					return writeJSON(cmd, results)
				}
				_, err := cmd.OutOrStdout().Write([]byte(renderStatsTable(results) + "\n"))
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&period, "period", "p", "", "Statistics period (today, week, month, all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

type statsMetric struct {
	label  string
	format func(store.Stats) string
}

var statsMetrics = []statsMetric{
	{"Posts delivered", func(s store.Stats) string { return humanize.Comma(s.PostsDelivered) }},
	{"Files delivered", func(s store.Stats) string { return humanize.Comma(s.FilesDelivered) }},
	{"Bytes delivered", func(s store.Stats) string { return humanize.IBytes(uint64(max(s.BytesDelivered, 0))) }},
	{"Posts failed", func(s store.Stats) string { return humanize.Comma(s.PostsFailed) }},
	{"Posts skipped", func(s store.Stats) string { return humanize.Comma(s.PostsSkipped) }},
	{"Posts seen", func(s store.Stats) string { return humanize.Comma(s.PostsSeen) }},
	{"Tasks enqueued", func(s store.Stats) string { return humanize.Comma(s.TasksEnqueued) }},
}

// renderStatsTable lays metrics out as rows with one column per period.
func renderStatsTable(results []store.Stats) string {
	headers := make([]string, 0, len(results)+1)
	aligns := make([]columnAlignment, 0, len(results)+1)
	headers = append(headers, "Metric")
	aligns = append(aligns, alignLeft)
	for _, s := range results {
		headers = append(headers, adminbot.PeriodLabel(s.Period))
		aligns = append(aligns, alignRight)
	}

	rows := make([][]string, 0, len(statsMetrics))
	for _, metric := range statsMetrics {
		row := make([]string, 0, len(results)+1)
		row = append(row, metric.label)
		for _, s := range results {
			row = append(row, metric.format(s))
		}
		rows = append(rows, row)
	}

	return tableSpec{Title: "Delivery statistics", Headers: headers, Rows: rows, Aligns: aligns}.render()
}
