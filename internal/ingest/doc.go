// Package ingest polls the content source on a cron schedule and feeds new
// posts into the pipeline.
//
// A pass is idempotent: posts already in the store are counted as seen and
// produce no work. New posts are inserted at status fetched along with one
// pending attachment per media file, then queued as Download tasks, or as a
// single TextOnly task when there is no media. A failing pass is logged and
// alerted; the schedule keeps running.
package ingest
