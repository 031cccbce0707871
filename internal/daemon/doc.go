// Package daemon coordinates the long-running likevault process.
//
// It owns the single-instance flock, resumes unfinished items, and starts
// and stops the worker pool, the ingestion schedule, the admin command
// listener and the HTTP status API as one lifecycle. Status and statistics
// queries used by the CLI, the admin bot and the HTTP API are answered here.
//
// Keep orchestration logic here: task handling lives in workflow and
// ingestion in ingest.
package daemon
