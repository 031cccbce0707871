// Package services defines shared utilities consumed by the workflow task
// handlers and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp item IDs, attachment IDs, task kinds, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify failures
//     as retryable or permanent for the retry coordinator.
//
// Use these helpers when wiring new task logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
