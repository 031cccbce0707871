// Package workflow runs the task pipeline.
//
// Tasks are a closed set of variants (Download, Publish, TextOnly) held in an
// in-process Queue. The Manager starts a fixed pool of workers that pull from
// the queue and dispatch each task to its handler. Handlers consult the disk
// quota guard, wrap network calls in the retry coordinator and record every
// outcome in the store, which stays the only source of truth: a task carries
// identifiers, never entity state.
//
// An item with media is published once, after every attachment has settled.
// The store's publish claim makes that hand-off single-shot even when several
// workers finish attachments of the same item concurrently.
package workflow
