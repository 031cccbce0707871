// Package logging assembles the structured slog loggers used across likevault.
//
// It owns the console and JSON handlers, level parsing and output routing, and
// context helpers that tag log lines with item IDs, attachment IDs, task kinds
// and worker names. NewNop returns a discarding logger for tests and for
// wiring code that runs before configuration is loaded.
package logging
