// Package store persists archive state in SQLite.
//
// It records one row per Reddit item, the attachments discovered for it, the
// Telegram messages produced, a single disk-usage counter and append-only
// statistics rows. Status changes are guarded conditional updates so an item
// that reached a terminal status can never be moved again, and the disk
// counter is clamped at zero.
//
// Store is safe for concurrent use; busy errors from concurrent writers are
// retried with a short backoff.
package store
