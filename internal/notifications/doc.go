// Package notifications delivers operator alerts.
//
// Service implementations post to an ntfy topic or to the Telegram admin
// chat; NewService combines whichever are configured and falls back to a
// no-op. Sink wraps a Service with a bounded queue drained by one goroutine,
// so alerting never blocks or fails the pipeline: a full queue drops the
// alert and a failed send is only logged.
package notifications
