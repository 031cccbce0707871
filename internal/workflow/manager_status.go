package workflow

import (
	"time"
)

// StatusSummary is a point-in-time view of the worker pool.
type StatusSummary struct {
	Running     bool         `json:"running"`
	Workers     int          `json:"workers"`
	Active      int64        `json:"active"`
	Processed   int64        `json:"processed"`
	Failed      int64        `json:"failed"`
	QueueLength int          `json:"queue_length"`
	QueueCounts map[Kind]int `json:"queue_counts"`
	StartedAt   time.Time    `json:"started_at,omitempty"`
	LastError   string       `json:"last_error,omitempty"`
}

// Status returns the latest pool information.
func (m *Manager) Status() StatusSummary {
	m.mu.RLock()
	running := m.running
	started := m.startedAt
	lastErr := m.lastErr
	m.mu.RUnlock()

	summary := StatusSummary{
		Running:     running,
		Workers:     m.workers,
		Active:      m.active.Load(),
		Processed:   m.processed.Load(),
		Failed:      m.failed.Load(),
		QueueLength: m.queue.Len(),
		QueueCounts: m.queue.Counts(),
		StartedAt:   started,
	}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	return summary
}
