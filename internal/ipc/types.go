package ipc

import (
	"time"

	"likevault/internal/daemon"
	"likevault/internal/ingest"
	"likevault/internal/store"
)

// StartRequest resumes background processing.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest pauses background processing.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse is the daemon status snapshot.
type StatusResponse struct {
	daemon.Status
}

// StatsRequest selects a statistics window by name.
type StatsRequest struct {
	Period string `json:"period"`
}

// StatsResponse carries aggregated statistics.
type StatsResponse struct {
	Stats store.Stats `json:"stats"`
}

// FetchRequest triggers an immediate ingestion pass.
type FetchRequest struct{}

// FetchResponse summarizes the pass. Error is set when the pass failed.
type FetchResponse struct {
	Pass  ingest.PassResult `json:"pass"`
	Error string            `json:"error,omitempty"`
}

// ItemsRequest lists archived items, optionally filtered by status.
type ItemsRequest struct {
	Statuses []string `json:"statuses"`
	Limit    int      `json:"limit"`
}

// Item is the wire view of one archived post.
type Item struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Subreddit  string    `json:"subreddit"`
	Status     string    `json:"status"`
	RetryCount int       `json:"retry_count"`
	Error      string    `json:"error,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ItemsResponse lists items, newest last.
type ItemsResponse struct {
	Items []Item `json:"items"`
	Total int    `json:"total"`
}

// TestNotificationRequest asks the daemon to send a test alert.
type TestNotificationRequest struct{}

// TestNotificationResponse reports the test notification outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
