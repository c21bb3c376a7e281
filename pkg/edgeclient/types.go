package edgeclient

import "time"

// Health is the daemon's health reply.
type Health struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Instance string `json:"instance"`
}

// Status reports connectivity and queue state.
type Status struct {
	Online       bool   `json:"online"`
	QueueEnabled bool   `json:"queue_enabled"`
	Pending      int64  `json:"pending"`
	Version      string `json:"version"`
	Instance     string `json:"instance"`
}

// QueueRecord is one pending submission as reported by the daemon.
type QueueRecord struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Method    string    `json:"method"`
	Kind      string    `json:"kind"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// QueueStats summarizes the durable queue.
type QueueStats struct {
	Pending     int64      `json:"pending"`
	Attachments int64      `json:"attachments"`
	OldestAt    *time.Time `json:"oldest_at,omitempty"`
}

// QueueListing is the reply to Queue.
type QueueListing struct {
	Records []QueueRecord `json:"records"`
	Stats   QueueStats    `json:"stats"`
}

// SyncStats is the outcome of a sync pass.
type SyncStats struct {
	Pending int  `json:"pending"`
	Synced  int  `json:"synced"`
	Failed  int  `json:"failed"`
	Skipped bool `json:"skipped"`
}

// CacheStatus reports cache generation and contents.
type CacheStatus struct {
	Generation  string         `json:"generation"`
	Entries     int            `json:"entries"`
	Stale       int            `json:"stale"`
	ByClass     map[string]int `json:"by_class"`
	GeneratedAt time.Time      `json:"generated_at"`
}
