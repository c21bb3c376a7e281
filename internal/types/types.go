package types

import (
	"time"
)

// RecordKind distinguishes queue record shapes that need different replay logic.
type RecordKind string

const (
	// KindForm is a plain form submission replayed as multipart form data.
	KindForm RecordKind = "form"
	// KindCitizenData is a citizen-data submission replayed as urlencoded form data.
	KindCitizenData RecordKind = "citizen-data"
	// KindRequestWithAttachments carries file parts (photos, documents) that are
	// reattached from AttachmentRecords at replay time.
	KindRequestWithAttachments RecordKind = "request-with-attachments"
)

// Field is a single form field. Fields keep their submission order, which is
// why the payload is a slice rather than a map.
type Field struct {
	Name  string `json:"name" msgpack:"name"`
	Value string `json:"value" msgpack:"value"`
}

// QueueRecord is a pending submission awaiting delivery to the upstream
// portal. Once created a record is immutable except for the synced
// transition; on confirmed delivery it is deleted rather than flagged.
type QueueRecord struct {
	ID        string     `json:"id"`
	URL       string     `json:"url"`
	Method    string     `json:"method"`
	Kind      RecordKind `json:"kind"`
	Fields    []Field    `json:"fields"`
	Synced    bool       `json:"synced"`
	Attempts  int        `json:"attempts"`
	LastError string     `json:"last_error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Attachment is a binary part (photo, document) owned by exactly one
// QueueRecord via ParentID. It stores content, never a reference to a
// transient in-memory object, and is deleted with its parent.
type Attachment struct {
	ID          string `json:"id"`
	ParentID    string `json:"parent_id"`
	Field       string `json:"field"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
}

// QueueStats summarizes the durable queue for status endpoints and the CLI.
type QueueStats struct {
	Pending     int64      `json:"pending"`
	Attachments int64      `json:"attachments"`
	OldestAt    *time.Time `json:"oldest_at,omitempty"`
}

// SyncStats reports the outcome of a single sync pass.
type SyncStats struct {
	Pending  int           `json:"pending"`
	Synced   int           `json:"synced"`
	Failed   int           `json:"failed"`
	Skipped  bool          `json:"skipped"`
	Duration time.Duration `json:"-"`
}

// HealthResponse is returned by GET /api/v1/health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Instance string `json:"instance"`
}

// StatusResponse is returned by GET /api/v1/status.
type StatusResponse struct {
	Online       bool   `json:"online"`
	QueueEnabled bool   `json:"queue_enabled"`
	Pending      int64  `json:"pending"`
	Version      string `json:"version"`
	Instance     string `json:"instance"`
}

// SubmissionResponse is returned to a caller whose submission was queued
// instead of delivered. Offline distinguishes "queued" from a real upstream
// acknowledgment so the UI can tell the user the data is pending.
type SubmissionResponse struct {
	Success bool   `json:"success"`
	Offline bool   `json:"offline"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
}

// CacheStatus summarizes cache contents, the reply to GET_CACHE_STATUS.
type CacheStatus struct {
	Generation  string         `json:"generation"`
	Entries     int            `json:"entries"`
	Stale       int            `json:"stale"`
	ByClass     map[string]int `json:"by_class"`
	GeneratedAt time.Time      `json:"generated_at"`
}
