package models

import (
	"time"

	"github.com/dmitrijs2005/fleetzen/internal/api"
)

// QueueStatus is the lifecycle state of a queued submission.
type QueueStatus string

const (
	QueueStatusPending QueueStatus = "pending"
	QueueStatusSyncing QueueStatus = "syncing"
	QueueStatusFailed  QueueStatus = "failed"
)

// QueuedPhoto is a before/after photo travelling with a queued submission.
type QueuedPhoto struct {
	Kind     string `json:"kind"`
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

// QueuedSubmission is one intervention waiting to reach the server. TempID
// is the payload's localId and the server-side idempotency key.
type QueuedSubmission struct {
	Seq        int64
	TempID     string
	Payload    api.InterventionPayload
	Photos     []QueuedPhoto
	CreatedAt  time.Time
	UpdatedAt  time.Time
	RetryCount int
	LastError  string
	Status     QueueStatus
}
