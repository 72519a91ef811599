package store

import "time"

type QueueStatus string

const (
	QueueStatusQueued     QueueStatus = "queued"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusDone       QueueStatus = "done"
	QueueStatusError      QueueStatus = "error"
)

// QueueItem is one requested download. Items are never deleted from the
// persisted list; terminal statuses never change.
type QueueItem struct {
	ID        string      `json:"id"`
	ChatID    int64       `json:"chatId"`
	UserID    int64       `json:"userId"`
	URL       string      `json:"url"`
	Status    QueueStatus `json:"status"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

type RecordStatus string

const (
	RecordStarted          RecordStatus = "started"
	RecordRejectedDuration RecordStatus = "rejected_duration"
	RecordRejectedSize     RecordStatus = "rejected_size"
	RecordSent             RecordStatus = "sent"
	RecordUploadedBlob     RecordStatus = "uploaded_blob"
	RecordError            RecordStatus = "error"
	RecordErrorRetryable   RecordStatus = "error_send_retryable"
	RecordErrorBlobUpload  RecordStatus = "error_blob_upload"
)

// DownloadRecord is an append-only ledger entry. Exactly one terminal
// record exists per processed QueueItem, sharing its ID.
type DownloadRecord struct {
	ID          string       `json:"id"`
	URL         string       `json:"url"`
	ChatID      int64        `json:"chatId"`
	UserID      int64        `json:"userId"`
	Status      RecordStatus `json:"status"`
	DurationSec float64      `json:"durationSec,omitempty"`
	FilePath    string       `json:"filePath,omitempty"`
	FileSize    int64        `json:"fileSize,omitempty"`
	Error       string       `json:"error,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	CompletedAt time.Time    `json:"completedAt,omitempty"`
}

type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

type PayloadKind string

const (
	KindText   PayloadKind = "text"
	KindVideo  PayloadKind = "video"
	KindSystem PayloadKind = "system"
)

type ConversationEntry struct {
	ID        string      `json:"id"`
	ChatID    int64       `json:"chatId"`
	UserID    int64       `json:"userId"`
	MessageID int         `json:"messageId,omitempty"`
	Direction Direction   `json:"direction"`
	Text      string      `json:"text"`
	Kind      PayloadKind `json:"kind"`
	CreatedAt time.Time   `json:"createdAt"`
}

type UserSettings struct {
	ChatID    int64     `json:"chatId"`
	Format    string    `json:"format"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
