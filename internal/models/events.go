package models

import "time"

// Event types carried in the eventType header and payload.
const (
	EventBlobCreated            = "storage.blob.created"
	EventTranscriptionCompleted = "transcription.completed"
	EventTranscriptionFailed    = "transcription.failed"
)

// BlobCreated is the notification emitted by the storage trigger when a file
// lands in a monitored container.
type BlobCreated struct {
	EventType string    `json:"eventType"`
	Container string    `json:"container" validate:"required,max=256"`
	Name      string    `json:"name" validate:"required,max=1024"`
	Size      int64     `json:"size" validate:"gte=0"`
	URL       string    `json:"url,omitempty" validate:"omitempty,url"`
	EventTime time.Time `json:"eventTime"`
}

// TranscriptionCompleted is published after a record has been persisted.
type TranscriptionCompleted struct {
	EventType     string    `json:"eventType"`
	JobID         string    `json:"jobId"`
	RecordID      uint      `json:"recordId"`
	Name          string    `json:"name"`
	Sentiment     string    `json:"sentiment"`
	KeyPhraseList []string  `json:"keyPhraseList"`
	ProcessTime   float64   `json:"processTime"`
	Timestamp     time.Time `json:"timestamp"`
}

// TranscriptionFailed is published when a run ends without a record.
type TranscriptionFailed struct {
	EventType string    `json:"eventType"`
	JobID     string    `json:"jobId"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}
