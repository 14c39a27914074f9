package domain

import "encoding/json"

// MutationType distinguishes queued offline writes.
type MutationType string

const (
	MutationAddToLibrary      MutationType = "add_to_library"
	MutationUpdateStatus      MutationType = "update_status"
	MutationUpdateProgress    MutationType = "update_progress"
	MutationRemoveFromLibrary MutationType = "remove_from_library"
	MutationRecordHistory     MutationType = "record_history"
)

// OfflineMutation is one pending write queued while offline. Payload is the
// JSON encoding of the matching *Payload struct below.
type OfflineMutation struct {
	Type     MutationType    `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	QueuedAt int64           `json:"queuedAt"`
}

// AddPayload is the payload for MutationAddToLibrary.
type AddPayload struct {
	Entry LibraryEntry `json:"entry"`
}

// StatusPayload is the payload for MutationUpdateStatus.
type StatusPayload struct {
	Key    string        `json:"key"`
	Status ReadingStatus `json:"status"`
}

// ProgressPayload is the payload for MutationUpdateProgress.
type ProgressPayload struct {
	Key           string `json:"key"`
	ChapterLabel  string `json:"chapterLabel"`
	ChapterID     string `json:"chapterId"`
	Page          int    `json:"page"`
	PageTotal     int    `json:"pageTotal"`
	TotalChapters int    `json:"totalChapters"`
}

// RemovePayload is the payload for MutationRemoveFromLibrary.
type RemovePayload struct {
	Key string `json:"key"`
}

// HistoryPayload is the payload for MutationRecordHistory.
type HistoryPayload struct {
	Record HistoryRecord `json:"record"`
}
