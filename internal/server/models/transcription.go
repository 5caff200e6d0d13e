package models

import "time"

// TranscriptionStatus is the state of a transcription attempt.
type TranscriptionStatus string

const (
	StatusProcessing TranscriptionStatus = "processing"
	StatusCompleted  TranscriptionStatus = "completed"
	StatusError      TranscriptionStatus = "error"
)

// Terminal reports whether no further automatic transition happens.
func (s TranscriptionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Transcription is the latest transcription attempt of a file.
type Transcription struct {
	ID        string              `json:"id"`
	FileID    string              `json:"file_id"`
	Content   string              `json:"content"`
	Status    TranscriptionStatus `json:"status"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}
