package model

import "time"

// Track processing status values.
const (
	TrackStatusProcessing = "processing"
	TrackStatusCompleted  = "completed"
	TrackStatusFailed     = "failed"
)

// Track represents an audio track in the music catalog.
type Track struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Artist     string    `json:"artist"`
	Album      string    `json:"album"`
	Genre      string    `json:"genre"`
	SourceKey  string    `json:"-"`          // Object storage key of the original upload, not exposed in API
	CoverURL   string    `json:"coverUrl"`
	Duration   float32   `json:"duration"`   // Duration in seconds
	SampleRate int       `json:"sampleRate"`
	Loudness   float64   `json:"loudness"`   // Integrated loudness of the source, LUFS
	Status     string    `json:"status"`     // processing, completed, failed
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// StreamURL is a time-limited signed URL granting read access to one
// storage object. It is a capability token, not an identity.
type StreamURL struct {
	URL              string `json:"url"`
	ExpiresInSeconds int    `json:"expiresInSeconds"`
}
