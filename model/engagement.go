package model

import "time"

// PlayEvent records one playback start for play-history purposes.
// Persisted through GORM.
type PlayEvent struct {
	ID         int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	TrackID    int64     `json:"trackId" gorm:"index;not null"`
	ListenerID string    `json:"listenerId" gorm:"size:64;index"`
	PlayedAt   time.Time `json:"playedAt" gorm:"autoCreateTime"`
}

// TableName maps PlayEvent to the play_events table.
func (PlayEvent) TableName() string { return "play_events" }

// Like marks a track as liked by a listener. Persisted through GORM.
type Like struct {
	ID         int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	TrackID    int64     `json:"trackId" gorm:"uniqueIndex:idx_like_track_listener;not null"`
	ListenerID string    `json:"listenerId" gorm:"size:64;uniqueIndex:idx_like_track_listener;not null"`
	CreatedAt  time.Time `json:"createdAt" gorm:"autoCreateTime"`
}

// TableName maps Like to the likes table.
func (Like) TableName() string { return "likes" }
