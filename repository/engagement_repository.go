package repository

import (
	"context"
	"errors"

	"driftfm/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EngagementRepository covers play history and likes.
type EngagementRepository interface {
	RecordPlay(ctx context.Context, trackID int64, listenerID string) error
	PlayCount(ctx context.Context, trackID int64) (int64, error)
	RecentPlays(ctx context.Context, listenerID string, limit int) ([]*model.PlayEvent, error)

	// Like and Unlike are idempotent: liking twice or unliking a track
	// that was never liked is not an error.
	Like(ctx context.Context, trackID int64, listenerID string) error
	Unlike(ctx context.Context, trackID int64, listenerID string) error
	IsLiked(ctx context.Context, trackID int64, listenerID string) (bool, error)
	LikedTracks(ctx context.Context, listenerID string) ([]int64, error)
}

// gormEngagementRepository is the GORM implementation.
type gormEngagementRepository struct {
	db *gorm.DB
}

// NewGormEngagementRepository creates a GORM engagement repository.
func NewGormEngagementRepository(db *gorm.DB) EngagementRepository {
	return &gormEngagementRepository{db: db}
}

func (r *gormEngagementRepository) RecordPlay(ctx context.Context, trackID int64, listenerID string) error {
	event := &model.PlayEvent{TrackID: trackID, ListenerID: listenerID}
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *gormEngagementRepository) PlayCount(ctx context.Context, trackID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.PlayEvent{}).
		Where("track_id = ?", trackID).
		Count(&count).Error
	return count, err
}

func (r *gormEngagementRepository) RecentPlays(ctx context.Context, listenerID string, limit int) ([]*model.PlayEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []*model.PlayEvent
	err := r.db.WithContext(ctx).
		Where("listener_id = ?", listenerID).
		Order("played_at DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *gormEngagementRepository) Like(ctx context.Context, trackID int64, listenerID string) error {
	like := &model.Like{TrackID: trackID, ListenerID: listenerID}
	// The unique index on (track_id, listener_id) makes a repeat like a
	// conflict; do nothing instead of failing.
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(like).Error
}

func (r *gormEngagementRepository) Unlike(ctx context.Context, trackID int64, listenerID string) error {
	return r.db.WithContext(ctx).
		Where("track_id = ? AND listener_id = ?", trackID, listenerID).
		Delete(&model.Like{}).Error
}

func (r *gormEngagementRepository) IsLiked(ctx context.Context, trackID int64, listenerID string) (bool, error) {
	var like model.Like
	err := r.db.WithContext(ctx).
		Where("track_id = ? AND listener_id = ?", trackID, listenerID).
		First(&like).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *gormEngagementRepository) LikedTracks(ctx context.Context, listenerID string) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&model.Like{}).
		Where("listener_id = ?", listenerID).
		Order("created_at DESC").
		Pluck("track_id", &ids).Error
	return ids, err
}
