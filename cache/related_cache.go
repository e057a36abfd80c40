package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"driftfm/logger"
	"driftfm/model"

	"github.com/redis/go-redis/v9"
)

// relatedTTL bounds how stale a cached recommendation list can get.
const relatedTTL = 10 * time.Minute

func relatedKey(trackID int64) string {
	return fmt.Sprintf("related:%d", trackID)
}

// SetRelated caches the recommendation list for a track.
func SetRelated(trackID int64, tracks []model.Track) error {
	if RedisClient == nil {
		return nil
	}

	data, err := json.Marshal(tracks)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := RedisClient.Set(ctx, relatedKey(trackID), data, relatedTTL).Err(); err != nil {
		logger.Warn("related cache write failed",
			logger.Int64("trackId", trackID),
			logger.ErrorField(err))
		return err
	}
	return nil
}

// GetRelated returns the cached recommendation list, or nil on a miss.
func GetRelated(trackID int64) ([]model.Track, error) {
	if RedisClient == nil {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := RedisClient.Get(ctx, relatedKey(trackID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		logger.Warn("related cache read failed",
			logger.Int64("trackId", trackID),
			logger.ErrorField(err))
		return nil, nil
	}

	var tracks []model.Track
	if err := json.Unmarshal(data, &tracks); err != nil {
		return nil, nil
	}
	return tracks, nil
}
