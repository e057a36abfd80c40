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

// urlCacheMargin is subtracted from the signed URL's lifetime before
// caching so a cached URL can never outlive its signature.
const urlCacheMargin = 60 * time.Second

func streamURLKey(trackID int64, quality model.Quality) string {
	return fmt.Sprintf("streamurl:%d:%s", trackID, quality)
}

// SetStreamURL caches a signed stream URL. URLs whose remaining lifetime
// is inside the safety margin are not cached at all.
func SetStreamURL(trackID int64, quality model.Quality, u model.StreamURL) error {
	if RedisClient == nil {
		return nil
	}
	ttl := time.Duration(u.ExpiresInSeconds)*time.Second - urlCacheMargin
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(u)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := RedisClient.Set(ctx, streamURLKey(trackID, quality), data, ttl).Err(); err != nil {
		logger.Warn("stream URL cache write failed",
			logger.Int64("trackId", trackID),
			logger.ErrorField(err))
		return err
	}
	return nil
}

// GetStreamURL returns a cached signed URL, or nil on a miss. Redis
// failures are logged and reported as misses so the caller falls back to
// signing a fresh URL.
func GetStreamURL(trackID int64, quality model.Quality) (*model.StreamURL, error) {
	if RedisClient == nil {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := RedisClient.Get(ctx, streamURLKey(trackID, quality)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		logger.Warn("stream URL cache read failed",
			logger.Int64("trackId", trackID),
			logger.ErrorField(err))
		return nil, nil
	}

	var u model.StreamURL
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, nil
	}
	return &u, nil
}

// InvalidateTrack drops every cached artifact for a track, e.g. after its
// variants are deleted or re-processed.
func InvalidateTrack(trackID int64) error {
	if RedisClient == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	patterns := []string{
		fmt.Sprintf("streamurl:%d:*", trackID),
		fmt.Sprintf("related:%d", trackID),
	}
	for _, pattern := range patterns {
		keys, err := RedisClient.Keys(ctx, pattern).Result()
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			continue
		}
		if err := RedisClient.Del(ctx, keys...).Err(); err != nil {
			return err
		}
	}
	return nil
}
