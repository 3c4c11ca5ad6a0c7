package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/jtarrant/recfuse/pkg/models"
)

// RecommendationCache stores ranked recommendation lists in Redis, keyed
// per user. It implements CacheInvalidator: after a successful model
// update the learning loop signals the affected users and their cached
// lists are dropped so the next request reflects the updated models.
//
// A nil Redis client disables caching; all operations become no-ops.
type RecommendationCache struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

func NewRecommendationCache(redisClient *redis.Client, ttl time.Duration, logger *logrus.Logger) *RecommendationCache {
	return &RecommendationCache{
		redis:  redisClient,
		ttl:    ttl,
		logger: logger,
	}
}

func recommendationCacheKey(userID uuid.UUID) string {
	return fmt.Sprintf("recommendations:user:%s", userID)
}

// Get returns the cached response for a user, or nil on a miss.
func (rc *RecommendationCache) Get(ctx context.Context, userID uuid.UUID) (*models.RecommendationResponse, error) {
	if rc.redis == nil {
		return nil, nil
	}

	data, err := rc.redis.Get(ctx, recommendationCacheKey(userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache read failed: %w", err)
	}

	var response models.RecommendationResponse
	if err := json.Unmarshal([]byte(data), &response); err != nil {
		// A corrupt entry is treated as a miss and overwritten on the
		// next Set.
		rc.logger.WithError(err).Warn("Dropping unreadable cached recommendations")
		return nil, nil
	}

	response.CacheHit = true
	return &response, nil
}

// Set stores a response under the configured TTL.
func (rc *RecommendationCache) Set(ctx context.Context, userID uuid.UUID, response *models.RecommendationResponse) error {
	if rc.redis == nil {
		return nil
	}

	data, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}

	if err := rc.redis.Set(ctx, recommendationCacheKey(userID), data, rc.ttl).Err(); err != nil {
		return fmt.Errorf("cache write failed: %w", err)
	}

	return nil
}

// InvalidateUsers drops the cached lists for the given users.
func (rc *RecommendationCache) InvalidateUsers(ctx context.Context, userIDs []uuid.UUID) error {
	if rc.redis == nil || len(userIDs) == 0 {
		return nil
	}

	keys := make([]string, len(userIDs))
	for i, userID := range userIDs {
		keys[i] = recommendationCacheKey(userID)
	}

	if err := rc.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache invalidation failed: %w", err)
	}

	rc.logger.WithField("users", len(userIDs)).Debug("Invalidated cached recommendations")
	return nil
}
