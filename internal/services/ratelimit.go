package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/jtarrant/recfuse/internal/config"
	"github.com/jtarrant/recfuse/pkg/models"
)

// RateLimitService enforces a per-client sliding window over Redis. There
// is no authentication layer, so clients are identified by IP.
type RateLimitService struct {
	config      *config.RateLimitConfig
	logger      *logrus.Logger
	redisClient *redis.Client
}

func NewRateLimitService(cfg *config.RateLimitConfig, logger *logrus.Logger, redisClient *redis.Client) *RateLimitService {
	return &RateLimitService{
		config:      cfg,
		logger:      logger,
		redisClient: redisClient,
	}
}

func (s *RateLimitService) CheckLimit(clientID string) (*models.RateLimitInfo, error) {
	limit := s.config.Requests
	window := s.config.Window

	key := fmt.Sprintf("rate_limit:client:%s", clientID)

	now := time.Now()
	windowStart := now.Add(-window)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Redis pipeline for atomic operations
	pipe := s.redisClient.Pipeline()

	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.Unix(), 10))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.Unix()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	pipe.Expire(ctx, key, window)

	_, err := pipe.Exec(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to execute rate limit pipeline")
		// Permissive when Redis is down; limiting is protection, not policy
		return &models.RateLimitInfo{
			Limit:     limit,
			Remaining: limit - 1,
			ResetTime: now.Add(window).Unix(),
		}, nil
	}

	remaining := limit - int(countCmd.Val())
	if remaining < 0 {
		remaining = 0
	}

	return &models.RateLimitInfo{
		Limit:     limit,
		Remaining: remaining,
		ResetTime: now.Add(window).Unix(),
	}, nil
}

func (s *RateLimitService) IsAllowed(clientID string) (bool, *models.RateLimitInfo, error) {
	info, err := s.CheckLimit(clientID)
	if err != nil {
		return false, nil, err
	}

	return info.Remaining > 0, info, nil
}
