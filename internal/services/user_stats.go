package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/jtarrant/recfuse/pkg/models"
)

const userStatsCacheTTL = 5 * time.Minute

// DatabaseQuerier interface for database operations
type DatabaseQuerier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// UserStatsStore reads per-user rating aggregates from PostgreSQL, with a
// short Redis cache in front. A user with no recorded ratings gets a zero
// snapshot, which the weight calculator treats as a cold user.
type UserStatsStore struct {
	db     DatabaseQuerier
	redis  *redis.Client
	logger *logrus.Logger
}

func NewUserStatsStore(db DatabaseQuerier, redisClient *redis.Client, logger *logrus.Logger) *UserStatsStore {
	return &UserStatsStore{
		db:     db,
		redis:  redisClient,
		logger: logger,
	}
}

func (s *UserStatsStore) GetStats(ctx context.Context, userID uuid.UUID) (*models.UserStatsSnapshot, error) {
	cacheKey := fmt.Sprintf("user_stats:%s", userID)

	if s.redis != nil {
		if data, err := s.redis.Get(ctx, cacheKey).Result(); err == nil {
			var cached models.UserStatsSnapshot
			if err := json.Unmarshal([]byte(data), &cached); err == nil {
				return &cached, nil
			}
		}
	}

	query := `
		SELECT
			COUNT(*) as rating_count,
			COALESCE(AVG(rating), 0) as avg_rating,
			COALESCE(VAR_POP(rating), 0) as rating_variance
		FROM user_ratings
		WHERE user_id = $1
	`

	stats := &models.UserStatsSnapshot{UserID: userID}
	err := s.db.QueryRow(ctx, query, userID).Scan(
		&stats.RatingCount,
		&stats.AvgRating,
		&stats.RatingVariance,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query user stats: %w", err)
	}

	if s.redis != nil {
		if data, err := json.Marshal(stats); err == nil {
			if err := s.redis.Set(ctx, cacheKey, data, userStatsCacheTTL).Err(); err != nil {
				s.logger.WithError(err).Debug("Failed to cache user stats")
			}
		}
	}

	return stats, nil
}

// RecordRating appends one rating interaction to the event log. The
// aggregate view catches up when the cached snapshot expires.
func (s *UserStatsStore) RecordRating(ctx context.Context, interaction models.UserInteraction) error {
	if interaction.Rating == nil {
		return fmt.Errorf("interaction for user %s carries no rating", interaction.UserID)
	}
	if interaction.ID == uuid.Nil {
		interaction.ID = uuid.New()
	}
	if interaction.Timestamp.IsZero() {
		interaction.Timestamp = time.Now()
	}

	query := `
		INSERT INTO user_ratings (id, user_id, item_id, rating, timestamp)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.db.Exec(ctx, query,
		interaction.ID, interaction.UserID, interaction.ItemID,
		*interaction.Rating, interaction.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to record rating: %w", err)
	}

	return nil
}
