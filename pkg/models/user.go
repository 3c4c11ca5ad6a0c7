package models

import (
	"time"

	"github.com/google/uuid"
)

// UserStatsSnapshot is a read-only view of a user's rating activity,
// sourced from the external event store. It is the only input to weight
// calculation.
type UserStatsSnapshot struct {
	UserID         uuid.UUID `json:"user_id" db:"user_id"`
	RatingCount    int       `json:"rating_count" db:"rating_count"`
	AvgRating      float64   `json:"avg_rating" db:"avg_rating"`
	RatingVariance float64   `json:"rating_variance" db:"rating_variance"`
}

// UserInteraction is a single recorded interaction, as stored by the
// external event log.
type UserInteraction struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	ItemID    uuid.UUID `json:"item_id" db:"item_id"`
	Rating    *float64  `json:"rating,omitempty" db:"rating"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}
