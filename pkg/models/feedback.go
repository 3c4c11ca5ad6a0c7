package models

import (
	"time"

	"github.com/google/uuid"
)

// FeedbackEventType classifies a feedback event.
type FeedbackEventType string

const (
	FeedbackView     FeedbackEventType = "view"
	FeedbackClick    FeedbackEventType = "click"
	FeedbackRate     FeedbackEventType = "rate"
	FeedbackPurchase FeedbackEventType = "purchase"
)

// FeedbackEvent is a single piece of user feedback. Events are created by
// the ingestion boundary, consumed exactly once by the learning buffer, and
// never mutated.
type FeedbackEvent struct {
	UserID    uuid.UUID         `json:"user_id" validate:"required"`
	ItemID    uuid.UUID         `json:"item_id" validate:"required"`
	EventType FeedbackEventType `json:"event_type" validate:"required,oneof=view click rate purchase"`
	Rating    *float64          `json:"rating,omitempty" validate:"omitempty,min=0,max=5"`
	Timestamp time.Time         `json:"timestamp"`
}

// UpdateBatch is an ordered run of feedback events bounded by size or age.
// It is handed to adapter update hooks as a unit and never replayed.
type UpdateBatch struct {
	Events       []FeedbackEvent `json:"events"`
	FirstEventAt time.Time       `json:"first_event_at"`
}

// Size returns the number of events in the batch.
func (b *UpdateBatch) Size() int {
	return len(b.Events)
}

// AffectedUsers returns the distinct users whose feedback the batch holds,
// in first-seen order.
func (b *UpdateBatch) AffectedUsers() []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(b.Events))
	users := make([]uuid.UUID, 0, len(b.Events))
	for _, event := range b.Events {
		if !seen[event.UserID] {
			seen[event.UserID] = true
			users = append(users, event.UserID)
		}
	}
	return users
}

// UpdateReport summarizes one completed incremental update cycle.
type UpdateReport struct {
	UpdatedModels  []string      `json:"updated_models"`
	FailedModels   []string      `json:"failed_models"`
	EventsConsumed int           `json:"events_consumed"`
	AffectedUsers  []uuid.UUID   `json:"affected_users"`
	Elapsed        time.Duration `json:"elapsed"`
	TriggeredBy    string        `json:"triggered_by"` // size, age, manual
	CompletedAt    time.Time     `json:"completed_at"`
}

// BufferStats is a point-in-time view of the learning buffer.
type BufferStats struct {
	State          string     `json:"state"`
	PendingEvents  int        `json:"pending_events"`
	Capacity       int        `json:"capacity"`
	TotalConsumed  int64      `json:"total_consumed"`
	UpdateCount    int64      `json:"update_count"`
	LastUpdateTime *time.Time `json:"last_update_time,omitempty"`
}
