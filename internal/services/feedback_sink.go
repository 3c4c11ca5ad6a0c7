package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/jtarrant/recfuse/pkg/models"
)

// RatingRecorder appends rating events to the log behind the per-user
// activity aggregates.
type RatingRecorder interface {
	RecordRating(ctx context.Context, interaction models.UserInteraction) error
}

// InteractionRecorder mirrors feedback events into the candidate graph.
type InteractionRecorder interface {
	RecordInteraction(ctx context.Context, event models.FeedbackEvent) error
}

// FeedbackSink fans one consumed feedback event out to everything that
// learns from it: the learning buffer, the candidate graph, and, for rate
// events, the rating log that drives weight adaptation. Side-store write
// failures are logged and swallowed; the buffer append always happens, so
// a graph or log outage never stalls incremental updates.
type FeedbackSink struct {
	learning     *LearningBuffer
	interactions InteractionRecorder
	ratings      RatingRecorder
	logger       *logrus.Logger
}

func NewFeedbackSink(
	learning *LearningBuffer,
	interactions InteractionRecorder,
	ratings RatingRecorder,
	logger *logrus.Logger,
) *FeedbackSink {
	return &FeedbackSink{
		learning:     learning,
		interactions: interactions,
		ratings:      ratings,
		logger:       logger,
	}
}

// Handle consumes one feedback event.
func (s *FeedbackSink) Handle(ctx context.Context, event models.FeedbackEvent) {
	s.learning.Append(event)

	if s.interactions != nil {
		if err := s.interactions.RecordInteraction(ctx, event); err != nil {
			s.logger.WithError(err).WithField("user_id", event.UserID).
				Warn("Failed to mirror interaction into graph")
		}
	}

	if s.ratings != nil && event.EventType == models.FeedbackRate && event.Rating != nil {
		interaction := models.UserInteraction{
			UserID:    event.UserID,
			ItemID:    event.ItemID,
			Rating:    event.Rating,
			Timestamp: event.Timestamp,
		}
		if err := s.ratings.RecordRating(ctx, interaction); err != nil {
			s.logger.WithError(err).WithField("user_id", event.UserID).
				Warn("Failed to append rating to event log")
		}
	}
}
