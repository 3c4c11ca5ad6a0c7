package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/jtarrant/recfuse/pkg/models"
)

// UserStatsProvider supplies the activity snapshot that drives per-user
// weight calculation. Backed by the external event/profile store.
type UserStatsProvider interface {
	GetStats(ctx context.Context, userID uuid.UUID) (*models.UserStatsSnapshot, error)
}

// CandidateProvider supplies the unscored candidate set for a user. The
// fusion core never generates candidates itself.
type CandidateProvider interface {
	GetCandidates(ctx context.Context, userID uuid.UUID, limit int) ([]models.CandidateItem, error)
}

// CacheInvalidator is the outbound signal the learning loop issues after a
// successful update so an external cache layer can evict stale entries.
type CacheInvalidator interface {
	InvalidateUsers(ctx context.Context, userIDs []uuid.UUID) error
}

// FusionEngineInterface defines the hybrid scoring surface the
// recommendation orchestrator drives.
type FusionEngineInterface interface {
	Recommend(ctx context.Context, userID uuid.UUID, candidates []models.CandidateItem,
		weights models.WeightVector, topN int) ([]models.Candidate, error)
	RecommendModels(ctx context.Context, userID uuid.UUID, candidates []models.CandidateItem,
		modelWeights map[string]float64, diversityWeight float64, topN int) ([]models.Candidate, error)
}

// RecommendationProvider is the request-level surface the HTTP layer
// consumes.
type RecommendationProvider interface {
	GetRecommendations(ctx context.Context, req *models.RecommendationRequest) (*models.RecommendationResponse, error)
}

// ExperimentAssigner resolves the experiment configuration a user sees.
type ExperimentAssigner interface {
	Assign(userID uuid.UUID, experimentID string) (*models.GroupAssignment, error)
}
