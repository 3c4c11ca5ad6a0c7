package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtarrant/recfuse/internal/adapters"
	"github.com/jtarrant/recfuse/internal/config"
	"github.com/jtarrant/recfuse/pkg/models"
)

type stubStats struct {
	snapshot *models.UserStatsSnapshot
	err      error
}

func (s *stubStats) GetStats(_ context.Context, userID uuid.UUID) (*models.UserStatsSnapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	snapshot := *s.snapshot
	snapshot.UserID = userID
	return &snapshot, nil
}

type stubCandidates struct {
	items []models.CandidateItem
	err   error
}

func (s *stubCandidates) GetCandidates(_ context.Context, _ uuid.UUID, _ int) ([]models.CandidateItem, error) {
	return s.items, s.err
}

type stubAssigner struct {
	assignment *models.GroupAssignment
	err        error
}

func (s *stubAssigner) Assign(_ uuid.UUID, _ string) (*models.GroupAssignment, error) {
	return s.assignment, s.err
}

func testRecommendationService(
	stats UserStatsProvider,
	candidates CandidateProvider,
	assigner ExperimentAssigner,
	modelAdapters ...adapters.ModelAdapter,
) *RecommendationService {
	logger := testLogger()
	cfg := &config.FusionConfig{
		DefaultCount:      5,
		CandidatePoolSize: 20,
		ScoreTimeout:      time.Second,
	}
	return NewRecommendationService(
		NewWeightCalculator(testWeightsConfig(), logger),
		NewFusionEngine(modelAdapters, NewDiversityAdjuster(logger), nil, cfg, logger),
		stats,
		candidates,
		assigner,
		NewRecommendationCache(nil, time.Minute, logger),
		nil,
		cfg,
		logger,
	)
}

func threeCandidates() ([]models.CandidateItem, map[uuid.UUID]float64) {
	items := make([]models.CandidateItem, 3)
	scores := make(map[uuid.UUID]float64)
	for i := range items {
		items[i] = models.CandidateItem{ItemID: uuid.New()}
		scores[items[i].ItemID] = float64(i + 1)
	}
	return items, scores
}

func TestRecommendationService_ComputedWeightsPath(t *testing.T) {
	items, scores := threeCandidates()
	rs := testRecommendationService(
		&stubStats{snapshot: &models.UserStatsSnapshot{RatingCount: 50, AvgRating: 3.5}},
		&stubCandidates{items: items},
		&stubAssigner{},
		&stubAdapter{name: models.ModelCollaborative, scores: scores},
	)

	userID := uuid.New()
	resp, err := rs.GetRecommendations(context.Background(), &models.RecommendationRequest{
		UserID: userID, Count: 2,
	})
	require.NoError(t, err)

	assert.Equal(t, userID, resp.UserID)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, items[2].ItemID, resp.Items[0].ItemID)
	assert.Equal(t, 1, resp.Items[0].Position)
	assert.Empty(t, resp.Experiment)
	assert.False(t, resp.CacheHit)

	// Moderate activity leaves the baseline vector untouched.
	assert.InDelta(t, 0.4, resp.Weights.Collaborative, 1e-9)
	assert.True(t, resp.Weights.IsValid())
}

func TestRecommendationService_StatsOutageFallsBackToBaseline(t *testing.T) {
	items, scores := threeCandidates()
	rs := testRecommendationService(
		&stubStats{err: errors.New("event store down")},
		&stubCandidates{items: items},
		&stubAssigner{},
		&stubAdapter{name: models.ModelContent, scores: scores},
	)

	resp, err := rs.GetRecommendations(context.Background(), &models.RecommendationRequest{
		UserID: uuid.New(),
	})
	require.NoError(t, err)
	assert.Equal(t, rs.weights.Baseline(), resp.Weights)
	assert.Len(t, resp.Items, 3)
}

func TestRecommendationService_ExperimentWeightOverrideWins(t *testing.T) {
	items, scores := threeCandidates()
	pinned := models.WeightVector{Collaborative: 0.8, Content: 0.1, Popularity: 0.05, Diversity: 0.05}
	rs := testRecommendationService(
		&stubStats{snapshot: &models.UserStatsSnapshot{RatingCount: 2}},
		&stubCandidates{items: items},
		&stubAssigner{assignment: &models.GroupAssignment{
			ExperimentID: "heavy_collab",
			Group:        "treatment",
			Override:     &models.GroupOverride{Weights: &pinned},
		}},
		&stubAdapter{name: models.ModelCollaborative, scores: scores},
	)

	resp, err := rs.GetRecommendations(context.Background(), &models.RecommendationRequest{
		UserID: uuid.New(), ExperimentID: "heavy_collab",
	})
	require.NoError(t, err)

	// The pinned vector is used verbatim; the cold-user snapshot never
	// shifts it.
	assert.Equal(t, pinned, resp.Weights)
	assert.Equal(t, "heavy_collab", resp.Experiment)
	assert.Equal(t, "treatment", resp.Group)
}

func TestRecommendationService_PinnedModelSet(t *testing.T) {
	items, scores := threeCandidates()
	collab := &stubAdapter{name: models.ModelCollaborative, scores: scores}

	// The popularity adapter inverts the ordering; pinning it proves the
	// collaborative model was excluded from fusion.
	popScores := make(map[uuid.UUID]float64, len(items))
	for i, item := range items {
		popScores[item.ItemID] = float64(len(items) - i)
	}
	pop := &stubAdapter{name: models.ModelPopularity, scores: popScores}

	rs := testRecommendationService(
		&stubStats{snapshot: &models.UserStatsSnapshot{RatingCount: 50, AvgRating: 3.5}},
		&stubCandidates{items: items},
		&stubAssigner{assignment: &models.GroupAssignment{
			ExperimentID: "popularity_only",
			Group:        "treatment",
			Override:     &models.GroupOverride{Models: []string{models.ModelPopularity}},
		}},
		collab, pop,
	)

	resp, err := rs.GetRecommendations(context.Background(), &models.RecommendationRequest{
		UserID: uuid.New(), ExperimentID: "popularity_only",
	})
	require.NoError(t, err)
	require.Len(t, resp.Items, 3)
	assert.Equal(t, items[0].ItemID, resp.Items[0].ItemID)
	assert.NotContains(t, resp.Items[0].Contribution, models.ModelCollaborative)
}

func TestRecommendationService_UnknownExperimentFails(t *testing.T) {
	rs := testRecommendationService(
		&stubStats{snapshot: &models.UserStatsSnapshot{}},
		&stubCandidates{},
		&stubAssigner{err: ErrUnknownExperiment},
		&stubAdapter{name: models.ModelCollaborative},
	)

	_, err := rs.GetRecommendations(context.Background(), &models.RecommendationRequest{
		UserID: uuid.New(), ExperimentID: "never_defined",
	})
	assert.ErrorIs(t, err, ErrUnknownExperiment)
}

func TestRecommendationService_CandidateRetrievalFailure(t *testing.T) {
	rs := testRecommendationService(
		&stubStats{snapshot: &models.UserStatsSnapshot{}},
		&stubCandidates{err: errors.New("graph unavailable")},
		&stubAssigner{},
		&stubAdapter{name: models.ModelCollaborative},
	)

	_, err := rs.GetRecommendations(context.Background(), &models.RecommendationRequest{
		UserID: uuid.New(),
	})
	assert.Error(t, err)
}
