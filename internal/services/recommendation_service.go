package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jtarrant/recfuse/internal/config"
	"github.com/jtarrant/recfuse/pkg/models"
)

// RecommendationService is the request-level orchestrator: it resolves the
// experiment group, computes or overrides the weight vector, pulls
// candidates, runs fusion, and fronts the whole thing with the per-user
// cache.
type RecommendationService struct {
	weights     *WeightCalculator
	fusion      FusionEngineInterface
	stats       UserStatsProvider
	candidates  CandidateProvider
	experiments ExperimentAssigner
	cache       *RecommendationCache
	metrics     *MetricsCollector
	config      *config.FusionConfig
	logger      *logrus.Logger
}

func NewRecommendationService(
	weights *WeightCalculator,
	fusion FusionEngineInterface,
	stats UserStatsProvider,
	candidates CandidateProvider,
	experiments ExperimentAssigner,
	cache *RecommendationCache,
	metrics *MetricsCollector,
	cfg *config.FusionConfig,
	logger *logrus.Logger,
) *RecommendationService {
	return &RecommendationService{
		weights:     weights,
		fusion:      fusion,
		stats:       stats,
		candidates:  candidates,
		experiments: experiments,
		cache:       cache,
		metrics:     metrics,
		config:      cfg,
		logger:      logger,
	}
}

// GetRecommendations serves one recommendation request end to end.
func (rs *RecommendationService) GetRecommendations(
	ctx context.Context,
	req *models.RecommendationRequest,
) (*models.RecommendationResponse, error) {
	count := req.Count
	if count <= 0 {
		count = rs.config.DefaultCount
	}

	// Experiment assignment happens before the cache lookup so an unknown
	// experiment id fails loudly instead of serving a stale default list.
	var assignment *models.GroupAssignment
	if req.ExperimentID != "" {
		var err error
		assignment, err = rs.experiments.Assign(req.UserID, req.ExperimentID)
		if err != nil {
			return nil, err
		}
	}

	group := models.DefaultGroup
	if assignment != nil {
		group = assignment.Group
	}
	if rs.metrics != nil {
		rs.metrics.RecordRequest(group)
	}

	if cached, err := rs.cache.Get(ctx, req.UserID); err == nil && cached != nil {
		if len(cached.Items) >= count && cached.Group == group {
			if rs.metrics != nil {
				rs.metrics.RecordCacheHit(true)
			}
			cached.Items = cached.Items[:count]
			return cached, nil
		}
	}
	if rs.metrics != nil {
		rs.metrics.RecordCacheHit(false)
	}

	weights, err := rs.resolveWeights(ctx, req, assignment)
	if err != nil {
		return nil, err
	}

	poolSize := rs.config.CandidatePoolSize
	if poolSize < count {
		poolSize = count
	}
	candidates, err := rs.candidates.GetCandidates(ctx, req.UserID, poolSize)
	if err != nil {
		return nil, fmt.Errorf("candidate retrieval failed: %w", err)
	}

	items, err := rs.fuse(ctx, req, assignment, candidates, weights, count)
	if err != nil {
		return nil, err
	}

	response := &models.RecommendationResponse{
		UserID:      req.UserID,
		Items:       items,
		Weights:     weights,
		GeneratedAt: time.Now(),
	}
	if assignment != nil {
		response.Experiment = assignment.ExperimentID
		response.Group = assignment.Group
	}

	if err := rs.cache.Set(ctx, req.UserID, response); err != nil {
		rs.logger.WithError(err).Warn("Failed to cache recommendations")
	}

	return response, nil
}

// resolveWeights applies the precedence: an experiment group's pinned
// weight vector wins; otherwise weights are computed from the user's
// activity snapshot; a stats outage degrades to the baseline vector.
func (rs *RecommendationService) resolveWeights(
	ctx context.Context,
	req *models.RecommendationRequest,
	assignment *models.GroupAssignment,
) (models.WeightVector, error) {
	if assignment != nil && assignment.Override != nil && assignment.Override.Weights != nil {
		return *assignment.Override.Weights, nil
	}

	stats, err := rs.stats.GetStats(ctx, req.UserID)
	if err != nil {
		rs.logger.WithFields(logrus.Fields{
			"user_id": req.UserID,
			"error":   err,
		}).Warn("User stats unavailable; using baseline weights")
		return rs.weights.Baseline(), nil
	}

	return rs.weights.ComputeWeights(stats)
}

// fuse routes through the pinned model set when the experiment group
// restricts one, splitting the non-diversity weight mass evenly across the
// named models.
func (rs *RecommendationService) fuse(
	ctx context.Context,
	req *models.RecommendationRequest,
	assignment *models.GroupAssignment,
	candidates []models.CandidateItem,
	weights models.WeightVector,
	count int,
) ([]models.Candidate, error) {
	if assignment != nil && assignment.Override != nil && len(assignment.Override.Models) > 0 {
		modelWeights := make(map[string]float64, len(assignment.Override.Models))
		share := (1.0 - weights.Diversity) / float64(len(assignment.Override.Models))
		for _, model := range assignment.Override.Models {
			modelWeights[model] = share
		}
		return rs.fusion.RecommendModels(ctx, req.UserID, candidates, modelWeights, weights.Diversity, count)
	}

	return rs.fusion.Recommend(ctx, req.UserID, candidates, weights, count)
}
