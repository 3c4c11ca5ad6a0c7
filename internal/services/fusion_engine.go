package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/jtarrant/recfuse/internal/adapters"
	"github.com/jtarrant/recfuse/internal/config"
	"github.com/jtarrant/recfuse/pkg/models"
)

// adapterScores holds one adapter's raw scores over the candidate set.
// covered[i] is false when the adapter returned the no-coverage sentinel
// for candidate i; those entries contribute zero after normalization.
type adapterScores struct {
	name    string
	scores  []float64
	covered []bool
	failed  bool
	latency time.Duration
}

// FusionEngine blends per-model predictions into one ranked, explainable
// list. It holds no mutable state across requests beyond the read-only
// adapter references, so requests may run fully in parallel.
type FusionEngine struct {
	adapters  []adapters.ModelAdapter
	diversity *DiversityAdjuster
	metrics   *MetricsCollector
	config    *config.FusionConfig
	logger    *logrus.Logger
}

func NewFusionEngine(
	modelAdapters []adapters.ModelAdapter,
	diversity *DiversityAdjuster,
	metrics *MetricsCollector,
	cfg *config.FusionConfig,
	logger *logrus.Logger,
) *FusionEngine {
	return &FusionEngine{
		adapters:  modelAdapters,
		diversity: diversity,
		metrics:   metrics,
		config:    cfg,
		logger:    logger,
	}
}

// Recommend fuses adapter scores under the given weight vector and returns
// the top N candidates with per-model contribution percentages attached.
// An empty candidate set yields an empty result, never an error.
func (fe *FusionEngine) Recommend(
	ctx context.Context,
	userID uuid.UUID,
	candidates []models.CandidateItem,
	weights models.WeightVector,
	topN int,
) ([]models.Candidate, error) {
	if !weights.IsValid() {
		return nil, fmt.Errorf("%w: %+v", ErrInvalidWeightVector, weights)
	}
	return fe.RecommendModels(ctx, userID, candidates, weights.ModelWeights(), weights.Diversity, topN)
}

// RecommendModels is the general form used when an experiment group pins an
// explicit model set, e.g. routing all traffic through the learned ranker.
// Model weights here are already final; no vector invariant applies beyond
// non-negativity.
func (fe *FusionEngine) RecommendModels(
	ctx context.Context,
	userID uuid.UUID,
	candidates []models.CandidateItem,
	modelWeights map[string]float64,
	diversityWeight float64,
	topN int,
) ([]models.Candidate, error) {
	if len(candidates) == 0 {
		return []models.Candidate{}, nil
	}

	startTime := time.Now()
	results := fe.scoreParallel(ctx, userID, candidates, modelWeights)

	fused := fe.combine(candidates, results, modelWeights)
	fused = fe.diversity.Apply(fused, diversityWeight)

	if topN > 0 && len(fused) > topN {
		fused = fused[:topN]
	}
	for i := range fused {
		fused[i].Position = i + 1
	}

	if fe.metrics != nil {
		fe.metrics.ObserveFusionLatency(time.Since(startTime))
	}

	fe.logger.WithFields(logrus.Fields{
		"user_id":    userID,
		"candidates": len(candidates),
		"returned":   len(fused),
		"latency":    time.Since(startTime),
	}).Debug("Fusion completed")

	return fused, nil
}

// scoreParallel queries every weighted adapter concurrently over the whole
// candidate set. A failing adapter never aborts the request; it simply
// covers nothing.
func (fe *FusionEngine) scoreParallel(
	ctx context.Context,
	userID uuid.UUID,
	candidates []models.CandidateItem,
	modelWeights map[string]float64,
) map[string]*adapterScores {
	timeout := fe.config.ScoreTimeout
	if timeout == 0 {
		timeout = 1500 * time.Millisecond
	}
	scoreCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var wg sync.WaitGroup
	var mu sync.Mutex
	results := make(map[string]*adapterScores)

	for _, adapter := range fe.adapters {
		if modelWeights[adapter.Name()] <= 0 {
			continue
		}

		wg.Add(1)
		go func(adapter adapters.ModelAdapter) {
			defer wg.Done()

			start := time.Now()
			result := &adapterScores{
				name:    adapter.Name(),
				scores:  make([]float64, len(candidates)),
				covered: make([]bool, len(candidates)),
			}

			for i, candidate := range candidates {
				score, err := adapter.Score(scoreCtx, userID, candidate.ItemID)
				if err != nil {
					if !errors.Is(err, adapters.ErrNoCoverage) {
						// Scoring failure degrades to zero contribution
						// for this item; the request carries on.
						fe.logger.WithFields(logrus.Fields{
							"model":   adapter.Name(),
							"user_id": userID,
							"item_id": candidate.ItemID,
							"error":   err,
						}).Warn("Adapter scoring failed")
						result.failed = true
						if fe.metrics != nil {
							fe.metrics.IncAdapterFailure(adapter.Name())
						}
					}
					continue
				}
				result.scores[i] = score
				result.covered[i] = true
			}

			result.latency = time.Since(start)

			mu.Lock()
			results[adapter.Name()] = result
			mu.Unlock()
		}(adapter)
	}

	wg.Wait()
	return results
}

// combine min-max normalizes each model's score distribution across the
// candidate set, then takes the weighted sum. Normalization is computed per
// request so models with different native scales contribute fairly.
func (fe *FusionEngine) combine(
	candidates []models.CandidateItem,
	results map[string]*adapterScores,
	modelWeights map[string]float64,
) []models.Candidate {
	normalized := make(map[string][]float64, len(results))
	for name, result := range results {
		normalized[name] = normalizeScores(result)
	}

	fused := make([]models.Candidate, len(candidates))
	for i, candidate := range candidates {
		modelScores := make(map[string]float64, len(results))
		contribution := make(map[string]float64, len(results))

		finalScore := 0.0
		for name, result := range results {
			if !result.covered[i] {
				continue
			}
			modelScores[name] = result.scores[i]
			finalScore += modelWeights[name] * normalized[name][i]
		}

		if finalScore > 0 {
			for name, result := range results {
				if !result.covered[i] {
					continue
				}
				contribution[name] = modelWeights[name] * normalized[name][i] / finalScore
			}
		}

		fused[i] = models.Candidate{
			ItemID:       candidate.ItemID,
			Attributes:   candidate.Attributes,
			ModelScores:  modelScores,
			FinalScore:   finalScore,
			Contribution: contribution,
		}
	}

	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].FinalScore > fused[j].FinalScore
	})

	return fused
}

// normalizeScores maps one adapter's covered scores into [0,1] via min-max
// scaling. Uncovered entries stay at zero. A degenerate distribution
// (all covered scores equal) normalizes to 1.0.
func normalizeScores(result *adapterScores) []float64 {
	coveredValues := make([]float64, 0, len(result.scores))
	for i, score := range result.scores {
		if result.covered[i] {
			coveredValues = append(coveredValues, score)
		}
	}

	out := make([]float64, len(result.scores))
	if len(coveredValues) == 0 {
		return out
	}

	minScore := floats.Min(coveredValues)
	maxScore := floats.Max(coveredValues)
	scoreRange := maxScore - minScore

	for i, score := range result.scores {
		if !result.covered[i] {
			continue
		}
		if scoreRange == 0 {
			out[i] = 1.0
		} else {
			out[i] = (score - minScore) / scoreRange
		}
	}

	return out
}
