package services

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/jtarrant/recfuse/internal/config"
	"github.com/jtarrant/recfuse/pkg/models"
)

// adjustmentRule is one declarative entry in the ordered rule list applied
// on top of the baseline weight vector. Rules are evaluated in definition
// order; every rule whose condition holds applies its adjustment.
type adjustmentRule struct {
	name    string
	applies func(stats *models.UserStatsSnapshot) bool
	apply   func(w *models.WeightVector)
}

// WeightCalculator derives per-user fusion weights from activity
// statistics. It is a pure function of the snapshot: same stats, same
// weights.
type WeightCalculator struct {
	baseline models.WeightVector
	rules    []adjustmentRule
	logger   *logrus.Logger
}

func NewWeightCalculator(cfg *config.WeightsConfig, logger *logrus.Logger) *WeightCalculator {
	baseline := models.WeightVector{
		Collaborative: cfg.Baseline.Collaborative,
		Content:       cfg.Baseline.Content,
		Popularity:    cfg.Baseline.Popularity,
		Diversity:     cfg.Baseline.Diversity,
	}

	// Rule order matters: the activity rules fire before the rating-level
	// rules so an active user's collaborative boost lands on top of any
	// generosity adjustment rather than under it.
	rules := []adjustmentRule{
		{
			name: "cold_user",
			applies: func(stats *models.UserStatsSnapshot) bool {
				return stats.RatingCount < cfg.ColdUserThreshold
			},
			apply: func(w *models.WeightVector) {
				// Collaborative filtering has no signal for a user with a
				// handful of ratings; lean on content and consensus.
				w.Collaborative -= cfg.ColdUserShift
				w.Content += cfg.ColdUserShift / 2
				w.Popularity += cfg.ColdUserShift / 2
			},
		},
		{
			name: "active_user",
			applies: func(stats *models.UserStatsSnapshot) bool {
				return stats.RatingCount > cfg.ActiveUserThreshold
			},
			apply: func(w *models.WeightVector) {
				w.Collaborative += cfg.ActiveUserBoost
			},
		},
		{
			name: "critical_rater",
			applies: func(stats *models.UserStatsSnapshot) bool {
				return stats.AvgRating > 0 && stats.AvgRating < cfg.CriticalRaterBelow
			},
			apply: func(w *models.WeightVector) {
				// A consistently harsh rater's neighbors are noisy; fall
				// back toward consensus-safe items.
				w.Popularity += cfg.CriticalRaterBoost
			},
		},
		{
			name: "generous_rater",
			applies: func(stats *models.UserStatsSnapshot) bool {
				return stats.AvgRating > cfg.GenerousRaterAbove
			},
			apply: func(w *models.WeightVector) {
				w.Collaborative += cfg.GenerousRaterBoost
			},
		},
	}

	return &WeightCalculator{
		baseline: baseline,
		rules:    rules,
		logger:   logger,
	}
}

// Baseline returns the configured baseline vector.
func (wc *WeightCalculator) Baseline() models.WeightVector {
	return wc.baseline
}

// ComputeWeights applies the rule list to the baseline, clips negative
// components to zero, and renormalizes so the four weights sum to 1.0.
// A vector that cannot be normalized is a configuration error and is
// surfaced, never patched up.
func (wc *WeightCalculator) ComputeWeights(stats *models.UserStatsSnapshot) (models.WeightVector, error) {
	weights := wc.baseline

	for _, rule := range wc.rules {
		if !rule.applies(stats) {
			continue
		}
		rule.apply(&weights)
		wc.logger.WithFields(logrus.Fields{
			"rule":    rule.name,
			"user_id": stats.UserID,
		}).Debug("Weight adjustment applied")
	}

	// Clip before renormalizing; order is load-bearing for reproducibility.
	if weights.Collaborative < 0 {
		weights.Collaborative = 0
	}
	if weights.Content < 0 {
		weights.Content = 0
	}
	if weights.Popularity < 0 {
		weights.Popularity = 0
	}
	if weights.Diversity < 0 {
		weights.Diversity = 0
	}

	sum := weights.Sum()
	if sum <= 0 {
		return models.WeightVector{}, fmt.Errorf("%w: weights sum to %f after clipping", ErrInvalidWeightVector, sum)
	}

	weights.Collaborative /= sum
	weights.Content /= sum
	weights.Popularity /= sum
	weights.Diversity /= sum

	if !weights.IsValid() {
		return models.WeightVector{}, fmt.Errorf("%w: normalization produced %+v", ErrInvalidWeightVector, weights)
	}

	return weights, nil
}
