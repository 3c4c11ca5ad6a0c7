package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jtarrant/recfuse/internal/adapters"
	"github.com/jtarrant/recfuse/internal/config"
	"github.com/jtarrant/recfuse/internal/database"
	"github.com/jtarrant/recfuse/internal/messaging"
)

type Services struct {
	Health         *HealthService
	Metrics        *MetricsCollector
	Weights        *WeightCalculator
	Fusion         *FusionEngine
	Learning       *LearningBuffer
	Experiments    *ExperimentService
	Recommendation *RecommendationService
	Cache          *RecommendationCache
	UserStats      *UserStatsStore
	Candidates     *CandidateStore
	FeedbackBus    *messaging.FeedbackBus
	Sink           *FeedbackSink

	Adapters []adapters.ModelAdapter
	Content  *adapters.ContentAdapter
}

func New(cfg *config.Config, logger *logrus.Logger, db *database.Database) (*Services, error) {
	healthService := NewHealthService(cfg, logger, db)
	metrics := NewMetricsCollector()

	collaborative := adapters.NewCollaborativeAdapter()
	content := adapters.NewContentAdapter()
	popularity := adapters.NewPopularityAdapter()
	ranker := adapters.NewRankerAdapter()
	modelAdapters := []adapters.ModelAdapter{collaborative, content, popularity, ranker}

	userStats := NewUserStatsStore(db.PG, db.Redis, logger)
	candidateStore := NewCandidateStore(db.Neo4j, logger)

	if err := warmAdapters(db, candidateStore, collaborative, content, popularity, ranker); err != nil {
		// A cold start still serves: the adapters learn online from the
		// feedback stream.
		logger.WithError(err).Warn("Adapter warm-up from history failed")
	}

	weightCalculator := NewWeightCalculator(&cfg.Weights, logger)
	diversityAdjuster := NewDiversityAdjuster(logger)
	fusionEngine := NewFusionEngine(modelAdapters, diversityAdjuster, metrics, &cfg.Fusion, logger)

	cache := NewRecommendationCache(db.Redis, cfg.Fusion.RecommendationsTTL, logger)
	learningBuffer := NewLearningBuffer(modelAdapters, cache, metrics, &cfg.Learning, logger)

	experimentService, err := NewExperimentService(cfg.Experiments.ConfigPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load experiments: %w", err)
	}

	feedbackBus, err := messaging.NewFeedbackBus(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create feedback bus: %w", err)
	}

	recommendationService := NewRecommendationService(
		weightCalculator, fusionEngine, userStats, candidateStore,
		experimentService, cache, metrics, &cfg.Fusion, logger,
	)

	sink := NewFeedbackSink(learningBuffer, candidateStore, userStats, logger)

	return &Services{
		Health:         healthService,
		Metrics:        metrics,
		Weights:        weightCalculator,
		Fusion:         fusionEngine,
		Learning:       learningBuffer,
		Experiments:    experimentService,
		Recommendation: recommendationService,
		Cache:          cache,
		UserStats:      userStats,
		Candidates:     candidateStore,
		FeedbackBus:    feedbackBus,
		Sink:           sink,
		Adapters:       modelAdapters,
		Content:        content,
	}, nil
}

// warmAdapters replays item attributes and recent rating history into the
// model adapters so a restarted process scores immediately instead of
// relearning from live traffic alone.
func warmAdapters(
	db *database.Database,
	candidates *CandidateStore,
	collaborative *adapters.CollaborativeAdapter,
	content *adapters.ContentAdapter,
	popularity *adapters.PopularityAdapter,
	ranker *adapters.RankerAdapter,
) error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	items, err := candidates.AllItems(ctx, 50000)
	if err != nil {
		return fmt.Errorf("failed to load item attributes: %w", err)
	}
	for _, item := range items {
		content.SetItemAttributes(item.ItemID, item.Attributes)
	}

	rows, err := db.PG.Query(ctx, `
		SELECT user_id, item_id, rating
		FROM user_ratings
		ORDER BY timestamp DESC
		LIMIT 10000
	`)
	if err != nil {
		return fmt.Errorf("failed to load rating history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID, itemID uuid.UUID
		var rating float64
		if err := rows.Scan(&userID, &itemID, &rating); err != nil {
			return fmt.Errorf("failed to scan rating row: %w", err)
		}

		collaborative.ObserveRating(userID, itemID, rating)
		popularity.ObserveRating(itemID, rating)
		ranker.ObserveRating(userID, itemID, rating)
	}

	return rows.Err()
}
