package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/jtarrant/recfuse/internal/services"
)

type Handlers struct {
	Health         *HealthHandler
	Recommendation *RecommendationHandler
	Feedback       *FeedbackHandler
	Experiment     *ExperimentHandler
	Item           *ItemHandler
}

func New(logger *logrus.Logger, services *services.Services) *Handlers {
	return &Handlers{
		Health:         NewHealthHandler(logger, services.Health),
		Recommendation: NewRecommendationHandler(services.Recommendation, logger),
		Feedback:       NewFeedbackHandler(services.Learning, services.FeedbackBus, logger),
		Experiment:     NewExperimentHandler(services.Experiments, logger),
		Item:           NewItemHandler(services.Candidates, services.Content, logger),
	}
}
