package models

import (
	"time"

	"github.com/google/uuid"
)

// CandidateItem is an unscored item produced by the external retrieval
// layer. Attributes carry the item's categorical tags (genres) used by the
// diversity adjuster.
type CandidateItem struct {
	ItemID     uuid.UUID `json:"item_id"`
	Attributes []string  `json:"attributes,omitempty"`
}

// Candidate is a scored item produced by the fusion engine. It lives for
// the duration of one request and is never persisted.
type Candidate struct {
	ItemID       uuid.UUID          `json:"item_id"`
	Attributes   []string           `json:"attributes,omitempty"`
	ModelScores  map[string]float64 `json:"model_scores"`
	FinalScore   float64            `json:"final_score"`
	Contribution map[string]float64 `json:"contribution"`
	Position     int                `json:"position"`
}

// RecommendationRequest is the inbound API payload.
type RecommendationRequest struct {
	UserID       uuid.UUID `json:"user_id" validate:"required"`
	Count        int       `json:"count" validate:"omitempty,min=1,max=100"`
	ExperimentID string    `json:"experiment_id,omitempty"`
}

// RecommendationResponse is the ranked payload handed to the API layer.
type RecommendationResponse struct {
	UserID      uuid.UUID    `json:"user_id"`
	Items       []Candidate  `json:"items"`
	Weights     WeightVector `json:"weights"`
	Experiment  string       `json:"experiment,omitempty"`
	Group       string       `json:"group,omitempty"`
	GeneratedAt time.Time    `json:"generated_at"`
	CacheHit    bool         `json:"cache_hit"`
}
