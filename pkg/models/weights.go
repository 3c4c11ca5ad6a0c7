package models

import "math"

// WeightTolerance is the floating tolerance for the sum-to-one invariant.
const WeightTolerance = 1e-6

// Model names used as keys in per-model score and contribution maps.
const (
	ModelCollaborative = "collaborative"
	ModelContent       = "content"
	ModelPopularity    = "popularity"
	ModelRanker        = "ranker"
)

// WeightVector holds the fusion weights for one recommendation request.
// The first three components weight the model scores; the diversity
// component scales the post-fusion re-ranking penalty.
type WeightVector struct {
	Collaborative float64 `json:"collaborative"`
	Content       float64 `json:"content"`
	Popularity    float64 `json:"popularity"`
	Diversity     float64 `json:"diversity"`
}

// Sum returns the total of all four components.
func (w WeightVector) Sum() float64 {
	return w.Collaborative + w.Content + w.Popularity + w.Diversity
}

// IsValid reports whether all components are non-negative and the vector
// sums to 1.0 within WeightTolerance.
func (w WeightVector) IsValid() bool {
	if w.Collaborative < 0 || w.Content < 0 || w.Popularity < 0 || w.Diversity < 0 {
		return false
	}
	return math.Abs(w.Sum()-1.0) <= WeightTolerance
}

// ModelWeights returns the per-model weights used in score fusion. The
// diversity component is intentionally absent; it is applied by the
// diversity adjuster, not the weighted sum.
func (w WeightVector) ModelWeights() map[string]float64 {
	return map[string]float64{
		ModelCollaborative: w.Collaborative,
		ModelContent:       w.Content,
		ModelPopularity:    w.Popularity,
	}
}
