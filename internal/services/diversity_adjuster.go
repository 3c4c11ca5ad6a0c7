package services

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/jtarrant/recfuse/pkg/models"
)

// DiversityAdjuster re-ranks fused candidates to reduce redundancy. The
// pass is greedy and order-dependent: once an item is picked it is never
// revisited, and each pick penalizes the remaining pool by attribute
// overlap scaled by the diversity weight.
type DiversityAdjuster struct {
	logger *logrus.Logger
}

func NewDiversityAdjuster(logger *logrus.Logger) *DiversityAdjuster {
	return &DiversityAdjuster{logger: logger}
}

// Apply consumes the candidate slice and returns it re-ranked. With a zero
// diversity weight the input order (descending score) is preserved.
func (da *DiversityAdjuster) Apply(candidates []models.Candidate, diversityWeight float64) []models.Candidate {
	if len(candidates) <= 1 {
		return candidates
	}

	remaining := make([]models.Candidate, len(candidates))
	copy(remaining, candidates)
	sort.SliceStable(remaining, func(i, j int) bool {
		return remaining[i].FinalScore > remaining[j].FinalScore
	})

	if diversityWeight <= 0 {
		return remaining
	}

	selected := make([]models.Candidate, 0, len(remaining))
	for len(remaining) > 0 {
		pick := remaining[0]
		selected = append(selected, pick)
		remaining = remaining[1:]

		// Penalize the still-unpicked pool proportionally to its overlap
		// with the item just chosen, then re-sort so the next pick sees
		// the adjusted ordering.
		for i := range remaining {
			overlap := attributeOverlap(pick.Attributes, remaining[i].Attributes)
			if overlap > 0 {
				remaining[i].FinalScore *= 1 - diversityWeight*overlap
			}
		}
		sort.SliceStable(remaining, func(i, j int) bool {
			return remaining[i].FinalScore > remaining[j].FinalScore
		})
	}

	return selected
}

// attributeOverlap is the Jaccard similarity of two attribute sets.
func attributeOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	setA := make(map[string]bool, len(a))
	for _, attr := range a {
		setA[attr] = true
	}

	shared := 0
	setB := make(map[string]bool, len(b))
	for _, attr := range b {
		if setB[attr] {
			continue
		}
		setB[attr] = true
		if setA[attr] {
			shared++
		}
	}

	union := len(setA) + len(setB) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}
