package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtarrant/recfuse/pkg/models"
)

func makeCandidate(score float64, attrs ...string) models.Candidate {
	return models.Candidate{
		ItemID:     uuid.New(),
		Attributes: attrs,
		FinalScore: score,
	}
}

func TestAttributeOverlap(t *testing.T) {
	tests := []struct {
		name     string
		a        []string
		b        []string
		expected float64
	}{
		{"identical sets", []string{"scifi", "action"}, []string{"scifi", "action"}, 1.0},
		{"no overlap", []string{"scifi"}, []string{"romance"}, 0.0},
		{"partial overlap", []string{"scifi", "action", "thriller"}, []string{"scifi", "drama"}, 0.25},
		{"empty set", []string{}, []string{"scifi"}, 0.0},
		{"both empty", nil, nil, 0.0},
		{"duplicates ignored", []string{"scifi", "scifi"}, []string{"scifi"}, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, attributeOverlap(tt.a, tt.b), 1e-9)
		})
	}
}

func TestDiversityAdjuster_ZeroWeightPreservesOrder(t *testing.T) {
	da := NewDiversityAdjuster(testLogger())

	candidates := []models.Candidate{
		makeCandidate(0.9, "scifi"),
		makeCandidate(0.8, "scifi"),
		makeCandidate(0.7, "scifi"),
	}

	result := da.Apply(candidates, 0)
	require.Len(t, result, 3)
	assert.InDelta(t, 0.9, result[0].FinalScore, 1e-9)
	assert.InDelta(t, 0.8, result[1].FinalScore, 1e-9)
	assert.InDelta(t, 0.7, result[2].FinalScore, 1e-9)
}

func TestDiversityAdjuster_PenalizesRedundantAttributes(t *testing.T) {
	da := NewDiversityAdjuster(testLogger())

	top := makeCandidate(0.90, "scifi", "space")
	similar := makeCandidate(0.88, "scifi", "space")
	different := makeCandidate(0.85, "romance", "drama")

	result := da.Apply([]models.Candidate{top, similar, different}, 0.5)
	require.Len(t, result, 3)

	// The near-duplicate loses half its score to full overlap with the top
	// pick; the unrelated item slides past it.
	assert.Equal(t, top.ItemID, result[0].ItemID)
	assert.Equal(t, different.ItemID, result[1].ItemID)
	assert.Equal(t, similar.ItemID, result[2].ItemID)
}

func TestDiversityAdjuster_GreedyIsOrderDependent(t *testing.T) {
	da := NewDiversityAdjuster(testLogger())

	// Two same-genre items ahead of a distinct one: the second same-genre
	// item is penalized once for the first pick, and its decayed score is
	// what competes for the following positions.
	a := makeCandidate(1.0, "scifi")
	b := makeCandidate(0.95, "scifi")
	c := makeCandidate(0.80, "drama")

	result := da.Apply([]models.Candidate{a, b, c}, 0.3)
	require.Len(t, result, 3)

	assert.Equal(t, a.ItemID, result[0].ItemID)
	// b decays to 0.95*0.7=0.665 < 0.80
	assert.Equal(t, c.ItemID, result[1].ItemID)
	assert.Equal(t, b.ItemID, result[2].ItemID)
	assert.InDelta(t, 0.665, result[2].FinalScore, 1e-9)
}

func TestDiversityAdjuster_SmallInputsUntouched(t *testing.T) {
	da := NewDiversityAdjuster(testLogger())

	assert.Empty(t, da.Apply(nil, 0.5))

	single := []models.Candidate{makeCandidate(0.5, "scifi")}
	result := da.Apply(single, 0.5)
	require.Len(t, result, 1)
	assert.InDelta(t, 0.5, result[0].FinalScore, 1e-9)
}
