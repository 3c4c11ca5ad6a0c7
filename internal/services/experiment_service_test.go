package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtarrant/recfuse/pkg/models"
)

func fiftyFiftyExperiment(id string, active bool) models.ExperimentDefinition {
	return models.ExperimentDefinition{
		ExperimentID: id,
		Active:       active,
		Groups: []models.ExperimentGroup{
			{Name: "control", WeightFraction: 0.5},
			{Name: "treatment", WeightFraction: 0.5, ModelOverride: &models.GroupOverride{
				Weights: &models.WeightVector{Collaborative: 0.7, Content: 0.2, Popularity: 0.05, Diversity: 0.05},
			}},
		},
	}
}

func TestExperimentService_AssignmentIsDeterministic(t *testing.T) {
	es, err := NewExperimentServiceFromDefinitions(
		[]models.ExperimentDefinition{fiftyFiftyExperiment("ranking_v2", true)}, testLogger())
	require.NoError(t, err)

	userID := uuid.New()
	first, err := es.Assign(userID, "ranking_v2")
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		again, err := es.Assign(userID, "ranking_v2")
		require.NoError(t, err)
		assert.Equal(t, first.Group, again.Group)
	}
}

func TestExperimentService_DistributionMatchesFractions(t *testing.T) {
	es, err := NewExperimentServiceFromDefinitions(
		[]models.ExperimentDefinition{fiftyFiftyExperiment("ranking_v2", true)}, testLogger())
	require.NoError(t, err)

	counts := map[string]int{}
	const n = 10000
	for i := 0; i < n; i++ {
		assignment, err := es.Assign(uuid.New(), "ranking_v2")
		require.NoError(t, err)
		counts[assignment.Group]++
	}

	assert.InDelta(t, n/2, counts["control"], n*0.05)
	assert.InDelta(t, n/2, counts["treatment"], n*0.05)
}

func TestExperimentService_SameUserDifferentExperiments(t *testing.T) {
	es, err := NewExperimentServiceFromDefinitions([]models.ExperimentDefinition{
		fiftyFiftyExperiment("exp_a", true),
		fiftyFiftyExperiment("exp_b", true),
	}, testLogger())
	require.NoError(t, err)

	// The experiment id is part of the hash input, so per-experiment
	// assignments are independent; over many users the two experiments
	// cannot agree on every assignment.
	agree := 0
	const n = 1000
	for i := 0; i < n; i++ {
		userID := uuid.New()
		a, err := es.Assign(userID, "exp_a")
		require.NoError(t, err)
		b, err := es.Assign(userID, "exp_b")
		require.NoError(t, err)
		if a.Group == b.Group {
			agree++
		}
	}
	assert.Less(t, agree, n)
	assert.Greater(t, agree, 0)
}

func TestExperimentService_InactiveRoutesToDefault(t *testing.T) {
	es, err := NewExperimentServiceFromDefinitions(
		[]models.ExperimentDefinition{fiftyFiftyExperiment("paused", false)}, testLogger())
	require.NoError(t, err)

	assignment, err := es.Assign(uuid.New(), "paused")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultGroup, assignment.Group)
	assert.Nil(t, assignment.Override)
}

func TestExperimentService_UnknownExperiment(t *testing.T) {
	es, err := NewExperimentServiceFromDefinitions(nil, testLogger())
	require.NoError(t, err)

	_, err = es.Assign(uuid.New(), "never_defined")
	assert.ErrorIs(t, err, ErrUnknownExperiment)
}

func TestExperimentService_TreatmentCarriesOverride(t *testing.T) {
	es, err := NewExperimentServiceFromDefinitions([]models.ExperimentDefinition{{
		ExperimentID: "all_in",
		Active:       true,
		Groups: []models.ExperimentGroup{
			{Name: "treatment", WeightFraction: 1.0, ModelOverride: &models.GroupOverride{
				Models: []string{models.ModelRanker},
			}},
		},
	}}, testLogger())
	require.NoError(t, err)

	assignment, err := es.Assign(uuid.New(), "all_in")
	require.NoError(t, err)
	assert.Equal(t, "treatment", assignment.Group)
	require.NotNil(t, assignment.Override)
	assert.Equal(t, []string{models.ModelRanker}, assignment.Override.Models)
}

func TestExperimentService_RejectsBadDefinitions(t *testing.T) {
	tests := []struct {
		name string
		defs []models.ExperimentDefinition
	}{
		{
			name: "fractions sum below one",
			defs: []models.ExperimentDefinition{{
				ExperimentID: "bad",
				Groups: []models.ExperimentGroup{
					{Name: "control", WeightFraction: 0.5},
					{Name: "treatment", WeightFraction: 0.4},
				},
			}},
		},
		{
			name: "fractions sum above one",
			defs: []models.ExperimentDefinition{{
				ExperimentID: "bad",
				Groups: []models.ExperimentGroup{
					{Name: "control", WeightFraction: 0.6},
					{Name: "treatment", WeightFraction: 0.6},
				},
			}},
		},
		{
			name: "missing experiment id",
			defs: []models.ExperimentDefinition{{
				Groups: []models.ExperimentGroup{{Name: "control", WeightFraction: 1.0}},
			}},
		},
		{
			name: "no groups",
			defs: []models.ExperimentDefinition{{ExperimentID: "bad"}},
		},
		{
			name: "duplicate group names",
			defs: []models.ExperimentDefinition{{
				ExperimentID: "bad",
				Groups: []models.ExperimentGroup{
					{Name: "control", WeightFraction: 0.5},
					{Name: "control", WeightFraction: 0.5},
				},
			}},
		},
		{
			name: "duplicate experiment ids",
			defs: []models.ExperimentDefinition{
				fiftyFiftyExperiment("dup", true),
				fiftyFiftyExperiment("dup", true),
			},
		},
		{
			name: "override weights do not sum to one",
			defs: []models.ExperimentDefinition{{
				ExperimentID: "bad",
				Groups: []models.ExperimentGroup{
					{Name: "treatment", WeightFraction: 1.0, ModelOverride: &models.GroupOverride{
						Weights: &models.WeightVector{Collaborative: 0.9, Content: 0.9},
					}},
				},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewExperimentServiceFromDefinitions(tt.defs, testLogger())
			assert.Error(t, err)
		})
	}
}

func TestExperimentService_FractionToleranceAccepted(t *testing.T) {
	_, err := NewExperimentServiceFromDefinitions([]models.ExperimentDefinition{{
		ExperimentID: "three_way",
		Active:       true,
		Groups: []models.ExperimentGroup{
			{Name: "a", WeightFraction: 0.333},
			{Name: "b", WeightFraction: 0.333},
			{Name: "c", WeightFraction: 0.333},
		},
	}}, testLogger())
	assert.NoError(t, err)
}
