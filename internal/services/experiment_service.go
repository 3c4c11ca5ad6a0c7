package services

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jtarrant/recfuse/internal/validation"
	"github.com/jtarrant/recfuse/pkg/models"
)

// fractionTolerance bounds the allowed drift when group weight fractions
// are summed.
const fractionTolerance = 0.001

type experimentConfigFile struct {
	Experiments []models.ExperimentDefinition `json:"experiments"`
}

// ExperimentService assigns users to experiment groups. Assignment is a
// pure function of (user_id, experiment_id): the same pair always lands in
// the same group, with no stored assignment state, so two replicas agree
// without coordination.
type ExperimentService struct {
	experiments map[string]*models.ExperimentDefinition
	logger      *logrus.Logger
}

// NewExperimentService loads experiment definitions from the given JSON
// file. Definitions are validated structurally and semantically at load
// time and are immutable afterwards.
func NewExperimentService(configPath string, logger *logrus.Logger) (*ExperimentService, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read experiment config: %w", err)
	}

	validator, err := validation.NewSchemaValidator()
	if err != nil {
		return nil, err
	}
	if result := validator.ValidateExperimentConfig(data); !result.Valid {
		return nil, fmt.Errorf("invalid experiment config: %v", result.Errors)
	}

	var file experimentConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse experiment config: %w", err)
	}

	experiments := make(map[string]*models.ExperimentDefinition, len(file.Experiments))
	for i := range file.Experiments {
		def := &file.Experiments[i]
		if err := validateDefinition(def); err != nil {
			return nil, fmt.Errorf("experiment %s: %w", def.ExperimentID, err)
		}
		if _, dup := experiments[def.ExperimentID]; dup {
			return nil, fmt.Errorf("duplicate experiment id: %s", def.ExperimentID)
		}
		experiments[def.ExperimentID] = def
	}

	logger.WithField("experiments", len(experiments)).Info("Experiment definitions loaded")

	return &ExperimentService{
		experiments: experiments,
		logger:      logger,
	}, nil
}

// NewExperimentServiceFromDefinitions builds a service from in-memory
// definitions, bypassing the config file.
func NewExperimentServiceFromDefinitions(defs []models.ExperimentDefinition, logger *logrus.Logger) (*ExperimentService, error) {
	experiments := make(map[string]*models.ExperimentDefinition, len(defs))
	for i := range defs {
		def := &defs[i]
		if err := validateDefinition(def); err != nil {
			return nil, fmt.Errorf("experiment %s: %w", def.ExperimentID, err)
		}
		if _, dup := experiments[def.ExperimentID]; dup {
			return nil, fmt.Errorf("duplicate experiment id: %s", def.ExperimentID)
		}
		experiments[def.ExperimentID] = def
	}

	return &ExperimentService{experiments: experiments, logger: logger}, nil
}

// Assign maps a user into a group of the named experiment. An inactive
// experiment routes everyone to the default group with no override; an
// unknown experiment id is an error.
func (es *ExperimentService) Assign(userID uuid.UUID, experimentID string) (*models.GroupAssignment, error) {
	experiment, exists := es.experiments[experimentID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownExperiment, experimentID)
	}

	if !experiment.Active {
		return &models.GroupAssignment{
			ExperimentID: experimentID,
			Group:        models.DefaultGroup,
		}, nil
	}

	group := assignGroupByHash(userID, experiment)

	return &models.GroupAssignment{
		ExperimentID: experimentID,
		Group:        group.Name,
		Override:     group.ModelOverride,
	}, nil
}

// Experiments returns all loaded definitions, keyed by id.
func (es *ExperimentService) Experiments() map[string]*models.ExperimentDefinition {
	return es.experiments
}

// assignGroupByHash maps the user into [0,1) and walks the cumulative
// weight fractions in definition order. No randomness and no stored state:
// assignment is reproducible across restarts and replicas.
func assignGroupByHash(userID uuid.UUID, experiment *models.ExperimentDefinition) *models.ExperimentGroup {
	hasher := fnv.New32a()
	hasher.Write([]byte(userID.String() + ":" + experiment.ExperimentID))
	fraction := float64(hasher.Sum32()) / float64(^uint32(0))

	cumulative := 0.0
	for i := range experiment.Groups {
		cumulative += experiment.Groups[i].WeightFraction
		if fraction < cumulative {
			return &experiment.Groups[i]
		}
	}

	// Rounding at the top of the range lands in the last group.
	return &experiment.Groups[len(experiment.Groups)-1]
}

func validateDefinition(def *models.ExperimentDefinition) error {
	if def.ExperimentID == "" {
		return fmt.Errorf("experiment id is required")
	}
	if len(def.Groups) == 0 {
		return fmt.Errorf("experiment must have at least one group")
	}

	totalFraction := 0.0
	seen := make(map[string]bool, len(def.Groups))
	for _, group := range def.Groups {
		if group.Name == "" {
			return fmt.Errorf("group name is required")
		}
		if seen[group.Name] {
			return fmt.Errorf("duplicate group name: %s", group.Name)
		}
		seen[group.Name] = true

		if group.WeightFraction < 0 || group.WeightFraction > 1 {
			return fmt.Errorf("group %s: weight fraction must be in [0,1], got %.3f", group.Name, group.WeightFraction)
		}
		totalFraction += group.WeightFraction

		if group.ModelOverride != nil && group.ModelOverride.Weights != nil {
			if !group.ModelOverride.Weights.IsValid() {
				return fmt.Errorf("group %s: override weights must be non-negative and sum to 1", group.Name)
			}
		}
	}

	if math.Abs(totalFraction-1.0) > fractionTolerance {
		return fmt.Errorf("group weight fractions must sum to 1.0, got %.3f", totalFraction)
	}

	return nil
}
