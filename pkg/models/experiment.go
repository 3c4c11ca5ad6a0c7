package models

// DefaultGroup is returned when an experiment is inactive: no override
// applies and the caller-specified configuration is used.
const DefaultGroup = "default"

// GroupOverride pins the fusion configuration for one experiment group.
// A nil Weights means the group uses the per-user computed weights; Models,
// when set, restricts fusion to the named adapters.
type GroupOverride struct {
	Weights *WeightVector `json:"weights,omitempty"`
	Models  []string      `json:"models,omitempty"`
}

// ExperimentGroup is one arm of an experiment. WeightFraction is the share
// of the user population routed into this group; fractions across a
// definition's groups must partition [0,1).
type ExperimentGroup struct {
	Name           string         `json:"name"`
	WeightFraction float64        `json:"weight_fraction"`
	ModelOverride  *GroupOverride `json:"model_override,omitempty"`
}

// ExperimentDefinition is loaded from configuration at startup and treated
// as immutable for the process lifetime. Group order matters: cumulative
// weight fractions are assigned in definition order.
type ExperimentDefinition struct {
	ExperimentID string            `json:"experiment_id"`
	Description  string            `json:"description,omitempty"`
	Groups       []ExperimentGroup `json:"groups"`
	Active       bool              `json:"active"`
}

// GroupAssignment is the derived, never-stored result of assigning a user
// to an experiment group.
type GroupAssignment struct {
	ExperimentID string         `json:"experiment_id"`
	Group        string         `json:"group"`
	Override     *GroupOverride `json:"override,omitempty"`
}
