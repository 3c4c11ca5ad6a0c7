package validation

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Embedded JSON schemas. The experiment config is operator-supplied, so
// it gets schema validation before any semantic checks run.
const experimentConfigSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["experiments"],
	"properties": {
		"experiments": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["experiment_id", "groups"],
				"properties": {
					"experiment_id": {"type": "string", "minLength": 1},
					"description": {"type": "string"},
					"active": {"type": "boolean"},
					"groups": {
						"type": "array",
						"minItems": 1,
						"items": {
							"type": "object",
							"required": ["name", "weight_fraction"],
							"properties": {
								"name": {"type": "string", "minLength": 1},
								"weight_fraction": {"type": "number", "minimum": 0, "maximum": 1},
								"model_override": {
									"type": "object",
									"properties": {
										"weights": {
											"type": "object",
											"required": ["collaborative", "content", "popularity", "diversity"],
											"properties": {
												"collaborative": {"type": "number", "minimum": 0},
												"content": {"type": "number", "minimum": 0},
												"popularity": {"type": "number", "minimum": 0},
												"diversity": {"type": "number", "minimum": 0}
											}
										},
										"models": {
											"type": "array",
											"items": {"type": "string", "minLength": 1}
										}
									}
								}
							}
						}
					}
				}
			}
		}
	}
}`

const feedbackEventSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["user_id", "item_id", "event_type"],
	"properties": {
		"user_id": {"type": "string", "format": "uuid"},
		"item_id": {"type": "string", "format": "uuid"},
		"event_type": {"type": "string", "enum": ["view", "click", "rate", "purchase"]},
		"rating": {"type": "number", "minimum": 1, "maximum": 5},
		"timestamp": {"type": "string", "format": "date-time"}
	}
}`

// SchemaValidator validates JSON documents against the embedded schemas.
type SchemaValidator struct {
	schemas map[string]*gojsonschema.Schema
}

func NewSchemaValidator() (*SchemaValidator, error) {
	sources := map[string]string{
		"experiment-config": experimentConfigSchema,
		"feedback-event":    feedbackEventSchema,
	}

	sv := &SchemaValidator{schemas: make(map[string]*gojsonschema.Schema, len(sources))}
	for name, source := range sources {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(source))
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
		}
		sv.schemas[name] = schema
	}

	return sv, nil
}

// ValidateExperimentConfig validates a raw experiment configuration
// document.
func (sv *SchemaValidator) ValidateExperimentConfig(data []byte) *ValidationResult {
	return sv.validate("experiment-config", data)
}

// ValidateFeedbackEvent validates a raw feedback event payload.
func (sv *SchemaValidator) ValidateFeedbackEvent(data []byte) *ValidationResult {
	return sv.validate("feedback-event", data)
}

func (sv *SchemaValidator) validate(schemaName string, data interface{}) *ValidationResult {
	schema, exists := sv.schemas[schemaName]
	if !exists {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{{
				Field:   "schema",
				Message: fmt.Sprintf("Schema '%s' not found", schemaName),
				Code:    "SCHEMA_NOT_FOUND",
			}},
		}
	}

	var documentLoader gojsonschema.JSONLoader
	switch v := data.(type) {
	case string:
		documentLoader = gojsonschema.NewStringLoader(v)
	case []byte:
		documentLoader = gojsonschema.NewBytesLoader(v)
	default:
		jsonBytes, err := json.Marshal(data)
		if err != nil {
			return &ValidationResult{
				Valid: false,
				Errors: []ValidationError{{
					Field:   "data",
					Message: fmt.Sprintf("Failed to marshal data to JSON: %v", err),
					Code:    "JSON_MARSHAL_ERROR",
				}},
			}
		}
		documentLoader = gojsonschema.NewBytesLoader(jsonBytes)
	}

	result, err := schema.Validate(documentLoader)
	if err != nil {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{{
				Field:   "validation",
				Message: fmt.Sprintf("Validation error: %v", err),
				Code:    "VALIDATION_ERROR",
			}},
		}
	}

	validationResult := &ValidationResult{
		Valid:  result.Valid(),
		Errors: make([]ValidationError, 0),
	}

	if !result.Valid() {
		for _, err := range result.Errors() {
			validationResult.Errors = append(validationResult.Errors, ValidationError{
				Field:   err.Field(),
				Message: err.Description(),
				Code:    "VALIDATION_ERROR",
				Value:   err.Value(),
			})
		}
	}

	return validationResult
}

// ValidationResult represents the result of a validation operation
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
	Value   interface{} `json:"value,omitempty"`
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation error in field '%s': %s", ve.Field, ve.Message)
}

// ToAPIError converts validation errors to the API error envelope.
func (vr *ValidationResult) ToAPIError() map[string]interface{} {
	if vr.Valid {
		return nil
	}

	fieldErrors := make(map[string][]string)
	for _, err := range vr.Errors {
		if err.Field != "" {
			fieldErrors[err.Field] = append(fieldErrors[err.Field], err.Message)
		}
	}

	return map[string]interface{}{
		"error": map[string]interface{}{
			"code":    "VALIDATION_ERROR",
			"message": "Request validation failed",
			"details": map[string]interface{}{
				"validationErrors": vr.Errors,
				"fieldErrors":      fieldErrors,
			},
		},
	}
}
