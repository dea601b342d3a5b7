// Package conditions provides pluggable predicate evaluation for condition
// nodes, dispatched by condition type.
package conditions

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xeipuuv/gojsonschema"

	"github.com/cadencehq/cadence/pkg/models"
)

// Built-in condition types.
const (
	TypeBudgetQualification = "budget_qualification"
	TypeReplyReceived       = "reply_received"
	TypeBookingCompleted    = "booking_completed"
	TypeExpression          = "expression"
)

// BookingReader is the narrow store read issued by booking conditions.
type BookingReader interface {
	BookingCountByLead(ctx context.Context, leadID string) (int, error)
}

// Env carries the lead and domain state a predicate may consult.
type Env struct {
	Lead        *models.Lead
	Variables   map[string]any
	TriggerData map[string]any
	Bookings    BookingReader
}

// Evaluator resolves one condition type against a lead.
type Evaluator interface {
	Evaluate(ctx context.Context, config map[string]any, env Env) (bool, error)
}

// EvaluatorFunc adapts a function to the Evaluator interface.
type EvaluatorFunc func(ctx context.Context, config map[string]any, env Env) (bool, error)

func (f EvaluatorFunc) Evaluate(ctx context.Context, config map[string]any, env Env) (bool, error) {
	return f(ctx, config, env)
}

// Registry dispatches condition evaluation by the condition_type key of a
// node's config, validating the config against the type's JSON schema first.
//
// An unknown condition type passes (returns true) unless strict mode is on.
// Fail-open matches the engine's unrecognized-node policy; both are surfaced
// as warnings so silent misconfiguration stays visible in logs.
type Registry struct {
	logger     *slog.Logger
	strict     bool
	evaluators map[string]Evaluator
	schemas    map[string]*gojsonschema.Schema
}

func NewRegistry(logger *slog.Logger, strict bool) *Registry {
	registry := &Registry{
		logger:     logger.With("module", "conditions"),
		strict:     strict,
		evaluators: make(map[string]Evaluator),
		schemas:    make(map[string]*gojsonschema.Schema),
	}

	registerBuiltins(registry)

	return registry
}

// Register adds an evaluator for a condition type. schemaJSON may be empty
// for types without config requirements.
func (r *Registry) Register(condType string, evaluator Evaluator, schemaJSON string) error {
	if condType == "" {
		return fmt.Errorf("condition type is required")
	}

	if schemaJSON != "" {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
		if err != nil {
			return fmt.Errorf("failed to compile schema for condition type %q: %w", condType, err)
		}

		r.schemas[condType] = schema
	}

	r.evaluators[condType] = evaluator

	return nil
}

// Evaluate runs the predicate registered for condType.
func (r *Registry) Evaluate(ctx context.Context, condType string, config map[string]any, env Env) (bool, error) {
	evaluator, ok := r.evaluators[condType]
	if !ok {
		if r.strict {
			return false, &UnknownTypeError{Type: condType}
		}

		r.logger.WarnContext(ctx, "Unknown condition type, defaulting to pass", "condition_type", condType)

		return true, nil
	}

	err := r.validateConfig(condType, config)
	if err != nil {
		return false, err
	}

	return evaluator.Evaluate(ctx, config, env)
}

func (r *Registry) validateConfig(condType string, config map[string]any) error {
	schema, ok := r.schemas[condType]
	if !ok {
		return nil
	}

	if config == nil {
		config = map[string]any{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(config))
	if err != nil {
		return fmt.Errorf("failed to validate config for condition type %q: %w", condType, err)
	}

	if !result.Valid() {
		return &ConfigError{Type: condType, Detail: result.Errors()[0].String()}
	}

	return nil
}

// UnknownTypeError indicates a condition type with no registered evaluator,
// raised only in strict mode.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown condition type %q", e.Type)
}

// ConfigError indicates a condition config that failed schema validation.
type ConfigError struct {
	Type   string
	Detail string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config for condition type %q: %s", e.Type, e.Detail)
}
