package conditions

import (
	"context"
	"fmt"
)

const budgetQualificationSchema = `{
	"type": "object",
	"properties": {
		"min_budget": {"type": "number", "minimum": 0}
	}
}`

func registerBuiltins(registry *Registry) {
	// Registration of builtins cannot fail: schemas are compile-time constants.
	_ = registry.Register(TypeBudgetQualification, EvaluatorFunc(evaluateBudgetQualification), budgetQualificationSchema)
	_ = registry.Register(TypeReplyReceived, EvaluatorFunc(evaluateReplyReceived), "")
	_ = registry.Register(TypeBookingCompleted, EvaluatorFunc(evaluateBookingCompleted), "")
	_ = registry.Register(TypeExpression, EvaluatorFunc(evaluateExpression), expressionSchema)
}

func evaluateBudgetQualification(_ context.Context, config map[string]any, env Env) (bool, error) {
	if env.Lead == nil {
		return false, fmt.Errorf("budget_qualification requires a lead")
	}

	minBudget, _ := toFloat(config["min_budget"])

	return env.Lead.Budget >= minBudget, nil
}

func evaluateReplyReceived(_ context.Context, _ map[string]any, env Env) (bool, error) {
	if env.Lead == nil {
		return false, fmt.Errorf("reply_received requires a lead")
	}

	return env.Lead.RepliedAt != nil, nil
}

func evaluateBookingCompleted(ctx context.Context, _ map[string]any, env Env) (bool, error) {
	if env.Lead == nil {
		return false, fmt.Errorf("booking_completed requires a lead")
	}

	if env.Bookings == nil {
		return env.Lead.BookedAt != nil, nil
	}

	count, err := env.Bookings.BookingCountByLead(ctx, env.Lead.ID)
	if err != nil {
		return false, fmt.Errorf("failed to count bookings for lead %s: %w", env.Lead.ID, err)
	}

	return count > 0, nil
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
