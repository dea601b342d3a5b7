package conditions

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"
)

const expressionSchema = `{
	"type": "object",
	"properties": {
		"expression": {"type": "string", "minLength": 1}
	},
	"required": ["expression"]
}`

// evaluateExpression compiles and runs an expr-lang predicate over the lead
// and execution state. The expression must produce a boolean.
func evaluateExpression(_ context.Context, config map[string]any, env Env) (bool, error) {
	source, _ := config["expression"].(string)

	input := map[string]any{
		"variables": env.Variables,
		"trigger":   env.TriggerData,
	}

	if env.Lead != nil {
		input["lead"] = map[string]any{
			"id":      env.Lead.ID,
			"name":    env.Lead.Name,
			"email":   env.Lead.Email,
			"company": env.Lead.Company,
			"status":  string(env.Lead.Status),
			"budget":  env.Lead.Budget,
			"replied": env.Lead.RepliedAt != nil,
			"booked":  env.Lead.BookedAt != nil,
		}
	}

	program, err := expr.Compile(source, expr.Env(input), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("failed to compile expression %q: %w", source, err)
	}

	output, err := expr.Run(program, input)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate expression %q: %w", source, err)
	}

	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q did not produce a boolean", source)
	}

	return result, nil
}
