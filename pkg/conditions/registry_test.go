package conditions

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadencehq/cadence/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

type stubBookings struct {
	count int
	err   error
}

func (s *stubBookings) BookingCountByLead(_ context.Context, _ string) (int, error) {
	return s.count, s.err
}

func testLead() *models.Lead {
	return &models.Lead{
		ID:     "lead-1",
		Name:   "Ada Lovelace",
		Email:  "ada@example.com",
		Status: models.LeadStatusNew,
		Budget: 10000,
	}
}

func TestBudgetQualification(t *testing.T) {
	registry := NewRegistry(testLogger(), false)
	ctx := context.Background()

	lead := testLead()

	result, err := registry.Evaluate(ctx, TypeBudgetQualification, map[string]any{"min_budget": 5000.0}, Env{Lead: lead})
	require.NoError(t, err)
	assert.True(t, result)

	result, err = registry.Evaluate(ctx, TypeBudgetQualification, map[string]any{"min_budget": 50000.0}, Env{Lead: lead})
	require.NoError(t, err)
	assert.False(t, result)

	// Boundary: equal budget qualifies.
	result, err = registry.Evaluate(ctx, TypeBudgetQualification, map[string]any{"min_budget": 10000.0}, Env{Lead: lead})
	require.NoError(t, err)
	assert.True(t, result)

	// No threshold configured qualifies everyone.
	result, err = registry.Evaluate(ctx, TypeBudgetQualification, map[string]any{}, Env{Lead: lead})
	require.NoError(t, err)
	assert.True(t, result)
}

func TestBudgetQualification_InvalidConfig(t *testing.T) {
	registry := NewRegistry(testLogger(), false)

	_, err := registry.Evaluate(context.Background(), TypeBudgetQualification, map[string]any{"min_budget": "lots"}, Env{Lead: testLead()})
	require.Error(t, err)

	var configErr *ConfigError
	assert.ErrorAs(t, err, &configErr)
}

func TestReplyReceived(t *testing.T) {
	registry := NewRegistry(testLogger(), false)
	ctx := context.Background()

	lead := testLead()

	result, err := registry.Evaluate(ctx, TypeReplyReceived, nil, Env{Lead: lead})
	require.NoError(t, err)
	assert.False(t, result)

	repliedAt := time.Now().UTC()
	lead.RepliedAt = &repliedAt

	result, err = registry.Evaluate(ctx, TypeReplyReceived, nil, Env{Lead: lead})
	require.NoError(t, err)
	assert.True(t, result)
}

func TestBookingCompleted(t *testing.T) {
	registry := NewRegistry(testLogger(), false)
	ctx := context.Background()

	lead := testLead()

	result, err := registry.Evaluate(ctx, TypeBookingCompleted, nil, Env{Lead: lead, Bookings: &stubBookings{count: 0}})
	require.NoError(t, err)
	assert.False(t, result)

	result, err = registry.Evaluate(ctx, TypeBookingCompleted, nil, Env{Lead: lead, Bookings: &stubBookings{count: 2}})
	require.NoError(t, err)
	assert.True(t, result)
}

func TestBookingCompleted_StoreError(t *testing.T) {
	registry := NewRegistry(testLogger(), false)

	_, err := registry.Evaluate(context.Background(), TypeBookingCompleted, nil, Env{
		Lead:     testLead(),
		Bookings: &stubBookings{err: errors.New("connection reset")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestBookingCompleted_FallsBackToLeadFlag(t *testing.T) {
	registry := NewRegistry(testLogger(), false)
	ctx := context.Background()

	lead := testLead()

	result, err := registry.Evaluate(ctx, TypeBookingCompleted, nil, Env{Lead: lead})
	require.NoError(t, err)
	assert.False(t, result)

	bookedAt := time.Now().UTC()
	lead.BookedAt = &bookedAt

	result, err = registry.Evaluate(ctx, TypeBookingCompleted, nil, Env{Lead: lead})
	require.NoError(t, err)
	assert.True(t, result)
}

func TestExpression(t *testing.T) {
	registry := NewRegistry(testLogger(), false)
	ctx := context.Background()

	env := Env{
		Lead:        testLead(),
		Variables:   map[string]any{"tier": "enterprise"},
		TriggerData: map[string]any{"source": "webinar"},
	}

	result, err := registry.Evaluate(ctx, TypeExpression, map[string]any{
		"expression": `lead.budget > 5000 && variables.tier == "enterprise"`,
	}, env)
	require.NoError(t, err)
	assert.True(t, result)

	result, err = registry.Evaluate(ctx, TypeExpression, map[string]any{
		"expression": `trigger.source == "cold_call"`,
	}, env)
	require.NoError(t, err)
	assert.False(t, result)
}

func TestExpression_RequiresExpression(t *testing.T) {
	registry := NewRegistry(testLogger(), false)

	_, err := registry.Evaluate(context.Background(), TypeExpression, map[string]any{}, Env{Lead: testLead()})
	require.Error(t, err)

	var configErr *ConfigError
	assert.ErrorAs(t, err, &configErr)
}

func TestExpression_CompileError(t *testing.T) {
	registry := NewRegistry(testLogger(), false)

	_, err := registry.Evaluate(context.Background(), TypeExpression, map[string]any{
		"expression": "lead.budget >",
	}, Env{Lead: testLead()})
	require.Error(t, err)
}

func TestUnknownType_Lenient(t *testing.T) {
	registry := NewRegistry(testLogger(), false)

	result, err := registry.Evaluate(context.Background(), "sentiment_positive", nil, Env{Lead: testLead()})
	require.NoError(t, err)
	assert.True(t, result)
}

func TestUnknownType_Strict(t *testing.T) {
	registry := NewRegistry(testLogger(), true)

	_, err := registry.Evaluate(context.Background(), "sentiment_positive", nil, Env{Lead: testLead()})
	require.Error(t, err)

	var unknownErr *UnknownTypeError
	assert.ErrorAs(t, err, &unknownErr)
}

func TestRegister_CustomEvaluator(t *testing.T) {
	registry := NewRegistry(testLogger(), true)

	err := registry.Register("always_false", EvaluatorFunc(func(_ context.Context, _ map[string]any, _ Env) (bool, error) {
		return false, nil
	}), "")
	require.NoError(t, err)

	result, err := registry.Evaluate(context.Background(), "always_false", nil, Env{})
	require.NoError(t, err)
	assert.False(t, result)
}
