package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/cadencehq/cadence/pkg/models"
	"github.com/cadencehq/cadence/pkg/persistence"
	"github.com/cadencehq/cadence/pkg/persistence/postgresql"
	"github.com/cadencehq/cadence/pkg/testutil"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Drop tables in reverse dependency order (children first, parents last)
	for _, table := range []string{"bookings", "execution_logs", "execution_steps", "executions", "workflow_edges", "workflow_nodes", "leads", "workflows", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("cadence_test"),
			postgres.WithUsername("cadence"),
			postgres.WithPassword("cadence"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = store.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return store, ctx, databaseURL
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	for _, table := range []string{"workflows", "workflow_nodes", "workflow_edges", "leads", "executions", "execution_steps", "execution_logs", "bookings"} {
		var exists bool

		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}
}

func TestWorkflowRoundTrip(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	node := testutil.CreateTestNode(testutil.WithID("intro"), testutil.WithOrder(1))
	trigger := testutil.CreateTestNode(testutil.WithID("trigger"), testutil.WithType(models.NodeTypeTrigger), testutil.WithOrder(0))

	wf := testutil.CreateTestWorkflow(
		testutil.WithNodes(trigger, node),
		testutil.WithEdges(testutil.CreateTestEdge("trigger", "intro", "")),
		testutil.WithVariables(map[string]any{"email_subject": "Hi"}),
	)

	require.NoError(t, store.SaveWorkflow(ctx, wf))

	loaded, err := store.WorkflowByID(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, wf.Name, loaded.Name)
	assert.Equal(t, models.WorkflowStatusPublished, loaded.Status)
	assert.Equal(t, "Hi", loaded.Variables["email_subject"])
	require.Len(t, loaded.Nodes, 2)
	assert.Equal(t, "trigger", loaded.Nodes[0].ID)
	require.Len(t, loaded.Edges, 1)
	assert.Equal(t, "", loaded.Edges[0].Handle())

	// Saving again replaces the graph instead of accumulating rows.
	wf.Nodes = wf.Nodes[:1]
	wf.Edges = nil
	require.NoError(t, store.SaveWorkflow(ctx, wf))

	loaded, err = store.WorkflowByID(ctx, wf.ID)
	require.NoError(t, err)
	assert.Len(t, loaded.Nodes, 1)
	assert.Empty(t, loaded.Edges)
}

func TestWorkflowNotFound(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	_, err := store.WorkflowByID(ctx, uuid.New().String())
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrWorkflowNotFound)
}

func TestExecutionLifecycle(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	wf := testutil.CreateTestWorkflow()
	lead := testutil.CreateTestLead()
	require.NoError(t, store.SaveWorkflow(ctx, wf))
	require.NoError(t, store.SaveLead(ctx, lead))

	now := time.Now().UTC().Truncate(time.Millisecond)
	execution := &models.Execution{
		ID:          "exec-" + uuid.New().String(),
		WorkflowID:  wf.ID,
		LeadID:      lead.ID,
		Status:      models.ExecutionStatusQueued,
		TriggerData: map[string]any{"source": "import"},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, store.SaveExecution(ctx, execution))

	loaded, err := store.ExecutionByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusQueued, loaded.Status)
	assert.Equal(t, "import", loaded.TriggerData["source"])

	resumeAt := now.Add(3 * 24 * time.Hour)
	execution.Status = models.ExecutionStatusPaused
	execution.ResumeFrom = 3
	execution.ResumeAt = &resumeAt
	require.NoError(t, store.SaveExecution(ctx, execution))

	due, err := store.PausedExecutionsDue(ctx, resumeAt.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, execution.ID, due[0].ID)
	assert.Equal(t, 3, due[0].ResumeFrom)

	due, err = store.PausedExecutionsDue(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestStepLedger(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	wf := testutil.CreateTestWorkflow()
	lead := testutil.CreateTestLead()
	require.NoError(t, store.SaveWorkflow(ctx, wf))
	require.NoError(t, store.SaveLead(ctx, lead))

	now := time.Now().UTC().Truncate(time.Millisecond)
	execution := &models.Execution{
		ID:         "exec-" + uuid.New().String(),
		WorkflowID: wf.ID,
		LeadID:     lead.ID,
		Status:     models.ExecutionStatusRunning,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, store.SaveExecution(ctx, execution))

	step := &models.ExecutionStep{
		ID:          "step-" + uuid.New().String(),
		ExecutionID: execution.ID,
		NodeID:      "intro",
		NodeType:    models.NodeTypeSendEmail,
		StepNumber:  1,
		Status:      models.StepStatusPending,
		StartedAt:   now,
	}
	require.NoError(t, store.SaveStep(ctx, step))

	step.Status = models.StepStatusCompleted
	completedAt := now.Add(time.Second)
	step.CompletedAt = &completedAt
	step.DurationMs = 1000
	step.OutputData = map[string]any{models.OutputKeyMessageID: "msg-1"}
	require.NoError(t, store.SaveStep(ctx, step))

	// A finished step is frozen.
	step.Status = models.StepStatusFailed
	err := store.SaveStep(ctx, step)
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrStepImmutable)

	steps, err := store.StepsByExecution(ctx, execution.ID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, models.StepStatusCompleted, steps[0].Status)
	assert.Equal(t, "msg-1", steps[0].OutputData[models.OutputKeyMessageID])

	require.NoError(t, store.AppendExecutionLog(ctx, &models.ExecutionLog{
		ID:          "log-" + uuid.New().String(),
		ExecutionID: execution.ID,
		Level:       "warn",
		Message:     "skipped node",
		CreatedAt:   now,
	}))

	logs, err := store.ExecutionLogs(ctx, execution.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "warn", logs[0].Level)
}

func TestLeadAndBookings(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	lead := testutil.CreateTestLead()
	require.NoError(t, store.SaveLead(ctx, lead))

	loaded, err := store.LeadByID(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, lead.Email, loaded.Email)
	assert.Equal(t, models.LeadStatusNew, loaded.Status)
	assert.InDelta(t, lead.Budget, loaded.Budget, 0.001)

	now := time.Now().UTC().Truncate(time.Millisecond)
	loaded.Status = models.LeadStatusContacted
	loaded.LastContactedAt = &now
	require.NoError(t, store.SaveLead(ctx, loaded))

	reloaded, err := store.LeadByID(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeadStatusContacted, reloaded.Status)
	require.NotNil(t, reloaded.LastContactedAt)

	count, err := store.BookingCountByLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, store.SaveBooking(ctx, &models.Booking{
		ID:        "booking-" + uuid.New().String(),
		LeadID:    lead.ID,
		StartsAt:  now.Add(24 * time.Hour),
		CreatedAt: now,
	}))

	count, err = store.BookingCountByLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = store.LeadByID(ctx, "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrLeadNotFound)
}
