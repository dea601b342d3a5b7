// Package persistence provides the data storage abstraction consumed by the
// workflow engine.
package persistence

import (
	"context"
	"time"

	"github.com/cadencehq/cadence/pkg/models"
)

// Persistence is the narrow storage contract the engine depends on. The
// engine only ever mutates records belonging to the execution it currently
// owns, so implementations need read-committed consistency but no in-process
// locking beyond their own internals.
type Persistence interface {
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
	SaveWorkflow(ctx context.Context, workflow *models.Workflow) error
	Workflows(ctx context.Context) ([]*models.Workflow, error)

	ExecutionByID(ctx context.Context, id string) (*models.Execution, error)
	SaveExecution(ctx context.Context, execution *models.Execution) error
	// PausedExecutionsDue returns paused executions whose resume time passed
	// before the given instant. Used by the janitor to requeue resume jobs
	// lost by the delayed-job facility.
	PausedExecutionsDue(ctx context.Context, before time.Time) ([]*models.Execution, error)

	SaveStep(ctx context.Context, step *models.ExecutionStep) error
	StepsByExecution(ctx context.Context, executionID string) ([]*models.ExecutionStep, error)

	AppendExecutionLog(ctx context.Context, entry *models.ExecutionLog) error
	ExecutionLogs(ctx context.Context, executionID string, limit int) ([]*models.ExecutionLog, error)

	LeadByID(ctx context.Context, id string) (*models.Lead, error)
	SaveLead(ctx context.Context, lead *models.Lead) error

	SaveBooking(ctx context.Context, booking *models.Booking) error
	BookingCountByLead(ctx context.Context, leadID string) (int, error)

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
