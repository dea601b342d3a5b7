// Package postgresql provides the PostgreSQL persistence implementation.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	// Registers the postgres driver.
	_ "github.com/lib/pq"

	"github.com/cadencehq/cadence/pkg/models"
	"github.com/cadencehq/cadence/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db            *sql.DB
	logger        *slog.Logger
	workflowRepo  *WorkflowRepository
	executionRepo *ExecutionRepository
	leadRepo      *LeadRepository
}

// NewPersistence opens the database, runs migrations and wires the
// repositories.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:            database,
		logger:        logger,
		workflowRepo:  NewWorkflowRepository(database, logger),
		executionRepo: NewExecutionRepository(database, logger),
		leadRepo:      NewLeadRepository(database, logger),
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	return p.workflowRepo.GetByID(ctx, id)
}

func (p *Persistence) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	return p.workflowRepo.Save(ctx, workflow)
}

func (p *Persistence) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	return p.workflowRepo.GetAll(ctx)
}

func (p *Persistence) ExecutionByID(ctx context.Context, id string) (*models.Execution, error) {
	return p.executionRepo.GetByID(ctx, id)
}

func (p *Persistence) SaveExecution(ctx context.Context, execution *models.Execution) error {
	return p.executionRepo.Save(ctx, execution)
}

func (p *Persistence) PausedExecutionsDue(ctx context.Context, before time.Time) ([]*models.Execution, error) {
	return p.executionRepo.PausedDue(ctx, before)
}

func (p *Persistence) SaveStep(ctx context.Context, step *models.ExecutionStep) error {
	return p.executionRepo.SaveStep(ctx, step)
}

func (p *Persistence) StepsByExecution(ctx context.Context, executionID string) ([]*models.ExecutionStep, error) {
	return p.executionRepo.StepsByExecution(ctx, executionID)
}

func (p *Persistence) AppendExecutionLog(ctx context.Context, entry *models.ExecutionLog) error {
	return p.executionRepo.AppendLog(ctx, entry)
}

func (p *Persistence) ExecutionLogs(ctx context.Context, executionID string, limit int) ([]*models.ExecutionLog, error) {
	return p.executionRepo.Logs(ctx, executionID, limit)
}

func (p *Persistence) LeadByID(ctx context.Context, id string) (*models.Lead, error) {
	return p.leadRepo.GetByID(ctx, id)
}

func (p *Persistence) SaveLead(ctx context.Context, lead *models.Lead) error {
	return p.leadRepo.Save(ctx, lead)
}

func (p *Persistence) SaveBooking(ctx context.Context, booking *models.Booking) error {
	return p.leadRepo.SaveBooking(ctx, booking)
}

func (p *Persistence) BookingCountByLead(ctx context.Context, leadID string) (int, error) {
	return p.leadRepo.BookingCount(ctx, leadID)
}
