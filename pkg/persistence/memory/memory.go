// Package memory provides an in-memory persistence implementation for tests
// and local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cadencehq/cadence/pkg/models"
	"github.com/cadencehq/cadence/pkg/persistence"
)

// Persistence keeps all records in process memory, guarded by a single lock.
type Persistence struct {
	mu         sync.RWMutex
	workflows  map[string]*models.Workflow
	executions map[string]*models.Execution
	steps      map[string][]*models.ExecutionStep
	logs       map[string][]*models.ExecutionLog
	leads      map[string]*models.Lead
	bookings   map[string][]*models.Booking
}

func NewPersistence() *Persistence {
	return &Persistence{
		workflows:  make(map[string]*models.Workflow),
		executions: make(map[string]*models.Execution),
		steps:      make(map[string][]*models.ExecutionStep),
		logs:       make(map[string][]*models.ExecutionLog),
		leads:      make(map[string]*models.Lead),
		bookings:   make(map[string][]*models.Booking),
	}
}

func (p *Persistence) WorkflowByID(_ context.Context, id string) (*models.Workflow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	workflow, ok := p.workflows[id]
	if !ok {
		return nil, persistence.NewStoreError("WorkflowByID", id, persistence.ErrWorkflowNotFound)
	}

	return workflow, nil
}

func (p *Persistence) SaveWorkflow(_ context.Context, workflow *models.Workflow) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.workflows[workflow.ID] = workflow

	return nil
}

func (p *Persistence) Workflows(_ context.Context) ([]*models.Workflow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	workflows := make([]*models.Workflow, 0, len(p.workflows))
	for _, workflow := range p.workflows {
		workflows = append(workflows, workflow)
	}

	sort.Slice(workflows, func(i, j int) bool { return workflows[i].ID < workflows[j].ID })

	return workflows, nil
}

func (p *Persistence) ExecutionByID(_ context.Context, id string) (*models.Execution, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	execution, ok := p.executions[id]
	if !ok {
		return nil, persistence.NewStoreError("ExecutionByID", id, persistence.ErrExecutionNotFound)
	}

	clone := *execution

	return &clone, nil
}

func (p *Persistence) SaveExecution(_ context.Context, execution *models.Execution) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	clone := *execution
	p.executions[execution.ID] = &clone

	return nil
}

func (p *Persistence) PausedExecutionsDue(_ context.Context, before time.Time) ([]*models.Execution, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	due := make([]*models.Execution, 0)

	for _, execution := range p.executions {
		if execution.Status != models.ExecutionStatusPaused || execution.ResumeAt == nil {
			continue
		}

		if execution.ResumeAt.Before(before) {
			clone := *execution
			due = append(due, &clone)
		}
	}

	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })

	return due, nil
}

func (p *Persistence) SaveStep(_ context.Context, step *models.ExecutionStep) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	steps := p.steps[step.ExecutionID]
	for i, existing := range steps {
		if existing.ID != step.ID {
			continue
		}

		if existing.Status == models.StepStatusCompleted || existing.Status == models.StepStatusFailed {
			return persistence.NewStoreError("SaveStep", step.ID, persistence.ErrStepImmutable)
		}

		clone := *step
		steps[i] = &clone

		return nil
	}

	clone := *step
	p.steps[step.ExecutionID] = append(steps, &clone)

	return nil
}

func (p *Persistence) StepsByExecution(_ context.Context, executionID string) ([]*models.ExecutionStep, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	steps := make([]*models.ExecutionStep, 0, len(p.steps[executionID]))

	for _, step := range p.steps[executionID] {
		clone := *step
		steps = append(steps, &clone)
	}

	sort.Slice(steps, func(i, j int) bool { return steps[i].StepNumber < steps[j].StepNumber })

	return steps, nil
}

func (p *Persistence) AppendExecutionLog(_ context.Context, entry *models.ExecutionLog) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	clone := *entry
	p.logs[entry.ExecutionID] = append(p.logs[entry.ExecutionID], &clone)

	return nil
}

func (p *Persistence) ExecutionLogs(_ context.Context, executionID string, limit int) ([]*models.ExecutionLog, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entries := p.logs[executionID]
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}

	out := make([]*models.ExecutionLog, 0, len(entries))

	for _, entry := range entries {
		clone := *entry
		out = append(out, &clone)
	}

	return out, nil
}

func (p *Persistence) LeadByID(_ context.Context, id string) (*models.Lead, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	lead, ok := p.leads[id]
	if !ok {
		return nil, persistence.NewStoreError("LeadByID", id, persistence.ErrLeadNotFound)
	}

	clone := *lead

	return &clone, nil
}

func (p *Persistence) SaveLead(_ context.Context, lead *models.Lead) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	clone := *lead
	p.leads[lead.ID] = &clone

	return nil
}

func (p *Persistence) SaveBooking(_ context.Context, booking *models.Booking) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	clone := *booking
	p.bookings[booking.LeadID] = append(p.bookings[booking.LeadID], &clone)

	return nil
}

func (p *Persistence) BookingCountByLead(_ context.Context, leadID string) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.bookings[leadID]), nil
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}
