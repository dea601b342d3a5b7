package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cadencehq/cadence/pkg/conditions"
	"github.com/cadencehq/cadence/pkg/email"
	"github.com/cadencehq/cadence/pkg/eventbus"
	"github.com/cadencehq/cadence/pkg/events"
	"github.com/cadencehq/cadence/pkg/models"
	"github.com/cadencehq/cadence/pkg/otelhelper"
	"github.com/cadencehq/cadence/pkg/persistence"
	"github.com/cadencehq/cadence/pkg/queue"
	"github.com/cadencehq/cadence/pkg/template"
)

// JobKindRun is the delayed-job kind that re-invokes the engine.
const JobKindRun = "execution.run"

// DefaultDelay applies when neither the delay node nor the workflow
// configures a wait duration.
const DefaultDelay = time.Hour

var tracer = otel.Tracer("cadence/workflow")

// RunJob is the payload of a queued engine invocation.
type RunJob struct {
	ExecutionID string `json:"execution_id"`
	FromStep    int    `json:"from_step"`
}

// DedupeKey derives the queue deduplication key, guaranteeing at-most-one
// in-flight job per execution position.
func (j RunJob) DedupeKey() string {
	return fmt.Sprintf("%s:%d", j.ExecutionID, j.FromStep)
}

// Config holds the engine's collaborators. Persistence, Queue, Sender,
// Renderer and Conditions are required; the rest default sensibly.
type Config struct {
	Persistence persistence.Persistence
	Queue       queue.DelayedQueue
	Sender      email.Sender
	Renderer    template.Renderer
	Conditions  *conditions.Registry
	Publisher   eventbus.EventPublisher
	Clock       clockwork.Clock
	Logger      *slog.Logger
	WorkerID    string

	// StrictTypes makes unrecognized node types fatal instead of no-ops.
	StrictTypes bool
	// DefaultDelay overrides the engine-wide delay fallback.
	DefaultDelay time.Duration
}

// Engine walks workflow graphs. It is stateless across invocations: every
// Execute call reconstructs what it needs from the step ledger, so a process
// restart in the middle of a multi-day wait loses nothing.
type Engine struct {
	persistence  persistence.Persistence
	queue        queue.DelayedQueue
	sender       email.Sender
	renderer     template.Renderer
	conditions   *conditions.Registry
	publisher    eventbus.EventPublisher
	clock        clockwork.Clock
	logger       *slog.Logger
	workerID     string
	strictTypes  bool
	defaultDelay time.Duration
}

func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Persistence == nil {
		return nil, errors.New("persistence is required")
	}

	if cfg.Queue == nil {
		return nil, errors.New("queue is required")
	}

	if cfg.Sender == nil {
		return nil, errors.New("email sender is required")
	}

	if cfg.Renderer == nil {
		cfg.Renderer = template.NewTextRenderer()
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.Conditions == nil {
		cfg.Conditions = conditions.NewRegistry(cfg.Logger, cfg.StrictTypes)
	}

	if cfg.Publisher == nil {
		cfg.Publisher = eventbus.NopPublisher{}
	}

	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	if cfg.DefaultDelay <= 0 {
		cfg.DefaultDelay = DefaultDelay
	}

	return &Engine{
		persistence:  cfg.Persistence,
		queue:        cfg.Queue,
		sender:       cfg.Sender,
		renderer:     cfg.Renderer,
		conditions:   cfg.Conditions,
		publisher:    cfg.Publisher,
		clock:        cfg.Clock,
		logger:       cfg.Logger.With("module", "workflow_engine"),
		workerID:     cfg.WorkerID,
		strictTypes:  cfg.StrictTypes,
		defaultDelay: cfg.DefaultDelay,
	}, nil
}

// Trigger creates a queued execution of the workflow for the lead and
// enqueues its first run.
func (e *Engine) Trigger(ctx context.Context, leadID, workflowID string, triggerData map[string]any) (string, error) {
	ctx, span := otelhelper.StartSpan(ctx, tracer, "workflow.trigger",
		attribute.String(otelhelper.WorkflowIDKey, workflowID),
		attribute.String(otelhelper.LeadIDKey, leadID),
	)
	defer span.End()

	workflow, err := e.persistence.WorkflowByID(ctx, workflowID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch workflow %s: %w", workflowID, err)
	}

	if workflow.Status != models.WorkflowStatusPublished {
		return "", fmt.Errorf("%w: %s", ErrWorkflowNotExecutable, workflowID)
	}

	err = ValidateGraph(workflow)
	if err != nil {
		return "", fmt.Errorf("workflow %s has an invalid graph: %w", workflowID, err)
	}

	_, err = e.persistence.LeadByID(ctx, leadID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch lead %s: %w", leadID, err)
	}

	now := e.clock.Now().UTC()
	execution := &models.Execution{
		ID:          "exec-" + uuid.New().String(),
		WorkflowID:  workflowID,
		LeadID:      leadID,
		Status:      models.ExecutionStatusQueued,
		TriggerData: triggerData,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = e.persistence.SaveExecution(ctx, execution)
	if err != nil {
		return "", fmt.Errorf("failed to create execution: %w", err)
	}

	err = e.enqueueRun(ctx, execution.ID, 0, 0)
	if err != nil {
		return "", err
	}

	queued := events.ExecutionQueued{
		BaseEvent:   events.NewBaseEvent(events.ExecutionQueuedEvent, workflowID, execution.ID),
		LeadID:      leadID,
		TriggerData: triggerData,
	}
	e.publish(ctx, execution, queued)

	e.logger.InfoContext(ctx, "Execution queued",
		"execution_id", execution.ID,
		"workflow_id", workflowID,
		"lead_id", leadID,
	)

	return execution.ID, nil
}

// Execute is the engine's sole re-entrant entry point. fromStep filters the
// graph to nodes at or past that execution order; 0 runs from the beginning.
// It returns nil on completion, suspension or a terminal no-op, and an error
// only when the execution failed and the caller's retry policy should see it.
func (e *Engine) Execute(ctx context.Context, executionID string, fromStep int) error {
	ctx, span := tracer.Start(ctx, "workflow.execute", trace.WithAttributes(
		attribute.String(otelhelper.ExecutionIDKey, executionID),
		attribute.String(otelhelper.WorkerIDKey, e.workerID),
		attribute.Int("cadence.from_step", fromStep),
	))
	defer span.End()

	logger := e.logger.With("execution_id", executionID, "from_step", fromStep)

	execution, err := e.persistence.ExecutionByID(ctx, executionID)
	if err != nil {
		// Missing execution is fatal at entry: no step record is created.
		return fmt.Errorf("failed to fetch execution %s: %w", executionID, err)
	}

	if execution.Status == models.ExecutionStatusCancelled {
		logger.InfoContext(ctx, "Ignoring run of cancelled execution")

		return nil
	}

	if execution.Finished() {
		logger.InfoContext(ctx, "Execution already finished", "status", execution.Status)

		return nil
	}

	run, err := e.prepareRun(ctx, logger, execution, fromStep)
	if err != nil {
		failErr := e.failExecution(ctx, execution, "", err)
		otelhelper.SetError(span, failErr)

		return failErr
	}

	for _, node := range nodesInOrder(run.workflow) {
		if node.ExecutionOrder < fromStep {
			continue
		}

		if run.completedNodes[node.ID] {
			// Already in the ledger from a previous invocation; never redo.
			continue
		}

		if run.reachable != nil {
			if _, eligible := run.reachable[node.ID]; !eligible {
				logger.DebugContext(ctx, "Skipping pruned node", "node_id", node.ID)

				continue
			}
		}

		outcome, err := e.runStep(ctx, run, node)
		if err != nil {
			failErr := e.failExecution(ctx, run.execution, node.ID, err)
			otelhelper.SetError(span, failErr)

			return failErr
		}

		if outcome.reachable != nil {
			run.reachable = outcome.reachable
		}

		if outcome.pause {
			return e.pauseExecution(ctx, run, node, outcome)
		}
	}

	return e.completeExecution(ctx, run)
}

// Cancel abandons an in-flight execution. Delayed resume jobs already queued
// become no-ops. Cancelling an already-cancelled execution is a no-op;
// cancelling a completed or failed one is an error.
func (e *Engine) Cancel(ctx context.Context, executionID string) error {
	execution, err := e.persistence.ExecutionByID(ctx, executionID)
	if err != nil {
		return fmt.Errorf("failed to fetch execution %s: %w", executionID, err)
	}

	if execution.Status == models.ExecutionStatusCancelled {
		return nil
	}

	if execution.Finished() {
		return fmt.Errorf("%w: %s is %s", ErrExecutionFinished, executionID, execution.Status)
	}

	now := e.clock.Now().UTC()
	execution.Status = models.ExecutionStatusCancelled
	execution.CompletedAt = &now
	execution.UpdatedAt = now

	err = e.persistence.SaveExecution(ctx, execution)
	if err != nil {
		return fmt.Errorf("failed to cancel execution %s: %w", executionID, err)
	}

	cancelled := events.ExecutionCancelled{
		BaseEvent: events.NewBaseEvent(events.ExecutionCancelledEvent, execution.WorkflowID, executionID),
	}
	e.publish(ctx, execution, cancelled)

	e.logger.InfoContext(ctx, "Execution cancelled", "execution_id", executionID)

	return nil
}

// Status is the execution view exposed to callers.
type Status struct {
	Execution  *models.Execution       `json:"execution"`
	Steps      []*models.ExecutionStep `json:"steps"`
	RecentLogs []*models.ExecutionLog  `json:"recent_logs"`
}

const recentLogLimit = 20

func (e *Engine) GetStatus(ctx context.Context, executionID string) (*Status, error) {
	execution, err := e.persistence.ExecutionByID(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch execution %s: %w", executionID, err)
	}

	steps, err := e.persistence.StepsByExecution(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch steps for execution %s: %w", executionID, err)
	}

	logs, err := e.persistence.ExecutionLogs(ctx, executionID, recentLogLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch logs for execution %s: %w", executionID, err)
	}

	return &Status{Execution: execution, Steps: steps, RecentLogs: logs}, nil
}

// QueueHandler adapts Execute to the delayed-job consumption contract.
func (e *Engine) QueueHandler() queue.Handler {
	return func(ctx context.Context, payload []byte) error {
		var job RunJob

		err := json.Unmarshal(payload, &job)
		if err != nil {
			return fmt.Errorf("failed to decode run job: %w", err)
		}

		return e.Execute(ctx, job.ExecutionID, job.FromStep)
	}
}

// runState is the per-invocation execution context, threaded explicitly
// through each dispatch instead of hiding it on the execution record.
type runState struct {
	execution      *models.Execution
	workflow       *models.Workflow
	lead           *models.Lead
	logger         *slog.Logger
	nextStepNumber int
	stepsExecuted  int
	completedNodes map[string]bool
	// reachable is nil until a condition fires; nil means every node is
	// eligible. Once set it only ever shrinks the effective eligible set.
	reachable map[string]struct{}
}

// prepareRun loads the graph, lead and ledger, flips the execution to
// running, and rebuilds branch decisions from persisted condition steps.
func (e *Engine) prepareRun(ctx context.Context, logger *slog.Logger, execution *models.Execution, fromStep int) (*runState, error) {
	workflow, err := e.persistence.WorkflowByID(ctx, execution.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch workflow %s: %w", execution.WorkflowID, err)
	}

	err = ValidateGraph(workflow)
	if err != nil {
		return nil, fmt.Errorf("workflow %s has an invalid graph: %w", workflow.ID, err)
	}

	lead, err := e.persistence.LeadByID(ctx, execution.LeadID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch lead %s: %w", execution.LeadID, err)
	}

	resumed := execution.Status == models.ExecutionStatusPaused

	now := e.clock.Now().UTC()
	execution.Status = models.ExecutionStatusRunning
	execution.ResumeAt = nil
	execution.ResumeFrom = 0
	execution.UpdatedAt = now

	if execution.StartedAt == nil {
		execution.StartedAt = &now
	}

	err = e.persistence.SaveExecution(ctx, execution)
	if err != nil {
		return nil, fmt.Errorf("failed to mark execution running: %w", err)
	}

	if resumed {
		event := events.ExecutionResumed{
			BaseEvent: events.NewBaseEvent(events.ExecutionResumedEvent, workflow.ID, execution.ID),
			FromStep:  fromStep,
		}
		e.publish(ctx, execution, event)

		logger.InfoContext(ctx, "Execution resumed")
	} else {
		event := events.ExecutionStarted{
			BaseEvent: events.NewBaseEvent(events.ExecutionStartedEvent, workflow.ID, execution.ID),
			LeadID:    execution.LeadID,
			FromStep:  fromStep,
		}
		e.publish(ctx, execution, event)

		logger.InfoContext(ctx, "Execution started")
	}

	steps, err := e.persistence.StepsByExecution(ctx, execution.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch step ledger: %w", err)
	}

	completedNodes := make(map[string]bool, len(steps))
	maxStepNumber := 0

	for _, step := range steps {
		if step.StepNumber > maxStepNumber {
			maxStepNumber = step.StepNumber
		}

		if step.Status == models.StepStatusCompleted {
			completedNodes[step.NodeID] = true
		}
	}

	return &runState{
		execution:      execution,
		workflow:       workflow,
		lead:           lead,
		logger:         logger,
		nextStepNumber: maxStepNumber + 1,
		completedNodes: completedNodes,
		reachable:      rebuildReachable(workflow, steps),
	}, nil
}

// rebuildReachable replays persisted condition decisions in step order. Each
// decision replaces the set with the nodes reachable from the chosen edge's
// target, so the last decision governs.
func rebuildReachable(workflow *models.Workflow, steps []*models.ExecutionStep) map[string]struct{} {
	var reachable map[string]struct{}

	for _, step := range steps {
		if step.NodeType != models.NodeTypeCondition || step.Status != models.StepStatusCompleted {
			continue
		}

		nextNode, _ := step.OutputData[models.OutputKeyNextNode].(string)
		if nextNode == "" {
			reachable = map[string]struct{}{}
		} else {
			reachable = ReachableFrom(workflow, nextNode)
		}
	}

	return reachable
}

// runStep records one node dispatch in the ledger: pending, running, then
// completed or failed. The step record is created before any side effect so
// a crash always leaves a trace.
func (e *Engine) runStep(ctx context.Context, run *runState, node *models.WorkflowNode) (stepOutcome, error) {
	ctx, span := otelhelper.StartSpan(ctx, tracer, "workflow.step",
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, node.Type),
		attribute.Int(otelhelper.StepNumberKey, run.nextStepNumber),
	)
	defer span.End()

	startedAt := e.clock.Now().UTC()

	step := &models.ExecutionStep{
		ID:          "step-" + uuid.New().String(),
		ExecutionID: run.execution.ID,
		NodeID:      node.ID,
		NodeType:    node.Type,
		StepNumber:  run.nextStepNumber,
		Status:      models.StepStatusPending,
		StartedAt:   startedAt,
	}
	run.nextStepNumber++

	err := e.persistence.SaveStep(ctx, step)
	if err != nil {
		return stepOutcome{}, fmt.Errorf("failed to create step for node %s: %w", node.ID, err)
	}

	step.Status = models.StepStatusRunning

	err = e.persistence.SaveStep(ctx, step)
	if err != nil {
		return stepOutcome{}, fmt.Errorf("failed to start step for node %s: %w", node.ID, err)
	}

	run.logger.InfoContext(ctx, "Dispatching node",
		"node_id", node.ID,
		"node_type", node.Type,
		"step_number", step.StepNumber,
	)

	outcome, dispatchErr := e.dispatch(ctx, run, node)

	completedAt := e.clock.Now().UTC()
	step.CompletedAt = &completedAt
	step.DurationMs = completedAt.Sub(startedAt).Milliseconds()

	if dispatchErr != nil {
		otelhelper.SetError(span, dispatchErr)
		e.failStep(ctx, run, step, dispatchErr)

		return stepOutcome{}, dispatchErr
	}

	step.Status = models.StepStatusCompleted
	step.OutputData = outcome.output

	err = e.persistence.SaveStep(ctx, step)
	if err != nil {
		return stepOutcome{}, fmt.Errorf("failed to complete step for node %s: %w", node.ID, err)
	}

	run.completedNodes[node.ID] = true
	run.stepsExecuted++

	return outcome, nil
}

func (e *Engine) pauseExecution(ctx context.Context, run *runState, node *models.WorkflowNode, outcome stepOutcome) error {
	// A trailing delay has nothing to resume into; finish instead of
	// pausing forever.
	if outcome.resumeFrom < 0 {
		run.logger.InfoContext(ctx, "Delay node has no successor, completing", "node_id", node.ID)

		return e.completeExecution(ctx, run)
	}

	now := e.clock.Now().UTC()
	resumeAt := now.Add(outcome.delay)

	execution := run.execution
	execution.Status = models.ExecutionStatusPaused
	execution.ResumeFrom = outcome.resumeFrom
	execution.ResumeAt = &resumeAt
	execution.UpdatedAt = now

	err := e.persistence.SaveExecution(ctx, execution)
	if err != nil {
		return fmt.Errorf("failed to pause execution %s: %w", execution.ID, err)
	}

	err = e.enqueueRun(ctx, execution.ID, outcome.resumeFrom, outcome.delay)
	if err != nil {
		return err
	}

	paused := events.ExecutionPaused{
		BaseEvent:  events.NewBaseEvent(events.ExecutionPausedEvent, execution.WorkflowID, execution.ID),
		NodeID:     node.ID,
		ResumeFrom: outcome.resumeFrom,
		ResumeAt:   resumeAt,
		DelayMs:    outcome.delay.Milliseconds(),
	}
	e.publish(ctx, execution, paused)

	run.logger.InfoContext(ctx, "Execution paused",
		"node_id", node.ID,
		"resume_from", outcome.resumeFrom,
		"resume_at", resumeAt,
	)

	return nil
}

func (e *Engine) completeExecution(ctx context.Context, run *runState) error {
	now := e.clock.Now().UTC()

	execution := run.execution
	execution.Status = models.ExecutionStatusCompleted
	execution.CompletedAt = &now
	execution.UpdatedAt = now

	err := e.persistence.SaveExecution(ctx, execution)
	if err != nil {
		return fmt.Errorf("failed to complete execution %s: %w", execution.ID, err)
	}

	completed := events.ExecutionCompleted{
		BaseEvent:     events.NewBaseEvent(events.ExecutionCompletedEvent, execution.WorkflowID, execution.ID),
		DurationMs:    executionDuration(execution),
		StepsExecuted: run.stepsExecuted,
	}
	e.publish(ctx, execution, completed)

	run.logger.InfoContext(ctx, "Execution completed", "steps_executed", run.stepsExecuted)

	return nil
}

// failStep persists the failed step with the error and a stack-like detail.
// Persistence errors here are logged, not returned: the dispatch error is
// the one the caller needs to see.
func (e *Engine) failStep(ctx context.Context, run *runState, step *models.ExecutionStep, dispatchErr error) {
	step.Status = models.StepStatusFailed
	step.ErrorMessage = dispatchErr.Error()
	step.ErrorDetail = errorDetail(dispatchErr)

	err := e.persistence.SaveStep(ctx, step)
	if err != nil {
		run.logger.ErrorContext(ctx, "Failed to persist failed step", "step_id", step.ID, "error", err)
	}
}

// failExecution routes any unhandled dispatch error to the execution record
// and diagnostic log, then rethrows so the external queue's retry policy
// decides what happens next. There is no in-process retry of a single node.
func (e *Engine) failExecution(ctx context.Context, execution *models.Execution, nodeID string, cause error) error {
	now := e.clock.Now().UTC()
	execution.Status = models.ExecutionStatusFailed
	execution.ErrorMessage = cause.Error()
	execution.CompletedAt = &now
	execution.UpdatedAt = now

	err := e.persistence.SaveExecution(ctx, execution)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to persist failed execution", "execution_id", execution.ID, "error", err)
	}

	e.appendLog(ctx, execution.ID, nodeID, "error", cause.Error())

	failed := events.ExecutionFailed{
		BaseEvent:  events.NewBaseEvent(events.ExecutionFailedEvent, execution.WorkflowID, execution.ID),
		NodeID:     nodeID,
		Error:      cause.Error(),
		DurationMs: executionDuration(execution),
	}
	e.publish(ctx, execution, failed)

	e.logger.ErrorContext(ctx, "Execution failed",
		"execution_id", execution.ID,
		"node_id", nodeID,
		"error", cause,
	)

	return fmt.Errorf("execution %s failed: %w", execution.ID, cause)
}

// RequeueOverdue re-enqueues resume jobs for paused executions whose resume
// time passed more than grace ago. The delayed queue is at-least-once but
// can still lose jobs across crashes; dedupe keys make this safe to run
// repeatedly. Returns how many executions were requeued.
func (e *Engine) RequeueOverdue(ctx context.Context, grace time.Duration) (int, error) {
	before := e.clock.Now().UTC().Add(-grace)

	overdue, err := e.persistence.PausedExecutionsDue(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("failed to list overdue executions: %w", err)
	}

	requeued := 0

	for _, execution := range overdue {
		err = e.enqueueRun(ctx, execution.ID, execution.ResumeFrom, 0)
		if err != nil {
			e.logger.ErrorContext(ctx, "Failed to requeue overdue execution",
				"execution_id", execution.ID,
				"error", err,
			)

			continue
		}

		e.logger.WarnContext(ctx, "Requeued overdue execution",
			"execution_id", execution.ID,
			"resume_from", execution.ResumeFrom,
			"resume_at", execution.ResumeAt,
		)

		requeued++
	}

	return requeued, nil
}

func (e *Engine) enqueueRun(ctx context.Context, executionID string, fromStep int, delay time.Duration) error {
	job := RunJob{ExecutionID: executionID, FromStep: fromStep}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal run job: %w", err)
	}

	err = e.queue.Enqueue(ctx, JobKindRun, payload, queue.Options{
		Delay:     delay,
		DedupeKey: job.DedupeKey(),
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue run job for execution %s: %w", executionID, err)
	}

	return nil
}

func (e *Engine) appendLog(ctx context.Context, executionID, nodeID, level, message string) {
	entry := &models.ExecutionLog{
		ID:          "log-" + uuid.New().String(),
		ExecutionID: executionID,
		NodeID:      nodeID,
		Level:       level,
		Message:     message,
		CreatedAt:   e.clock.Now().UTC(),
	}

	err := e.persistence.AppendExecutionLog(ctx, entry)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to append execution log", "execution_id", executionID, "error", err)
	}
}

func (e *Engine) publish(ctx context.Context, execution *models.Execution, event eventbus.Event) {
	err := e.publisher.Publish(ctx, execution.WorkflowID, event)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish event",
			"execution_id", execution.ID,
			"event_type", event.GetType(),
			"error", err,
		)
	}
}

func executionDuration(execution *models.Execution) int64 {
	if execution.StartedAt == nil || execution.CompletedAt == nil {
		return 0
	}

	return execution.CompletedAt.Sub(*execution.StartedAt).Milliseconds()
}
