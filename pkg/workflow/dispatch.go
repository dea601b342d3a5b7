package workflow

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/cadencehq/cadence/pkg/conditions"
	"github.com/cadencehq/cadence/pkg/email"
	"github.com/cadencehq/cadence/pkg/events"
	"github.com/cadencehq/cadence/pkg/models"
)

// stepOutcome carries a node's result back to the execution loop. output is
// persisted on the step; pause suspends the execution; reachable, when
// non-nil, replaces the eligible node set.
type stepOutcome struct {
	output     map[string]any
	pause      bool
	delay      time.Duration
	resumeFrom int
	reachable  map[string]struct{}
}

func (e *Engine) dispatch(ctx context.Context, run *runState, node *models.WorkflowNode) (stepOutcome, error) {
	switch node.Type {
	case models.NodeTypeTrigger:
		return stepOutcome{output: map[string]any{"triggered": true}}, nil
	case models.NodeTypeSendEmail, models.NodeTypeSendFollowup:
		return e.dispatchSendEmail(ctx, run, node)
	case models.NodeTypeDelay:
		return e.dispatchDelay(ctx, run, node)
	case models.NodeTypeCondition:
		return e.dispatchCondition(ctx, run, node)
	case models.NodeTypeMarkFailed:
		return e.dispatchMarkFailed(ctx, run, node)
	default:
		return e.dispatchUnknown(ctx, run, node)
	}
}

// variable keys consulted when the node config leaves something out.
const (
	varEmailTemplate    = "email_template"
	varFollowupTemplate = "followup_template"
	varEmailSubject     = "email_subject"
	varDefaultDelayMs   = "default_delay_ms"
)

func (e *Engine) dispatchSendEmail(ctx context.Context, run *runState, node *models.WorkflowNode) (stepOutcome, error) {
	templateStr := node.ConfigString(models.ConfigKeyTemplate)
	if templateStr == "" {
		fallback := varEmailTemplate
		if node.Type == models.NodeTypeSendFollowup {
			fallback = varFollowupTemplate
		}

		templateStr, _ = run.workflow.Variables[fallback].(string)
	}

	if templateStr == "" {
		return stepOutcome{}, &ValidationError{
			NodeID:   node.ID,
			NodeType: node.Type,
			Message:  fmt.Sprintf("No email template configured for %s node", node.Type),
		}
	}

	subject := node.ConfigString(models.ConfigKeySubject)
	if subject == "" {
		subject, _ = run.workflow.Variables[varEmailSubject].(string)
	}

	if subject == "" {
		subject = run.workflow.Name
	}

	variables := e.templateVariables(run)

	body, err := e.renderer.Render(templateStr, variables)
	if err != nil {
		return stepOutcome{}, &ValidationError{
			NodeID:   node.ID,
			NodeType: node.Type,
			Message:  fmt.Sprintf("email template rendering failed: %s", err),
		}
	}

	renderedSubject, err := e.renderer.Render(subject, variables)
	if err != nil {
		return stepOutcome{}, &ValidationError{
			NodeID:   node.ID,
			NodeType: node.Type,
			Message:  fmt.Sprintf("email subject rendering failed: %s", err),
		}
	}

	lead := run.lead

	result, err := e.sender.Send(ctx, email.Message{
		WorkspaceID: lead.WorkspaceID,
		LeadID:      lead.ID,
		ToEmail:     lead.Email,
		ToName:      lead.Name,
		Subject:     renderedSubject,
		TextBody:    body,
	})
	if err != nil {
		return stepOutcome{}, &ExternalServiceError{
			Service: "email",
			Err:     fmt.Errorf("%w: %w", email.ErrSendFailed, err),
		}
	}

	now := e.clock.Now().UTC()
	lead.Status = models.LeadStatusContacted
	lead.LastContactedAt = &now
	lead.UpdatedAt = now

	err = e.persistence.SaveLead(ctx, lead)
	if err != nil {
		return stepOutcome{}, fmt.Errorf("failed to mark lead %s contacted: %w", lead.ID, err)
	}

	sent := events.EmailSent{
		BaseEvent: events.NewBaseEvent(events.EmailSentEvent, run.workflow.ID, run.execution.ID),
		LeadID:    lead.ID,
		NodeID:    node.ID,
		MessageID: result.MessageID,
		ToEmail:   lead.Email,
		Subject:   renderedSubject,
	}
	e.publish(ctx, run.execution, sent)

	run.logger.InfoContext(ctx, "Email sent",
		"node_id", node.ID,
		"lead_id", lead.ID,
		"message_id", result.MessageID,
	)

	return stepOutcome{output: map[string]any{
		models.OutputKeyMessageID: result.MessageID,
		"to":                      lead.Email,
		"subject":                 renderedSubject,
	}}, nil
}

func (e *Engine) dispatchDelay(_ context.Context, run *runState, node *models.WorkflowNode) (stepOutcome, error) {
	delay := e.computeDelay(run.workflow, node)

	resumeFrom := -1
	if next := nextNodeAfter(run.workflow, node.ExecutionOrder); next != nil {
		resumeFrom = next.ExecutionOrder
	}

	return stepOutcome{
		pause:      true,
		delay:      delay,
		resumeFrom: resumeFrom,
		output: map[string]any{
			models.OutputKeyDelayMs:    delay.Milliseconds(),
			models.OutputKeyResumeFrom: resumeFrom,
		},
	}, nil
}

// computeDelay resolves the wait in descending precedence: node delay_ms,
// node duration string, workflow default_delay_ms, engine default.
func (e *Engine) computeDelay(workflow *models.Workflow, node *models.WorkflowNode) time.Duration {
	if ms, ok := toMillis(node.Config[models.ConfigKeyDelayMs]); ok {
		return time.Duration(ms) * time.Millisecond
	}

	if raw := node.ConfigString(models.ConfigKeyDuration); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d >= 0 {
			return d
		}

		e.logger.Warn("Ignoring unparseable delay duration", "node_id", node.ID, "duration", raw)
	}

	if ms, ok := toMillis(workflow.Variables[varDefaultDelayMs]); ok {
		return time.Duration(ms) * time.Millisecond
	}

	return e.defaultDelay
}

func (e *Engine) dispatchCondition(ctx context.Context, run *runState, node *models.WorkflowNode) (stepOutcome, error) {
	condType := node.ConfigString(models.ConfigKeyConditionType)

	result, err := e.conditions.Evaluate(ctx, condType, node.Config, conditions.Env{
		Lead:        run.lead,
		Variables:   run.workflow.Variables,
		TriggerData: run.execution.TriggerData,
		Bookings:    e.persistence,
	})
	if err != nil {
		var unknownErr *conditions.UnknownTypeError

		var configErr *conditions.ConfigError

		if errors.As(err, &unknownErr) || errors.As(err, &configErr) {
			return stepOutcome{}, &ValidationError{NodeID: node.ID, NodeType: node.Type, Message: err.Error()}
		}

		return stepOutcome{}, &ExternalServiceError{Service: "condition", Err: err}
	}

	handle := models.EdgeHandleFalse
	if result {
		handle = models.EdgeHandleTrue
	}

	edge := selectEdge(run.workflow, node.ID, handle)

	// No matching edge means the branch dead-ends: everything downstream
	// is pruned and the run completes with what it has done so far.
	reachable := map[string]struct{}{}
	selectedEdgeID := ""
	nextNodeID := ""

	if edge != nil {
		reachable = ReachableFrom(run.workflow, edge.Target)
		selectedEdgeID = edge.ID
		nextNodeID = edge.Target
	}

	run.logger.InfoContext(ctx, "Condition evaluated",
		"node_id", node.ID,
		"condition_type", condType,
		"result", result,
		"next_node_id", nextNodeID,
	)

	return stepOutcome{
		reachable: reachable,
		output: map[string]any{
			models.OutputKeyConditionType: condType,
			models.OutputKeyResult:        result,
			models.OutputKeySelectedEdge:  selectedEdgeID,
			models.OutputKeyNextNode:      nextNodeID,
		},
	}, nil
}

func (e *Engine) dispatchMarkFailed(ctx context.Context, run *runState, node *models.WorkflowNode) (stepOutcome, error) {
	lead := run.lead

	now := e.clock.Now().UTC()
	lead.Status = models.LeadStatusFailed
	lead.UpdatedAt = now

	err := e.persistence.SaveLead(ctx, lead)
	if err != nil {
		return stepOutcome{}, fmt.Errorf("failed to mark lead %s failed: %w", lead.ID, err)
	}

	run.logger.InfoContext(ctx, "Lead marked failed", "node_id", node.ID, "lead_id", lead.ID)

	return stepOutcome{output: map[string]any{"lead_status": string(models.LeadStatusFailed)}}, nil
}

func (e *Engine) dispatchUnknown(ctx context.Context, run *runState, node *models.WorkflowNode) (stepOutcome, error) {
	if e.strictTypes {
		return stepOutcome{}, &ValidationError{
			NodeID:   node.ID,
			NodeType: node.Type,
			Message:  fmt.Sprintf("unrecognized node type %q", node.Type),
		}
	}

	message := fmt.Sprintf("skipped node %s with unrecognized type %q", node.ID, node.Type)
	run.logger.WarnContext(ctx, "Skipping node with unrecognized type", "node_id", node.ID, "node_type", node.Type)
	e.appendLog(ctx, run.execution.ID, node.ID, "warn", message)

	return stepOutcome{output: map[string]any{"skipped": true}}, nil
}

// templateVariables flattens lead fields, workflow variables and trigger
// data into the renderer's string map. Lead fields win on key collisions.
func (e *Engine) templateVariables(run *runState) map[string]string {
	variables := make(map[string]string)

	for key, value := range run.workflow.Variables {
		variables[key] = stringify(value)
	}

	for key, value := range run.execution.TriggerData {
		variables[key] = stringify(value)
	}

	lead := run.lead
	variables["name"] = lead.Name
	variables["email"] = lead.Email
	variables["company"] = lead.Company
	variables["workflow"] = run.workflow.Name

	return variables
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// toMillis accepts the numeric shapes a JSON config round-trip produces.
func toMillis(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), v >= 0
	case int64:
		return v, v >= 0
	case float64:
		return int64(v), v >= 0
	case string:
		ms, err := strconv.ParseInt(v, 10, 64)

		return ms, err == nil && ms >= 0
	default:
		return 0, false
	}
}

func errorDetail(err error) string {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		// Configuration problems carry no useful stack.
		return ""
	}

	return fmt.Sprintf("%+v\n%s", err, debug.Stack())
}
