// Package events defines lifecycle event types published by the execution engine.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries all execution lifecycle events.
const Topic = "cadence.executions"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ExecutionQueuedEvent    EventType = "execution.queued"
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionPausedEvent    EventType = "execution.paused"
	ExecutionResumedEvent   EventType = "execution.resumed"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionCancelledEvent EventType = "execution.cancelled"
	EmailSentEvent          EventType = "email.sent"
)

type BaseEvent struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	WorkflowID  string         `json:"workflow_id"`
	ExecutionID string         `json:"execution_id"`
	WorkerID    string         `json:"worker_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, workflowID, executionID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		WorkflowID:  workflowID,
		ExecutionID: executionID,
	}
}

type ExecutionQueued struct {
	BaseEvent

	LeadID      string         `json:"lead_id"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
}

func (e ExecutionQueued) GetType() EventType { return ExecutionQueuedEvent }

type ExecutionStarted struct {
	BaseEvent

	LeadID   string `json:"lead_id"`
	FromStep int    `json:"from_step"`
}

func (e ExecutionStarted) GetType() EventType { return ExecutionStartedEvent }

type ExecutionPaused struct {
	BaseEvent

	NodeID     string    `json:"node_id"`
	ResumeFrom int       `json:"resume_from"`
	ResumeAt   time.Time `json:"resume_at"`
	DelayMs    int64     `json:"delay_ms"`
}

func (e ExecutionPaused) GetType() EventType { return ExecutionPausedEvent }

type ExecutionResumed struct {
	BaseEvent

	FromStep int `json:"from_step"`
}

func (e ExecutionResumed) GetType() EventType { return ExecutionResumedEvent }

type ExecutionCompleted struct {
	BaseEvent

	DurationMs    int64 `json:"duration_ms"`
	StepsExecuted int   `json:"steps_executed"`
}

func (e ExecutionCompleted) GetType() EventType { return ExecutionCompletedEvent }

type ExecutionFailed struct {
	BaseEvent

	NodeID     string `json:"node_id,omitempty"`
	Error      string `json:"error"`
	DurationMs int64  `json:"duration_ms"`
}

func (e ExecutionFailed) GetType() EventType { return ExecutionFailedEvent }

type ExecutionCancelled struct {
	BaseEvent
}

func (e ExecutionCancelled) GetType() EventType { return ExecutionCancelledEvent }

type EmailSent struct {
	BaseEvent

	LeadID    string `json:"lead_id"`
	NodeID    string `json:"node_id"`
	MessageID string `json:"message_id"`
	ToEmail   string `json:"to_email"`
	Subject   string `json:"subject"`
}

func (e EmailSent) GetType() EventType { return EmailSentEvent }
