package models

import "time"

// StepStatus defines the possible states of a step execution.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
)

// ExecutionStep is the persisted record of one node's attempted dispatch
// within an execution. Steps are append-only: once completed or failed a step
// is never rewritten, and step numbers are strictly increasing per execution.
type ExecutionStep struct {
	ID           string         `json:"id"`
	ExecutionID  string         `json:"execution_id"`
	NodeID       string         `json:"node_id"`
	NodeType     string         `json:"node_type"`
	StepNumber   int            `json:"step_number"`
	Status       StepStatus     `json:"status"`
	StartedAt    time.Time      `json:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	DurationMs   int64          `json:"duration_ms"`
	OutputData   map[string]any `json:"output_data,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	ErrorDetail  string         `json:"error_detail,omitempty"`
}

// Step output data keys written by the engine.
const (
	OutputKeyConditionType = "condition_type"
	OutputKeyResult        = "result"
	OutputKeySelectedEdge  = "selected_edge_id"
	OutputKeyNextNode      = "next_node_id"
	OutputKeyDelayMs       = "delay_ms"
	OutputKeyResumeFrom    = "resume_from"
	OutputKeyMessageID     = "message_id"
)

// ExecutionLog is an append-only diagnostic entry attached to an execution.
type ExecutionLog struct {
	ID          string    `json:"id"`
	ExecutionID string    `json:"execution_id"`
	NodeID      string    `json:"node_id,omitempty"`
	Level       string    `json:"level"`
	Message     string    `json:"message"`
	CreatedAt   time.Time `json:"created_at"`
}
