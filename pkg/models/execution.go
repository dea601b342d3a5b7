package models

import "time"

// ExecutionStatus represents the lifecycle state of one workflow run.
type ExecutionStatus string

const (
	ExecutionStatusQueued    ExecutionStatus = "queued"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusPaused    ExecutionStatus = "paused"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// Execution is one traversal of a workflow graph for one lead.
// ResumeFrom and ResumeAt are durable suspension state: a paused execution
// holds the execution order to resume at and the wall-clock time the delayed
// resume job becomes due, so a process restart during a multi-day wait loses
// nothing.
type Execution struct {
	ID           string          `json:"id"`
	WorkflowID   string          `json:"workflow_id" validate:"required"`
	LeadID       string          `json:"lead_id"     validate:"required"`
	Status       ExecutionStatus `json:"status"`
	TriggerData  map[string]any  `json:"trigger_data,omitempty"`
	ResumeFrom   int             `json:"resume_from"`
	ResumeAt     *time.Time      `json:"resume_at,omitempty"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Finished reports whether the execution reached a terminal status.
func (e *Execution) Finished() bool {
	switch e.Status {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	default:
		return false
	}
}
