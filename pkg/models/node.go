package models

// Built-in node types.
const (
	NodeTypeTrigger      = "trigger"
	NodeTypeSendEmail    = "send_email"
	NodeTypeSendFollowup = "send_followup"
	NodeTypeDelay        = "delay"
	NodeTypeCondition    = "condition"
	NodeTypeMarkFailed   = "mark_failed"
)

// Node config keys consumed by the engine.
const (
	ConfigKeyDelayMs       = "delay_ms"
	ConfigKeyDuration      = "duration"
	ConfigKeyTemplate      = "template"
	ConfigKeySubject       = "subject"
	ConfigKeyConditionType = "condition_type"
)

// Edge handles for condition branching.
const (
	EdgeHandleTrue  = "true"
	EdgeHandleFalse = "false"
)

// WorkflowNode is one typed step definition in a workflow graph.
// ExecutionOrder is a total order over the graph, assigned at creation and
// used to resume a suspended execution at an exact position.
type WorkflowNode struct {
	ID             string         `json:"id"              validate:"required"`
	Type           string         `json:"type"            validate:"required"`
	Name           string         `json:"name"            validate:"required,min=1"`
	ExecutionOrder int            `json:"execution_order" validate:"gte=0"`
	Config         map[string]any `json:"config"`
	PositionX      int            `json:"position_x"`
	PositionY      int            `json:"position_y"`
}

// IsCondition reports whether the node branches on a boolean handle.
func (n *WorkflowNode) IsCondition() bool {
	return n.Type == NodeTypeCondition
}

// ConfigString returns a string config value, or "" when absent.
func (n *WorkflowNode) ConfigString(key string) string {
	if n.Config == nil {
		return ""
	}

	value, _ := n.Config[key].(string)

	return value
}

// Edge is a directed connection between two nodes of the same graph.
// SourceHandle tags the edge with the boolean branch it belongs to; nil for
// unconditional edges. Disabled edges are invisible to traversal.
type Edge struct {
	ID           string  `json:"id"`
	Source       string  `json:"source" validate:"required"`
	Target       string  `json:"target" validate:"required"`
	SourceHandle *string `json:"source_handle,omitempty"`
	Enabled      bool    `json:"enabled"`
}

// Handle returns the boolean handle of the edge, or "" when untagged.
func (e *Edge) Handle() string {
	if e.SourceHandle == nil {
		return ""
	}

	return *e.SourceHandle
}
