// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/cadencehq/cadence/pkg/models"
)

// CreateTestNode creates a test WorkflowNode with default values that can be overridden.
func CreateTestNode(overrides ...func(*models.WorkflowNode)) *models.WorkflowNode {
	node := &models.WorkflowNode{
		ID:             uuid.New().String(),
		Type:           models.NodeTypeSendEmail,
		Name:           "Test Node",
		ExecutionOrder: 1,
		Config:         map[string]any{models.ConfigKeyTemplate: "Hi {{.name}}"},
		PositionX:      100,
		PositionY:      200,
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithType sets the node type.
func WithType(nodeType string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Type = nodeType
	}
}

// WithID sets the node ID.
func WithID(id string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.ID = id
	}
}

// WithName sets the node name.
func WithName(name string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Name = name
	}
}

// WithOrder sets the node execution order.
func WithOrder(order int) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.ExecutionOrder = order
	}
}

// WithConfig sets the node configuration.
func WithConfig(config map[string]any) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Config = config
	}
}

// CreateTestWorkflow creates a published test workflow with default values
// that can be overridden.
func CreateTestWorkflow(overrides ...func(*models.Workflow)) *models.Workflow {
	now := time.Now().UTC()
	workflow := &models.Workflow{
		ID:          "wf-" + uuid.New().String(),
		Name:        "Test Workflow",
		Description: "A test workflow",
		Status:      models.WorkflowStatusPublished,
		Nodes:       []*models.WorkflowNode{},
		Edges:       []*models.Edge{},
		Variables:   map[string]any{},
		Metadata:    map[string]any{},
		CreatedAt:   now,
		UpdatedAt:   now,
		PublishedAt: &now,
	}

	for _, override := range overrides {
		override(workflow)
	}

	return workflow
}

// WithStatus sets the workflow status.
func WithStatus(status models.WorkflowStatus) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Status = status
	}
}

// WithNodes sets the workflow nodes.
func WithNodes(nodes ...*models.WorkflowNode) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Nodes = nodes
	}
}

// WithEdges sets the workflow edges.
func WithEdges(edges ...*models.Edge) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Edges = edges
	}
}

// WithVariables sets the workflow variables.
func WithVariables(variables map[string]any) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Variables = variables
	}
}

// CreateTestEdge creates an enabled edge between two nodes. handle may be
// empty for unconditional edges.
func CreateTestEdge(source, target, handle string) *models.Edge {
	edge := &models.Edge{
		ID:      "edge-" + uuid.New().String(),
		Source:  source,
		Target:  target,
		Enabled: true,
	}

	if handle != "" {
		edge.SourceHandle = &handle
	}

	return edge
}

// CreateTestLead creates a test Lead with default values that can be overridden.
func CreateTestLead(overrides ...func(*models.Lead)) *models.Lead {
	now := time.Now().UTC()
	lead := &models.Lead{
		ID:          "lead-" + uuid.New().String(),
		WorkspaceID: "ws-test",
		Name:        "Ada Lovelace",
		Email:       "ada@example.com",
		Company:     "Analytical Engines",
		Status:      models.LeadStatusNew,
		Budget:      10000,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	for _, override := range overrides {
		override(lead)
	}

	return lead
}

// WithBudget sets the lead budget.
func WithBudget(budget float64) func(*models.Lead) {
	return func(l *models.Lead) {
		l.Budget = budget
	}
}

// WithReplied marks the lead as having replied at the given time.
func WithReplied(at time.Time) func(*models.Lead) {
	return func(l *models.Lead) {
		l.Status = models.LeadStatusReplied
		l.RepliedAt = &at
	}
}

// WithLeadStatus sets the lead status.
func WithLeadStatus(status models.LeadStatus) func(*models.Lead) {
	return func(l *models.Lead) {
		l.Status = status
	}
}
