// Package workflow implements the execution engine: the state machine that
// walks a workflow graph for one lead, evaluates conditions, prunes pruned
// branches, suspends on delays, and resumes after arbitrary elapsed time.
package workflow

import (
	"errors"
	"fmt"
)

// Graph validation errors, raised at load time.
var (
	// ErrCyclicWorkflow indicates the graph contains a cycle over enabled edges.
	ErrCyclicWorkflow = errors.New("workflow graph contains a cycle")

	// ErrEdgeOutsideGraph indicates an edge referencing a node not in the graph.
	ErrEdgeOutsideGraph = errors.New("edge references a node outside the graph")

	// ErrDuplicateExecutionOrder indicates two nodes sharing an execution order.
	ErrDuplicateExecutionOrder = errors.New("duplicate node execution order")
)

// ErrExecutionFinished indicates an operation on an already-terminal execution.
var ErrExecutionFinished = errors.New("execution already finished")

// ErrWorkflowNotExecutable indicates a trigger against a non-published workflow.
var ErrWorkflowNotExecutable = errors.New("workflow is not published")

// ValidationError is a fatal node configuration problem: the step and the
// whole execution fail, and the external retry policy decides what happens
// next.
type ValidationError struct {
	NodeID   string
	NodeType string
	Message  string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ExternalServiceError wraps a collaborator failure (email provider,
// condition data source). Fatal to the step and execution, but retryable by
// the outer job queue.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s service failed: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// IsValidationError checks whether an error chain contains a ValidationError.
func IsValidationError(err error) bool {
	var target *ValidationError

	return errors.As(err, &target)
}
