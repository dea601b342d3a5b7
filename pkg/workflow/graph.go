package workflow

import (
	"fmt"
	"sort"

	"github.com/cadencehq/cadence/pkg/models"
)

// ReachableFrom returns the set of node IDs transitively reachable from
// startNodeID over enabled edges, inclusive of the start node. The visited
// set guarantees termination even on malformed cyclic input.
func ReachableFrom(w *models.Workflow, startNodeID string) map[string]struct{} {
	reachable := make(map[string]struct{})
	frontier := []string{startNodeID}

	for len(frontier) > 0 {
		current := frontier[0]
		frontier = frontier[1:]

		if _, visited := reachable[current]; visited {
			continue
		}

		reachable[current] = struct{}{}

		for _, edge := range w.EdgesFrom(current) {
			frontier = append(frontier, edge.Target)
		}
	}

	return reachable
}

// ValidateGraph checks the structural invariants of a workflow graph: every
// edge stays inside the graph, execution order is a total order, and the
// enabled-edge subgraph is acyclic. Cyclic graphs are rejected here rather
// than tolerated with undefined semantics.
func ValidateGraph(w *models.Workflow) error {
	nodeIDs := make(map[string]struct{}, len(w.Nodes))
	orders := make(map[int]string, len(w.Nodes))

	for _, node := range w.Nodes {
		nodeIDs[node.ID] = struct{}{}

		if other, taken := orders[node.ExecutionOrder]; taken {
			return fmt.Errorf("%w: nodes %s and %s both at order %d",
				ErrDuplicateExecutionOrder, other, node.ID, node.ExecutionOrder)
		}

		orders[node.ExecutionOrder] = node.ID
	}

	inDegree := make(map[string]int, len(w.Nodes))

	for _, edge := range w.Edges {
		if _, ok := nodeIDs[edge.Source]; !ok {
			return fmt.Errorf("%w: edge %s source %s", ErrEdgeOutsideGraph, edge.ID, edge.Source)
		}

		if _, ok := nodeIDs[edge.Target]; !ok {
			return fmt.Errorf("%w: edge %s target %s", ErrEdgeOutsideGraph, edge.ID, edge.Target)
		}

		if edge.Enabled {
			inDegree[edge.Target]++
		}
	}

	return checkAcyclic(w, inDegree)
}

// checkAcyclic runs Kahn's algorithm over the enabled-edge subgraph.
func checkAcyclic(w *models.Workflow, inDegree map[string]int) error {
	frontier := make([]string, 0, len(w.Nodes))

	for _, node := range w.Nodes {
		if inDegree[node.ID] == 0 {
			frontier = append(frontier, node.ID)
		}
	}

	visited := 0

	for len(frontier) > 0 {
		current := frontier[0]
		frontier = frontier[1:]
		visited++

		for _, edge := range w.EdgesFrom(current) {
			inDegree[edge.Target]--
			if inDegree[edge.Target] == 0 {
				frontier = append(frontier, edge.Target)
			}
		}
	}

	if visited != len(w.Nodes) {
		return ErrCyclicWorkflow
	}

	return nil
}

// nodesInOrder returns the workflow's nodes sorted by ascending execution order.
func nodesInOrder(w *models.Workflow) []*models.WorkflowNode {
	nodes := make([]*models.WorkflowNode, len(w.Nodes))
	copy(nodes, w.Nodes)

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ExecutionOrder < nodes[j].ExecutionOrder })

	return nodes
}

// nextNodeAfter returns the node following the given execution order, or nil
// when the graph is exhausted.
func nextNodeAfter(w *models.Workflow, order int) *models.WorkflowNode {
	var next *models.WorkflowNode

	for _, node := range w.Nodes {
		if node.ExecutionOrder <= order {
			continue
		}

		if next == nil || node.ExecutionOrder < next.ExecutionOrder {
			next = node
		}
	}

	return next
}

// selectEdge picks the outgoing edge matching the evaluated handle. When a
// malformed graph carries several edges with the same handle, the first one
// in stored order wins deterministically.
func selectEdge(w *models.Workflow, nodeID, handle string) *models.Edge {
	for _, edge := range w.EdgesFrom(nodeID) {
		if edge.Handle() == handle {
			return edge
		}
	}

	return nil
}
