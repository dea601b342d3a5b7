package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadencehq/cadence/pkg/models"
	"github.com/cadencehq/cadence/pkg/testutil"
)

func linearWorkflow() *models.Workflow {
	a := testutil.CreateTestNode(testutil.WithID("a"), testutil.WithOrder(0))
	b := testutil.CreateTestNode(testutil.WithID("b"), testutil.WithOrder(1))
	c := testutil.CreateTestNode(testutil.WithID("c"), testutil.WithOrder(2))

	return testutil.CreateTestWorkflow(
		testutil.WithNodes(a, b, c),
		testutil.WithEdges(
			testutil.CreateTestEdge("a", "b", ""),
			testutil.CreateTestEdge("b", "c", ""),
		),
	)
}

func TestReachableFrom_Linear(t *testing.T) {
	wf := linearWorkflow()

	reachable := ReachableFrom(wf, "b")

	assert.Len(t, reachable, 2)
	assert.Contains(t, reachable, "b")
	assert.Contains(t, reachable, "c")
	assert.NotContains(t, reachable, "a")
}

func TestReachableFrom_IncludesStartOnly(t *testing.T) {
	wf := linearWorkflow()

	reachable := ReachableFrom(wf, "c")

	assert.Len(t, reachable, 1)
	assert.Contains(t, reachable, "c")
}

func TestReachableFrom_IgnoresDisabledEdges(t *testing.T) {
	a := testutil.CreateTestNode(testutil.WithID("a"), testutil.WithOrder(0))
	b := testutil.CreateTestNode(testutil.WithID("b"), testutil.WithOrder(1))

	edge := testutil.CreateTestEdge("a", "b", "")
	edge.Enabled = false

	wf := testutil.CreateTestWorkflow(testutil.WithNodes(a, b), testutil.WithEdges(edge))

	reachable := ReachableFrom(wf, "a")

	assert.Len(t, reachable, 1)
	assert.NotContains(t, reachable, "b")
}

func TestReachableFrom_DiamondConverges(t *testing.T) {
	cond := testutil.CreateTestNode(testutil.WithID("cond"), testutil.WithOrder(0))
	left := testutil.CreateTestNode(testutil.WithID("left"), testutil.WithOrder(1))
	right := testutil.CreateTestNode(testutil.WithID("right"), testutil.WithOrder(2))
	join := testutil.CreateTestNode(testutil.WithID("join"), testutil.WithOrder(3))

	wf := testutil.CreateTestWorkflow(
		testutil.WithNodes(cond, left, right, join),
		testutil.WithEdges(
			testutil.CreateTestEdge("cond", "left", models.EdgeHandleTrue),
			testutil.CreateTestEdge("cond", "right", models.EdgeHandleFalse),
			testutil.CreateTestEdge("left", "join", ""),
			testutil.CreateTestEdge("right", "join", ""),
		),
	)

	reachable := ReachableFrom(wf, "left")

	assert.Contains(t, reachable, "join")
	assert.NotContains(t, reachable, "right")
	assert.NotContains(t, reachable, "cond")
}

func TestValidateGraph_Valid(t *testing.T) {
	require.NoError(t, ValidateGraph(linearWorkflow()))
}

func TestValidateGraph_RejectsCycle(t *testing.T) {
	wf := linearWorkflow()
	wf.Edges = append(wf.Edges, testutil.CreateTestEdge("c", "a", ""))

	err := ValidateGraph(wf)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCyclicWorkflow)
}

func TestValidateGraph_RejectsSelfLoop(t *testing.T) {
	wf := linearWorkflow()
	wf.Edges = append(wf.Edges, testutil.CreateTestEdge("b", "b", ""))

	err := ValidateGraph(wf)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCyclicWorkflow)
}

func TestValidateGraph_RejectsDanglingEdge(t *testing.T) {
	wf := linearWorkflow()
	wf.Edges = append(wf.Edges, testutil.CreateTestEdge("c", "ghost", ""))

	err := ValidateGraph(wf)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEdgeOutsideGraph)
}

func TestValidateGraph_RejectsDuplicateOrder(t *testing.T) {
	wf := linearWorkflow()
	wf.Nodes[2].ExecutionOrder = 1

	err := ValidateGraph(wf)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateExecutionOrder)
}

func TestSelectEdge_FirstMatchWins(t *testing.T) {
	cond := testutil.CreateTestNode(testutil.WithID("cond"), testutil.WithOrder(0))
	a := testutil.CreateTestNode(testutil.WithID("a"), testutil.WithOrder(1))
	b := testutil.CreateTestNode(testutil.WithID("b"), testutil.WithOrder(2))

	firstEdge := testutil.CreateTestEdge("cond", "a", models.EdgeHandleTrue)
	secondEdge := testutil.CreateTestEdge("cond", "b", models.EdgeHandleTrue)

	wf := testutil.CreateTestWorkflow(
		testutil.WithNodes(cond, a, b),
		testutil.WithEdges(firstEdge, secondEdge),
	)

	edge := selectEdge(wf, "cond", models.EdgeHandleTrue)
	require.NotNil(t, edge)
	assert.Equal(t, firstEdge.ID, edge.ID)
}

func TestSelectEdge_NoMatch(t *testing.T) {
	wf := linearWorkflow()

	assert.Nil(t, selectEdge(wf, "a", models.EdgeHandleTrue))
}

func TestNodesInOrder(t *testing.T) {
	wf := linearWorkflow()
	wf.Nodes[0].ExecutionOrder = 5

	ordered := nodesInOrder(wf)
	require.Len(t, ordered, 3)
	assert.Equal(t, "b", ordered[0].ID)
	assert.Equal(t, "c", ordered[1].ID)
	assert.Equal(t, "a", ordered[2].ID)
}

func TestNextNodeAfter(t *testing.T) {
	wf := linearWorkflow()

	next := nextNodeAfter(wf, 1)
	require.NotNil(t, next)
	assert.Equal(t, "c", next.ID)

	assert.Nil(t, nextNodeAfter(wf, 2))
}
