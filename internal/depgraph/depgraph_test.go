package depgraph

import (
	"testing"

	"github.com/sells-group/enrichment-engine/internal/enrichment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func edges(pairs ...[2]string) []enrichment.ColumnDependency {
	out := make([]enrichment.ColumnDependency, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, enrichment.ColumnDependency{DependentColumnID: p[0], RequiredColumnID: p[1]})
	}
	return out
}

func TestWouldCreateCycle_SelfEdge(t *testing.T) {
	g := New(nil)
	assert.True(t, g.WouldCreateCycle("A", "A"))
}

func TestWouldCreateCycle_ExistingEdgeIsNotNew(t *testing.T) {
	g := New(edges([2]string{"A", "B"}))
	assert.False(t, g.WouldCreateCycle("A", "B"))
}

func TestWouldCreateCycle_DirectReverse(t *testing.T) {
	g := New(edges([2]string{"A", "B"}))
	assert.True(t, g.WouldCreateCycle("B", "A"))
}

func TestWouldCreateCycle_IndirectChain(t *testing.T) {
	// A->B->C ; proposed C->A closes the loop.
	g := New(edges([2]string{"A", "B"}, [2]string{"B", "C"}))
	assert.True(t, g.WouldCreateCycle("C", "A"))
	assert.False(t, g.WouldCreateCycle("D", "A"))
}

func TestTopologicalSort_OrdersDependenciesFirst(t *testing.T) {
	g := New(edges([2]string{"C", "B"}, [2]string{"B", "A"}))
	sorted, err := g.TopologicalSort([]string{"C", "B", "A"})
	require.NoError(t, err)

	pos := map[string]int{}
	for i, n := range sorted {
		pos[n] = i
	}
	assert.Less(t, pos["A"], pos["B"])
	assert.Less(t, pos["B"], pos["C"])
}

func TestTopologicalSort_ReverseSubmissionOrder(t *testing.T) {
	// Scenario D: submitted ["C","B","A"] for chain A->B->C, expect A,B,C.
	g := New(edges([2]string{"C", "B"}, [2]string{"B", "A"}))
	sorted, err := g.TopologicalSort([]string{"C", "B", "A"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, sorted)
}

func TestTopologicalSort_CycleError(t *testing.T) {
	g := New(edges([2]string{"A", "B"}, [2]string{"B", "A"}))
	_, err := g.TopologicalSort([]string{"A", "B"})
	require.Error(t, err)
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
}

func TestAllDependenciesAndDependents(t *testing.T) {
	g := New(edges([2]string{"A", "B"}, [2]string{"B", "C"}))
	deps := g.AllDependencies("A")
	assert.True(t, deps["B"])
	assert.True(t, deps["C"])
	assert.False(t, deps["A"])

	dependents := g.AllDependents("C")
	assert.True(t, dependents["A"])
	assert.True(t, dependents["B"])
}

func TestMissingDependencies(t *testing.T) {
	g := New(edges([2]string{"A", "B"}, [2]string{"A", "C"}))
	missing := g.MissingDependencies("A", []string{"B"})
	assert.Equal(t, []string{"C"}, missing)
}
