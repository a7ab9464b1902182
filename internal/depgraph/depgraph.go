// Package depgraph implements cycle detection and topological sorting
// over the directed graph of custom-column dependencies (spec §4.5),
// grounded on original_source's dependency_graph_service.py.
package depgraph

import (
	"fmt"
	"strings"

	"github.com/sells-group/enrichment-engine/internal/enrichment"
)

// Graph is an in-memory view of the dependency edges for a set of
// columns. Persistence of the edges themselves belongs to the control
// plane; Graph only reasons about whatever edges it is given.
type Graph struct {
	// required maps a dependent column to the columns it requires.
	required map[string][]string
	// dependents maps a required column to the columns that depend on it.
	dependents map[string][]string
}

// New builds a Graph from a flat edge list.
func New(edges []enrichment.ColumnDependency) *Graph {
	g := &Graph{
		required:   map[string][]string{},
		dependents: map[string][]string{},
	}
	for _, e := range edges {
		g.required[e.DependentColumnID] = append(g.required[e.DependentColumnID], e.RequiredColumnID)
		g.dependents[e.RequiredColumnID] = append(g.dependents[e.RequiredColumnID], e.DependentColumnID)
	}
	return g
}

// DirectDependencies returns the columns col directly requires.
func (g *Graph) DirectDependencies(col string) []string {
	return append([]string(nil), g.required[col]...)
}

// DirectDependents returns the columns that directly require col.
func (g *Graph) DirectDependents(col string) []string {
	return append([]string(nil), g.dependents[col]...)
}

// AllDependencies returns the reflexive-transitive closure of col's
// dependencies, excluding col itself.
func (g *Graph) AllDependencies(col string) map[string]bool {
	return g.closure(col, g.required)
}

// AllDependents returns the reflexive-transitive closure of col's
// dependents, excluding col itself.
func (g *Graph) AllDependents(col string) map[string]bool {
	return g.closure(col, g.dependents)
}

func (g *Graph) closure(root string, edges map[string][]string) map[string]bool {
	result := map[string]bool{}
	visited := map[string]bool{}
	stack := []string{root}

	for len(stack) > 0 {
		n := len(stack) - 1
		current := stack[n]
		stack = stack[:n]

		if visited[current] {
			continue
		}
		visited[current] = true
		if current != root {
			result[current] = true
		}
		stack = append(stack, edges[current]...)
	}
	return result
}

// hasEdge reports whether the active edge dependent->required exists.
func (g *Graph) hasEdge(dependent, required string) bool {
	for _, r := range g.required[dependent] {
		if r == required {
			return true
		}
	}
	return false
}

// WouldCreateCycle reports whether adding the edge dependent->required
// would create a cycle, per spec §4.5:
//  1. self-dependency is always a cycle.
//  2. an already-present edge creates no *new* cycle.
//  3. a direct reverse edge is always a cycle.
//  4. otherwise, DFS from required following required-edges; reaching
//     dependent means required already (transitively) depends on it.
func (g *Graph) WouldCreateCycle(dependent, required string) bool {
	if dependent == required {
		return true
	}
	if g.hasEdge(dependent, required) {
		return false
	}
	if g.hasEdge(required, dependent) {
		return true
	}

	visited := map[string]bool{}
	stack := []string{required}
	for len(stack) > 0 {
		n := len(stack) - 1
		current := stack[n]
		stack = stack[:n]

		if current == dependent {
			return true
		}
		if visited[current] {
			continue
		}
		visited[current] = true
		stack = append(stack, g.required[current]...)
	}
	return false
}

// CycleError is returned by TopologicalSort when the input set contains
// a cycle.
type CycleError struct {
	Nodes []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected among columns: %s", strings.Join(e.Nodes, ", "))
}

const (
	stateUnvisited = 0
	stateTemp      = 1
	stateVisited   = 2
)

// TopologicalSort orders the given column IDs so that every column's
// dependencies (restricted to this input set) precede it. It is a tri-
// state recursive DFS (unvisited/temp/visited); a node
// revisited while temp indicates a cycle. Order is deterministic for a
// given input ordering.
func (g *Graph) TopologicalSort(cols []string) ([]string, error) {
	inSet := make(map[string]bool, len(cols))
	for _, c := range cols {
		inSet[c] = true
	}

	state := make(map[string]int, len(cols))
	sorted := make([]string, 0, len(cols))
	var cycleNodes []string

	var dfs func(node string) error
	dfs = func(node string) error {
		switch state[node] {
		case stateTemp:
			for n, st := range state {
				if st == stateTemp {
					cycleNodes = append(cycleNodes, n)
				}
			}
			return &CycleError{Nodes: cycleNodes}
		case stateVisited:
			return nil
		}

		state[node] = stateTemp
		for _, dep := range g.required[node] {
			if !inSet[dep] {
				continue
			}
			if err := dfs(dep); err != nil {
				return err
			}
		}
		state[node] = stateVisited
		sorted = append(sorted, node)
		return nil
	}

	for _, c := range cols {
		if state[c] == stateUnvisited {
			if err := dfs(c); err != nil {
				return nil, err
			}
		}
	}
	return sorted, nil
}

// MissingDependencies returns the direct dependencies of col that are not
// present in availableValues.
func (g *Graph) MissingDependencies(col string, availableValues []string) []string {
	available := make(map[string]bool, len(availableValues))
	for _, v := range availableValues {
		available[v] = true
	}
	var missing []string
	for _, dep := range g.required[col] {
		if !available[dep] {
			missing = append(missing, dep)
		}
	}
	return missing
}
