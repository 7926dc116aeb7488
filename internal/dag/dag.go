package dag

import (
	"fmt"
	"maps"
	"slices"
)

// New creates and returns an initialized, empty Graph.
func New() *Graph {
	return &Graph{
		nodes:     make(map[int]*node),
		producers: make(map[string][]int),
	}
}

// AddNode adds a step to the graph. Adding an existing index is a no-op.
func (g *Graph) AddNode(index int) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if _, ok := g.nodes[index]; ok {
		return
	}
	g.nodes[index] = &node{
		index:      index,
		deps:       make(map[int]*node),
		dependents: make(map[int]*node),
	}
}

// AddEdge records that step `to` must run after step `from`.
func (g *Graph) AddEdge(from, to int) error {
	if from == to {
		return fmt.Errorf("self-referential edge not allowed: %d -> %d", from, to)
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	fromNode, ok := g.nodes[from]
	if !ok {
		return fmt.Errorf("source node not found: %d", from)
	}
	toNode, ok := g.nodes[to]
	if !ok {
		return fmt.Errorf("destination node not found: %d", to)
	}

	toNode.deps[from] = fromNode
	fromNode.dependents[to] = toNode
	return nil
}

// Len returns the number of steps in the graph.
func (g *Graph) Len() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.nodes)
}

// Dependencies returns the sorted indices the given step depends on.
func (g *Graph) Dependencies(index int) ([]int, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[index]
	if !ok {
		return nil, fmt.Errorf("node not found: %d", index)
	}
	return slices.Sorted(maps.Keys(n.deps)), nil
}

// Dependents returns the sorted indices that depend on the given step.
func (g *Graph) Dependents(index int) ([]int, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[index]
	if !ok {
		return nil, fmt.Errorf("node not found: %d", index)
	}
	return slices.Sorted(maps.Keys(n.dependents)), nil
}

// Roots returns the sorted indices of steps with no dependencies.
func (g *Graph) Roots() []int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	var roots []int
	for idx, n := range g.nodes {
		if len(n.deps) == 0 {
			roots = append(roots, idx)
		}
	}
	slices.Sort(roots)
	return roots
}

// Producers returns the indices of the steps that produce name.
func (g *Graph) Producers(name string) []int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return slices.Clone(g.producers[name])
}

// DetectCycles checks the graph for cycles and returns a *CycleError naming
// the steps on the first cycle found. Traversal follows ascending indices so
// the report is deterministic.
func (g *Graph) DetectCycles() error {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	// permanent: fully visited and not on a cycle.
	// stack: the current DFS path, in order.
	permanent := make(map[int]bool)
	onStack := make(map[int]bool)
	var stack []int

	var visit func(n *node) error
	visit = func(n *node) error {
		if permanent[n.index] {
			return nil
		}
		if onStack[n.index] {
			start := slices.Index(stack, n.index)
			cycle := slices.Clone(stack[start:])
			slices.Sort(cycle)
			return &CycleError{Indices: cycle}
		}

		onStack[n.index] = true
		stack = append(stack, n.index)
		for _, idx := range slices.Sorted(maps.Keys(n.dependents)) {
			if err := visit(n.dependents[idx]); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		delete(onStack, n.index)
		permanent[n.index] = true
		return nil
	}

	for _, idx := range slices.Sorted(maps.Keys(g.nodes)) {
		if err := visit(g.nodes[idx]); err != nil {
			return err
		}
	}
	return nil
}

// TopologicalOrder returns the step indices in an order where every step
// follows its dependencies. Ties are broken by ascending index.
func (g *Graph) TopologicalOrder() ([]int, error) {
	if err := g.DetectCycles(); err != nil {
		return nil, err
	}

	g.mutex.RLock()
	defer g.mutex.RUnlock()

	remaining := make(map[int]int, len(g.nodes))
	var ready []int
	for idx, n := range g.nodes {
		remaining[idx] = len(n.deps)
		if len(n.deps) == 0 {
			ready = append(ready, idx)
		}
	}

	order := make([]int, 0, len(g.nodes))
	for len(ready) > 0 {
		slices.Sort(ready)
		idx := ready[0]
		ready = ready[1:]
		order = append(order, idx)
		for dep := range g.nodes[idx].dependents {
			remaining[dep]--
			if remaining[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}
	return order, nil
}
