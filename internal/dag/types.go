package dag

import "sync"

// Graph is a collection of steps and their dependencies, keyed by step index.
// All operations on the graph are concurrency-safe.
type Graph struct {
	mutex sync.RWMutex
	nodes map[int]*node
	// producers maps a placeholder name to the indices of the steps producing it.
	producers map[string][]int
}

// node is un-exported to enforce interaction with the graph via step indices.
type node struct {
	index int
	// deps holds the producers this step waits on.
	deps map[int]*node
	// dependents holds the consumers waiting on this step.
	dependents map[int]*node
}
