// Package node holds the runtime state of a single plan step while a plan
// executes: its position in the step state machine and the cause recorded
// when it ends in anything other than success.
package node

import (
	"sync/atomic"

	"github.com/vk/planexec/internal/plan"
)

// Node is the runtime counterpart of a plan step. Its state is managed
// atomically so the scheduler, progress sinks and tests can read it from any
// goroutine.
type Node struct {
	// Step is the immutable plan step this node executes.
	Step plan.Step

	state atomic.Int32
}

// New creates a node in the Pending state.
func New(step plan.Step) *Node {
	return &Node{Step: step}
}

// Index returns the step's stable index.
func (n *Node) Index() int {
	return n.Step.Index
}

// State atomically returns the node's current state.
func (n *Node) State() State {
	return State(n.state.Load())
}

// Transition moves the node to the given state and returns the state it left.
// Terminal states are final: once a node is terminal every later transition
// is refused and ok is false.
func (n *Node) Transition(to State) (from State, ok bool) {
	for {
		cur := n.state.Load()
		if State(cur).Terminal() {
			return State(cur), false
		}
		if n.state.CompareAndSwap(cur, int32(to)) {
			return State(cur), true
		}
	}
}
