package progress

import (
	"time"

	"github.com/vk/planexec/internal/node"
)

// Event is a single step state transition.
type Event struct {
	SessionID string     `json:"session_id"`
	Index     int        `json:"index"`
	From      node.State `json:"from"`
	To        node.State `json:"to"`
	Cause     node.Cause `json:"cause,omitempty"`
	At        time.Time  `json:"at"`
}

// Sink consumes events.
type Sink interface {
	Handle(ev Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ev Event)

func (f SinkFunc) Handle(ev Event) {
	f(ev)
}
