package node

import "fmt"

// State is a position in the step state machine.
type State int32

const (
	// Pending is the initial state of every step.
	Pending State = iota
	// WaitingOnTool means the step's declared tool is being resolved.
	WaitingOnTool
	// WaitingOnPlaceholders means the step waits for the values it consumes.
	WaitingOnPlaceholders
	// Running means the step's process is executing.
	Running
	Success
	Failed
	TimedOut
	Skipped
	// Cancelled marks a running step whose process was killed because the
	// whole plan was cancelled.
	Cancelled
)

var stateNames = [...]string{
	Pending:               "pending",
	WaitingOnTool:         "waiting_on_tool",
	WaitingOnPlaceholders: "waiting_on_placeholders",
	Running:               "running",
	Success:               "success",
	Failed:                "failed",
	TimedOut:              "timed_out",
	Skipped:               "skipped",
	Cancelled:             "cancelled",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s >= Success
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(stateNames) {
		return nil, fmt.Errorf("unknown state %d", int32(s))
	}
	return []byte(stateNames[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", string(text))
}
