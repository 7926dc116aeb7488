package session

import (
	"errors"
	"slices"
	"time"

	"github.com/vk/planexec/internal/node"
	"github.com/vk/planexec/internal/plan"
)

var (
	ErrSealed   = errors.New("session is sealed")
	ErrNotFound = errors.New("session not found")
)

// Outcome summarizes how a plan run ended.
type Outcome string

const (
	// Completed means every step reached a terminal state.
	Completed Outcome = "completed"
	// Aborted means the run was cancelled before it could finish normally.
	Aborted Outcome = "aborted"
)

// StepResult is the immutable record of one step.
type StepResult struct {
	Index           int           `json:"index"`
	Status          node.State    `json:"status"`
	Cause           node.Cause    `json:"cause,omitempty"`
	Error           string        `json:"error,omitempty"`
	Command         string        `json:"command,omitempty"`
	Stdout          string        `json:"stdout,omitempty"`
	Stderr          string        `json:"stderr,omitempty"`
	StdoutTruncated bool          `json:"stdout_truncated,omitempty"`
	StderrTruncated bool          `json:"stderr_truncated,omitempty"`
	ExitCode        *int          `json:"exit_code,omitempty"`
	StartedAt       time.Time     `json:"started_at,omitzero"`
	EndedAt         time.Time     `json:"ended_at"`
	Duration        time.Duration `json:"duration"`
}

// Session is the persisted record of a plan execution.
type Session struct {
	ID           string            `json:"id"`
	Plan         plan.Plan         `json:"plan"`
	Placeholders map[string]string `json:"placeholders"`
	// Results are in completion order.
	Results   []StepResult `json:"results"`
	StartedAt time.Time    `json:"started_at"`
	EndedAt   time.Time    `json:"ended_at"`
	Outcome   Outcome      `json:"outcome"`
	Sealed    bool         `json:"sealed"`
}

// Summary is the short form used when listing sessions.
type Summary struct {
	ID        string
	StartedAt time.Time
	EndedAt   time.Time
	Outcome   Outcome
	Steps     int
	Failed    int
}

// Summarize returns the listing form of s.
func (s *Session) Summarize() Summary {
	sum := Summary{ID: s.ID, StartedAt: s.StartedAt, EndedAt: s.EndedAt, Outcome: s.Outcome, Steps: len(s.Plan.Steps)}
	for _, r := range s.Results {
		if r.Status != node.Success {
			sum.Failed++
		}
	}
	return sum
}

// ResultsByIndex returns the results sorted by step index, the order in which
// transcripts are rendered.
func (s *Session) ResultsByIndex() []StepResult {
	out := slices.Clone(s.Results)
	slices.SortFunc(out, func(a, b StepResult) int { return a.Index - b.Index })
	return out
}

// Result returns the recorded result of a step.
func (s *Session) Result(index int) (StepResult, bool) {
	for _, r := range s.Results {
		if r.Index == index {
			return r, true
		}
	}
	return StepResult{}, false
}

// clone returns a deep copy so callers never share mutable state with a recorder.
func (s *Session) clone() *Session {
	c := *s
	c.Plan.Steps = slices.Clone(s.Plan.Steps)
	c.Results = slices.Clone(s.Results)
	c.Placeholders = make(map[string]string, len(s.Placeholders))
	for k, v := range s.Placeholders {
		c.Placeholders[k] = v
	}
	return &c
}
