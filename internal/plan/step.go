// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package plan

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

var (
	ErrUnknownActionKind      = errors.New("unknown action kind")
	ErrDuplicateIndex         = errors.New("duplicate step index")
	ErrInvalidIndex           = errors.New("step index must not be negative")
	ErrEmptyCommand           = errors.New("command template is empty")
	ErrProducesOnNonDiscovery = errors.New("only discovery steps may produce placeholders")
	ErrInvalidPlaceholderName = errors.New("invalid placeholder name")
	ErrEmptyPlan              = errors.New("plan has no steps")
	ErrNegativeTimeout        = errors.New("step timeout must not be negative")
)

// ActionKind is the closed set of step kinds a plan may contain.
type ActionKind int

const (
	ShellCommand ActionKind = iota + 1
	ToolInvocation
	Discovery
)

var actionKindNames = map[ActionKind]string{
	ShellCommand:   "shell_command",
	ToolInvocation: "tool_invocation",
	Discovery:      "discovery",
}

func (k ActionKind) String() string {
	if name, ok := actionKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ActionKind(%d)", int(k))
}

// ParseActionKind maps the wire name of a kind to its value.
func ParseActionKind(s string) (ActionKind, error) {
	for kind, name := range actionKindNames {
		if name == s {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownActionKind, s)
}

// MarshalText implements encoding.TextMarshaler.
func (k ActionKind) MarshalText() ([]byte, error) {
	name, ok := actionKindNames[k]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownActionKind, int(k))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ActionKind) UnmarshalText(text []byte) error {
	parsed, err := ParseActionKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Step is one unit of planned work.
type Step struct {
	Index           int           `json:"index"`
	ActionKind      ActionKind    `json:"action_kind"`
	CommandTemplate string        `json:"command_template"`
	DeclaredTool    string        `json:"declared_tool,omitempty"`
	Produces        []string      `json:"produces,omitempty"`
	Consumes        []string      `json:"consumes,omitempty"`
	Timeout         time.Duration `json:"timeout,omitempty"`
	Description     string        `json:"description,omitempty"`
}

// IsDiscovery reports whether successful output of the step publishes placeholders.
func (s Step) IsDiscovery() bool {
	return s.ActionKind == Discovery
}

// Tool returns the tool the step depends on. An explicit declaration wins;
// tool invocations without one fall back to the command's executable name.
func (s Step) Tool() string {
	if s.DeclaredTool != "" {
		return s.DeclaredTool
	}
	if s.ActionKind == ToolInvocation {
		return ExecutableName(s.CommandTemplate)
	}
	return ""
}

// StepError attributes a validation failure to a step.
type StepError struct {
	Index int
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d: %v", e.Index, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Plan is an ordered, validated list of steps.
type Plan struct {
	Query string `json:"query,omitempty"`
	Steps []Step `json:"steps"`
}

// Step returns the step with the given index.
func (p Plan) Step(index int) (Step, bool) {
	for _, s := range p.Steps {
		if s.Index == index {
			return s, true
		}
	}
	return Step{}, false
}

// Indices returns the step indices in ascending order.
func (p Plan) Indices() []int {
	out := make([]int, 0, len(p.Steps))
	for _, s := range p.Steps {
		out = append(out, s.Index)
	}
	slices.Sort(out)
	return out
}

// Validate runs the ingestion checks and normalizes Consumes so that it holds
// every placeholder referenced by the command template.
func (p *Plan) Validate() error {
	if len(p.Steps) == 0 {
		return ErrEmptyPlan
	}
	seen := make(map[int]struct{}, len(p.Steps))
	for i := range p.Steps {
		s := &p.Steps[i]
		if s.Index < 0 {
			return &StepError{Index: s.Index, Err: ErrInvalidIndex}
		}
		if _, dup := seen[s.Index]; dup {
			return &StepError{Index: s.Index, Err: ErrDuplicateIndex}
		}
		seen[s.Index] = struct{}{}

		if _, ok := actionKindNames[s.ActionKind]; !ok {
			return &StepError{Index: s.Index, Err: fmt.Errorf("%w: %d", ErrUnknownActionKind, int(s.ActionKind))}
		}
		if s.CommandTemplate == "" {
			return &StepError{Index: s.Index, Err: ErrEmptyCommand}
		}
		if s.Timeout < 0 {
			return &StepError{Index: s.Index, Err: fmt.Errorf("%w: %s", ErrNegativeTimeout, s.Timeout)}
		}
		if len(s.Produces) > 0 && !s.IsDiscovery() {
			return &StepError{Index: s.Index, Err: ErrProducesOnNonDiscovery}
		}
		for _, name := range append(slices.Clone(s.Produces), s.Consumes...) {
			if !ValidPlaceholderName(name) {
				return &StepError{Index: s.Index, Err: fmt.Errorf("%w: %q", ErrInvalidPlaceholderName, name)}
			}
		}
		s.Produces = dedupe(s.Produces)
		s.Consumes = dedupe(append(s.Consumes, ScanPlaceholders(s.CommandTemplate)...))
	}
	return nil
}

// dedupe returns the sorted set of names, or nil when there are none.
func dedupe(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	out := slices.Clone(names)
	slices.Sort(out)
	return slices.Compact(out)
}
