package plan

import (
	"fmt"
	"time"
)

// rawStep is the format-neutral wire shape of a step. Every loader decodes
// into it before normalization.
type rawStep struct {
	Index           *int     `json:"index" yaml:"index" toml:"index"`
	ActionKind      string   `json:"action_kind" yaml:"action_kind" toml:"action_kind"`
	CommandTemplate string   `json:"command_template" yaml:"command_template" toml:"command_template"`
	DeclaredTool    string   `json:"declared_tool" yaml:"declared_tool" toml:"declared_tool"`
	Produces        []string `json:"produces" yaml:"produces" toml:"produces"`
	Consumes        []string `json:"consumes" yaml:"consumes" toml:"consumes"`
	Timeout         string   `json:"timeout" yaml:"timeout" toml:"timeout"`
	Description     string   `json:"description" yaml:"description" toml:"description"`
}

type rawDocument struct {
	Query string    `json:"query" yaml:"query" toml:"query"`
	Steps []rawStep `json:"steps" yaml:"steps" toml:"steps"`
}

// toPlan normalizes a decoded document and validates it. A missing index
// defaults to the step's position in the document.
func (d rawDocument) toPlan() (*Plan, error) {
	p := &Plan{Query: d.Query, Steps: make([]Step, 0, len(d.Steps))}
	for pos, rs := range d.Steps {
		index := pos
		if rs.Index != nil {
			index = *rs.Index
		}
		kind, err := ParseActionKind(rs.ActionKind)
		if err != nil {
			return nil, &StepError{Index: index, Err: err}
		}
		var timeout time.Duration
		if rs.Timeout != "" {
			timeout, err = time.ParseDuration(rs.Timeout)
			if err != nil {
				return nil, &StepError{Index: index, Err: fmt.Errorf("invalid timeout %q: %w", rs.Timeout, err)}
			}
		}
		p.Steps = append(p.Steps, Step{
			Index:           index,
			ActionKind:      kind,
			CommandTemplate: rs.CommandTemplate,
			DeclaredTool:    rs.DeclaredTool,
			Produces:        rs.Produces,
			Consumes:        rs.Consumes,
			Timeout:         timeout,
			Description:     rs.Description,
		})
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
