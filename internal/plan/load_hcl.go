package plan

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// hclPlanFile is the top-level structure of an HCL plan:
//
//	query = "scan 10.0.0.0/24"
//
//	step "0" {
//	  action_kind      = "discovery"
//	  command_template = "ip route"
//	  produces         = ["gateway"]
//	}
type hclPlanFile struct {
	Query string     `hcl:"query,optional"`
	Steps []*hclStep `hcl:"step,block"`
}

type hclStep struct {
	Index           string   `hcl:"index,label"`
	ActionKind      string   `hcl:"action_kind"`
	CommandTemplate string   `hcl:"command_template"`
	DeclaredTool    string   `hcl:"declared_tool,optional"`
	Produces        []string `hcl:"produces,optional"`
	Consumes        []string `hcl:"consumes,optional"`
	Timeout         string   `hcl:"timeout,optional"`
	Description     string   `hcl:"description,optional"`
}

func loadHCL(path string) (*Plan, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL plan %s: %w", path, diags)
	}
	return decodeHCL(file.Body, path)
}

// ParseHCL decodes a plan from HCL source held in memory.
func ParseHCL(src []byte, filename string) (*Plan, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL plan %s: %w", filename, diags)
	}
	return decodeHCL(file.Body, filename)
}

func decodeHCL(body hcl.Body, filename string) (*Plan, error) {
	var parsed hclPlanFile
	if diags := gohcl.DecodeBody(body, evalContext(), &parsed); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL plan %s: %w", filename, diags)
	}

	doc := rawDocument{Query: parsed.Query}
	for _, s := range parsed.Steps {
		index, err := strconv.Atoi(s.Index)
		if err != nil {
			return nil, fmt.Errorf("step label %q in %s is not an integer index", s.Index, filename)
		}
		doc.Steps = append(doc.Steps, rawStep{
			Index:           &index,
			ActionKind:      s.ActionKind,
			CommandTemplate: s.CommandTemplate,
			DeclaredTool:    s.DeclaredTool,
			Produces:        s.Produces,
			Consumes:        s.Consumes,
			Timeout:         s.Timeout,
			Description:     s.Description,
		})
	}
	return doc.toPlan()
}

// evalContext exposes the process environment as env.NAME and a few string
// helpers to HCL expressions.
func evalContext() *hcl.EvalContext {
	vars := map[string]cty.Value{}
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !hclIdentifier(name) {
			continue
		}
		vars[name] = cty.StringVal(value)
	}
	env := cty.EmptyObjectVal
	if len(vars) > 0 {
		env = cty.ObjectVal(vars)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": env},
		Functions: map[string]function.Function{
			"upper": stdlib.UpperFunc,
			"lower": stdlib.LowerFunc,
			"join":  stdlib.JoinFunc,
			"trim":  stdlib.TrimSpaceFunc,
		},
	}
}

func hclIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9'):
		default:
			return false
		}
	}
	return true
}
