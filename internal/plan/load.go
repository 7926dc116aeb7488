package plan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/vk/planexec/internal/ctxlog"
	"gopkg.in/yaml.v3"
)

// Load reads a plan document from disk. The format is chosen by extension:
// .json, .yaml/.yml, .toml or .hcl.
func Load(ctx context.Context, path string) (*Plan, error) {
	logger := ctxlog.FromContext(ctx)
	ext := strings.ToLower(filepath.Ext(path))
	logger.Debug("Loading plan document.", "path", path, "format", ext)

	if ext == ".hcl" {
		return loadHCL(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan %s: %w", path, err)
	}

	var p *Plan
	switch ext {
	case ".json":
		p, err = ParseJSON(data)
	case ".yaml", ".yml":
		p, err = ParseYAML(data)
	case ".toml":
		p, err = ParseTOML(data)
	default:
		return nil, fmt.Errorf("unsupported plan format %q for %s", ext, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load plan %s: %w", path, err)
	}
	logger.Debug("Plan loaded.", "path", path, "steps", len(p.Steps))
	return p, nil
}

// ParseJSON decodes a plan from JSON. Both an object with a "steps" field and
// a bare array of steps are accepted.
func ParseJSON(data []byte) (*Plan, error) {
	var doc rawDocument
	trimmed := bytes.TrimSpace(data)
	var target any = &doc
	if len(trimmed) > 0 && trimmed[0] == '[' {
		target = &doc.Steps
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return nil, fmt.Errorf("failed to decode JSON plan: %w", err)
	}
	return doc.toPlan()
}

// ParseYAML decodes a plan from YAML.
func ParseYAML(data []byte) (*Plan, error) {
	var doc rawDocument
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode YAML plan: %w", err)
	}
	return doc.toPlan()
}

// ParseTOML decodes a plan from TOML, where steps are an array of tables.
func ParseTOML(data []byte) (*Plan, error) {
	var doc rawDocument
	md, err := toml.Decode(string(data), &doc)
	if err != nil {
		return nil, fmt.Errorf("failed to decode TOML plan: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("failed to decode TOML plan: unknown key %q", undecoded[0].String())
	}
	return doc.toPlan()
}
