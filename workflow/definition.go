package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// NodeType defines the type of a graph node
type NodeType string

const (
	// NodeTypeAgent dispatches to a team agent
	NodeTypeAgent NodeType = "agent"
	// NodeTypeTool marks a tool step
	NodeTypeTool NodeType = "tool"
)

var (
	ErrInvalidDefinition = errors.New("invalid workflow definition")
	ErrUnknownNode       = errors.New("edge references unknown node")
	ErrNoEntryPoint      = errors.New("workflow has no entry point")
	ErrCycle             = errors.New("workflow contains nodes that can never run")
)

// Node is one step of the graph. A node whose config carries "team" and
// "event" dispatches that event; any other node only propagates readiness.
type Node struct {
	ID     string         `json:"id" yaml:"id"`
	Type   NodeType       `json:"type" yaml:"type"`
	Label  string         `json:"label" yaml:"label"`
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// Edge orders Source before Target.
type Edge struct {
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
	Label  string `json:"label,omitempty" yaml:"label,omitempty"`
	ID     string `json:"id,omitempty" yaml:"id,omitempty"`
}

// Definition is a workflow graph as stored on disk.
type Definition struct {
	Name  string `json:"name" yaml:"name"`
	Nodes []Node `json:"nodes" yaml:"nodes"`
	Edges []Edge `json:"edges" yaml:"edges"`
}

// Validate checks node types, unique ids and edge endpoints.
func (d *Definition) Validate() error {
	if d.Nodes == nil {
		return fmt.Errorf("%w: nodes must be a list", ErrInvalidDefinition)
	}

	ids := make(map[string]struct{}, len(d.Nodes))
	for i, n := range d.Nodes {
		if n.ID == "" {
			return fmt.Errorf("%w: node %d has no id", ErrInvalidDefinition, i)
		}
		if n.Type != NodeTypeAgent && n.Type != NodeTypeTool {
			return fmt.Errorf("%w: node %s type must be 'agent' or 'tool', got %q", ErrInvalidDefinition, n.ID, n.Type)
		}
		if _, dup := ids[n.ID]; dup {
			return fmt.Errorf("%w: duplicate node id %s", ErrInvalidDefinition, n.ID)
		}
		ids[n.ID] = struct{}{}
	}

	for _, e := range d.Edges {
		if e.Source == "" || e.Target == "" {
			return fmt.Errorf("%w: edge must contain source and target", ErrInvalidDefinition)
		}
		if _, ok := ids[e.Source]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownNode, e.Source)
		}
		if _, ok := ids[e.Target]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownNode, e.Target)
		}
	}
	return nil
}

// ParseDefinition decodes and validates a definition. format is "json" or "yaml".
func ParseDefinition(data []byte, format string) (*Definition, error) {
	var def Definition
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
		}
	default:
		if err := json.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
		}
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// LoadDefinition reads a definition, choosing the format by extension. A
// missing name falls back to the file's base name.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow: %w", err)
	}
	def, err := ParseDefinition(data, formatOf(path))
	if err != nil {
		return nil, err
	}
	if def.Name == "" {
		def.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return def, nil
}

// Save writes the definition as indented JSON, or YAML for .yaml/.yml paths.
func (d *Definition) Save(path string) error {
	var (
		data []byte
		err  error
	)
	if formatOf(path) == "yaml" {
		data, err = yaml.Marshal(d)
	} else {
		data, err = json.MarshalIndent(d, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal workflow: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}
