package team

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BaSui01/teamflow/types"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// 📄 团队配置
// =============================================================================

// Config 团队配置文档
//
//	{
//	  "provider": "autogen.agentchat.teams.RoundRobinGroupChat",
//	  "responsibilities": ["echo"],
//	  "config": {"participants": [{"config": {"name": "echo"}}]}
//	}
type Config struct {
	Provider         string     `json:"provider,omitempty" yaml:"provider,omitempty"`
	Responsibilities []string   `json:"responsibilities,omitempty" yaml:"responsibilities,omitempty"`
	Config           TeamConfig `json:"config" yaml:"config"`
}

// TeamConfig 参与者列表
type TeamConfig struct {
	Participants []Participant `json:"participants" yaml:"participants"`
}

// Participant 单个参与者；config.name 决定解析的 agent，其余键透传给工厂
type Participant struct {
	Provider string         `json:"provider,omitempty" yaml:"provider,omitempty"`
	Config   map[string]any `json:"config" yaml:"config"`
}

// Name returns config.name, or "" when absent.
func (p Participant) Name() string {
	name, _ := p.Config["name"].(string)
	return name
}

// FactoryConfig returns the participant config without the name key.
func (p Participant) FactoryConfig() map[string]any {
	out := make(map[string]any, len(p.Config))
	for k, v := range p.Config {
		if k == "name" {
			continue
		}
		out[k] = v
	}
	return out
}

// ParticipantNames lists named participants in declaration order.
func (c *Config) ParticipantNames() []string {
	names := make([]string, 0, len(c.Config.Participants))
	for _, p := range c.Config.Participants {
		if n := p.Name(); n != "" {
			names = append(names, n)
		}
	}
	return names
}

// Validate enforces the responsibilities allow-list. An empty list allows
// every participant.
func (c *Config) Validate() error {
	if len(c.Responsibilities) == 0 {
		return nil
	}
	allowed := make(map[string]struct{}, len(c.Responsibilities))
	for _, r := range c.Responsibilities {
		allowed[r] = struct{}{}
	}
	for _, name := range c.ParticipantNames() {
		if _, ok := allowed[name]; !ok {
			return types.Errorf(types.ErrInvalidConfig, "agent %q not permitted by responsibilities", name)
		}
	}
	return nil
}

// configSchema 团队配置的固定结构约束
const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["config"],
  "properties": {
    "provider": {"type": "string"},
    "responsibilities": {
      "type": "array",
      "items": {"type": "string", "minLength": 1}
    },
    "config": {
      "type": "object",
      "required": ["participants"],
      "properties": {
        "participants": {
          "type": "array",
          "items": {
            "type": "object",
            "properties": {
              "provider": {"type": "string"},
              "config": {
                "type": "object",
                "properties": {"name": {"type": "string"}}
              }
            }
          }
        }
      }
    }
  }
}`

var configSchemaLoader = gojsonschema.NewStringLoader(configSchema)

// LoadConfig reads a team definition; the format follows the extension
// (.yaml/.yml for YAML, JSON otherwise).
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read team config: %w", err)
	}
	return ParseConfig(data, FormatOf(path))
}

// FormatOf maps a file extension to "yaml" or "json".
func FormatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

// ParseConfig decodes and validates a team definition. Structural problems
// and allow-list violations are reported as ErrInvalidConfig.
func ParseConfig(data []byte, format string) (*Config, error) {
	doc, err := decodeDocument(data, format)
	if err != nil {
		return nil, types.Errorf(types.ErrInvalidConfig, "malformed team config: %w", err)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, types.Errorf(types.ErrInvalidConfig, "malformed team config: %w", err)
	}
	if err := validateDocument(configSchemaLoader, raw); err != nil {
		return nil, types.Errorf(types.ErrInvalidConfig, "team config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, types.Errorf(types.ErrInvalidConfig, "malformed team config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// decodeDocument 把 JSON 或 YAML 解码为通用结构
func decodeDocument(data []byte, format string) (any, error) {
	var doc any
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func validateDocument(schema gojsonschema.JSONLoader, raw []byte) error {
	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("schema validation errors: %s", strings.Join(msgs, "; "))
	}
	return nil
}
