package team

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/BaSui01/teamflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParseConfig_JSON(t *testing.T) {
	data := []byte(`{
		"provider": "autogen.agentchat.teams.RoundRobinGroupChat",
		"responsibilities": ["echo"],
		"config": {"participants": [
			{"provider": "roles.AssistantAgent", "config": {"name": "echo", "skills": ["repeat"]}},
			{"config": {}}
		]}
	}`)

	cfg, err := ParseConfig(data, "json")
	require.NoError(t, err)
	assert.Equal(t, "autogen.agentchat.teams.RoundRobinGroupChat", cfg.Provider)
	assert.Equal(t, []string{"echo"}, cfg.ParticipantNames())
	assert.Equal(t, map[string]any{"skills": []any{"repeat"}}, cfg.Config.Participants[0].FactoryConfig())
}

func TestParseConfig_YAML(t *testing.T) {
	data := []byte(`
responsibilities: [echo, approval]
config:
  participants:
    - config: {name: echo}
    - config: {name: approval, wait: 10ms}
`)
	cfg, err := ParseConfig(data, "yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{"echo", "approval"}, cfg.ParticipantNames())
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"malformed json", `{"config": `},
		{"missing config", `{"responsibilities": ["a"]}`},
		{"participants not array", `{"config": {"participants": {"name": "a"}}}`},
		{"name not string", `{"config": {"participants": [{"config": {"name": 3}}]}}`},
		{"not allowed", `{"responsibilities": ["a"], "config": {"participants": [{"config": {"name": "b"}}]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.data), "json")
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrInvalidConfig)
		})
	}
}

func TestLoadConfig_ByExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "team.yml")
	require.NoError(t, os.WriteFile(path, []byte("config:\n  participants:\n    - config: {name: echo}\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"echo"}, cfg.ParticipantNames())

	_, err = LoadConfig(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
	assert.Equal(t, "json", FormatOf("team.JSON"))
	assert.Equal(t, "yaml", FormatOf("team.YAML"))
}

// 参与者是责任清单的子集时校验通过，否则失败
func TestConfig_AllowListProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		universe := []string{"a", "b", "c", "d", "e"}
		resp := rapid.SliceOfNDistinct(rapid.SampledFrom(universe), 1, 5, rapid.ID[string]).Draw(t, "responsibilities")
		parts := rapid.SliceOfN(rapid.SampledFrom(universe), 0, 6).Draw(t, "participants")

		cfg := &Config{Responsibilities: resp}
		for _, p := range parts {
			cfg.Config.Participants = append(cfg.Config.Participants, Participant{Config: map[string]any{"name": p}})
		}

		allowed := make(map[string]bool)
		for _, r := range resp {
			allowed[r] = true
		}
		subset := true
		for _, p := range parts {
			if !allowed[p] {
				subset = false
			}
		}

		err := cfg.Validate()
		if subset {
			if err != nil {
				t.Fatalf("expected success, got %v", err)
			}
		} else if err == nil {
			t.Fatalf("expected failure for participants %v outside %v", parts, resp)
		}
	})
}

func TestConfig_EmptyResponsibilitiesAllowsAll(t *testing.T) {
	cfg := configFor("x")
	cfg.Responsibilities = nil
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"x"}, cfg.ParticipantNames())
	assert.Equal(t, "", Participant{}.Name())
}
