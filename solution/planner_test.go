package solution

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/BaSui01/teamflow/agent"
	"github.com/BaSui01/teamflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const plansYAML = `
onboard_lead:
  - team: sales
    event:
      type: lead_created
      payload: {name: Ada}
  - team: support
    event:
      type: welcome
      payload: {}
`

func TestParsePlans(t *testing.T) {
	plans, err := ParsePlans([]byte(plansYAML), "yaml")
	require.NoError(t, err)
	require.Len(t, plans["onboard_lead"], 2)
	assert.Equal(t, "sales", plans["onboard_lead"][0].Team)
	assert.Equal(t, "Ada", plans["onboard_lead"][0].Event.Payload["name"])

	plans, err = ParsePlans([]byte(`{"g": [{"team": "t", "event": {"type": "e"}}]}`), "json")
	require.NoError(t, err)
	assert.Len(t, plans["g"], 1)

	_, err = ParsePlans([]byte(`{"g": [{"event": {"type": "e"}}]}`), "json")
	assert.ErrorIs(t, err, types.ErrInvalidConfig)
	_, err = ParsePlans([]byte(`[`), "json")
	assert.ErrorIs(t, err, types.ErrInvalidConfig)
	_, err = ParsePlans(nil, "toml")
	assert.ErrorIs(t, err, types.ErrInvalidConfig)
}

func TestLoadPlans(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte(plansYAML), 0o644))
	plans, err := LoadPlans(path)
	require.NoError(t, err)
	assert.Contains(t, plans, "onboard_lead")

	_, err = LoadPlans(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, types.ErrInvalidConfig)
}

func TestExecuteGoal(t *testing.T) {
	plans, err := ParsePlans([]byte(plansYAML), "yaml")
	require.NoError(t, err)

	m := &recordingMetrics{}
	o := newOrchestrator(t, WithPlans(plans), WithMetrics(m))
	require.NoError(t, o.AddTeam("sales", newTeam(t, map[string]agent.AgentFunc{"lead_created": echoAgent})))

	res, err := o.ExecuteGoal(context.Background(), "onboard_lead")
	require.NoError(t, err)
	assert.Equal(t, types.StatusComplete, res.Status)
	require.Len(t, res.Results, 2)
	assert.Equal(t, "sales", res.Results[0].Team)
	assert.Equal(t, types.StatusDone, res.Results[0].Result.Status)
	// 缺失的团队以结构化状态记录，不中断目标
	assert.Equal(t, types.StatusUnknownTeam, res.Results[1].Result.Status)

	res, err = o.ExecuteGoal(context.Background(), "world_domination")
	require.NoError(t, err)
	assert.Equal(t, types.StatusUnknownGoal, res.Status)

	assert.Equal(t, []string{"onboard_lead:complete", "world_domination:unknown_goal"}, m.snapshot().goals)
}

func TestExecuteGoal_StepError(t *testing.T) {
	o := newOrchestrator(t, WithPlans(Plans{"g": {{Team: "sales", Event: types.NewEvent("lead_created", nil)}}}))
	require.NoError(t, o.AddTeam("sales", newTeam(t, map[string]agent.AgentFunc{"lead_created": failingAgent})))

	_, err := o.ExecuteGoal(context.Background(), "g")
	assert.ErrorIs(t, err, errAgent)
	assert.Contains(t, err.Error(), "goal g step 1")
}

func TestExecuteGoal_NotConfigured(t *testing.T) {
	o := newOrchestrator(t)
	_, err := o.ExecuteGoal(context.Background(), "g")
	assert.ErrorIs(t, err, ErrPlannerNotConfigured)
	_, err = o.PlanGoal("g")
	assert.ErrorIs(t, err, ErrPlannerNotConfigured)
}

func TestPlanGoal_DryRun(t *testing.T) {
	g := newGate()
	o := newOrchestrator(t, WithPlans(Plans{"g": {{Team: "sales", Event: types.NewEvent("lead_created", nil)}}}))
	require.NoError(t, o.AddTeam("sales", newTeam(t, map[string]agent.AgentFunc{"lead_created": g.run})))

	res, err := o.PlanGoal("g")
	require.NoError(t, err)
	assert.Equal(t, types.StatusPlanned, res.Status)
	require.Len(t, res.Steps, 1)
	assert.Equal(t, "sales", res.Steps[0].Team)
	assert.Zero(t, g.calls.Load())

	res, err = o.PlanGoal("missing")
	require.NoError(t, err)
	assert.Equal(t, types.StatusUnknownGoal, res.Status)
}
