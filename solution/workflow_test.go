package solution

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/BaSui01/teamflow/agent"
	"github.com/BaSui01/teamflow/types"
	"github.com/BaSui01/teamflow/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linearWorkflow() *workflow.Definition {
	return &workflow.Definition{
		Name: "onboarding",
		Nodes: []workflow.Node{
			{ID: "start", Type: workflow.NodeTypeTool},
			{ID: "capture", Type: workflow.NodeTypeAgent, Config: map[string]any{
				"team":  "sales",
				"event": map[string]any{"type": "lead_created", "payload": map[string]any{"x": 1}},
			}},
		},
		Edges: []workflow.Edge{{Source: "start", Target: "capture"}},
	}
}

func TestExecuteWorkflow(t *testing.T) {
	m := &recordingMetrics{}
	o := newOrchestrator(t, WithMetrics(m))
	require.NoError(t, o.AddTeam("sales", newTeam(t, map[string]agent.AgentFunc{"lead_created": echoAgent})))

	res, err := o.ExecuteWorkflow(context.Background(), linearWorkflow())
	require.NoError(t, err)
	assert.Equal(t, types.StatusComplete, res.Status)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "capture", res.Results[0].Node)
	assert.Equal(t, types.StatusDone, res.Results[0].Result.Status)
	assert.Len(t, o.History(), 1)

	_, err = o.ExecuteWorkflow(context.Background(), &workflow.Definition{
		Name:  "loop",
		Nodes: []workflow.Node{{ID: "a", Type: workflow.NodeTypeTool}, {ID: "b", Type: workflow.NodeTypeTool}},
		Edges: []workflow.Edge{{Source: "a", Target: "b"}, {Source: "b", Target: "a"}},
	})
	assert.ErrorIs(t, err, workflow.ErrNoEntryPoint)

	assert.Equal(t, []string{"onboarding:complete", "loop:invalid"}, m.snapshot().workflows)
}

func TestExecuteWorkflow_DispatchError(t *testing.T) {
	m := &recordingMetrics{}
	o := newOrchestrator(t, WithMetrics(m))
	require.NoError(t, o.AddTeam("sales", newTeam(t, map[string]agent.AgentFunc{"lead_created": failingAgent})))

	_, err := o.ExecuteWorkflow(context.Background(), linearWorkflow())
	assert.ErrorIs(t, err, errAgent)
	assert.Equal(t, []string{"onboarding:error"}, m.snapshot().workflows)
}

func TestExecuteWorkflowFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "onboarding.yaml")
	require.NoError(t, linearWorkflow().Save(path))

	o := newOrchestrator(t)
	require.NoError(t, o.AddTeam("sales", newTeam(t, map[string]agent.AgentFunc{"lead_created": echoAgent})))

	res, err := o.ExecuteWorkflowFile(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, res.Results, 1)

	_, err = o.ExecuteWorkflowFile(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
