package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BaSui01/teamflow/activity"
	"github.com/BaSui01/teamflow/agent"
	"github.com/BaSui01/teamflow/solution"
	"github.com/BaSui01/teamflow/team"
	"github.com/BaSui01/teamflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const salesTeam = `{"config": {"participants": [{"config": {"name": "lead_created"}}]}}`

type envelope[T any] struct {
	Success bool       `json:"success"`
	Data    T          `json:"data"`
	Error   *ErrorInfo `json:"error"`
}

func echoAgent(_ context.Context, payload map[string]any) (any, error) {
	return map[string]any{"echo": payload}, nil
}

// newTestAPI 用真实的 solution 编排器与路由构建测试服务
func newTestAPI(t *testing.T, opts ...solution.Option) (*solution.Orchestrator, http.Handler) {
	t.Helper()
	reg := agent.NewRegistry(nil)
	reg.Register("lead_created", func(map[string]any) (any, error) { return agent.AgentFunc(echoAgent), nil })
	resolver := agent.NewResolver(reg, agent.NewCatalog(), nil)

	logger := zaptest.NewLogger(t)
	opts = append([]solution.Option{
		solution.WithLogger(logger),
		solution.WithTeamOptions(team.WithResolver(resolver)),
	}, opts...)
	orch := solution.New(opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = orch.Close(ctx)
	})

	mux := http.NewServeMux()
	NewSet(orch, "test", logger).Register(mux)
	return orch, mux
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	r := httptest.NewRequest(method, path, &buf)
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var env envelope[T]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func addSales(t *testing.T, h http.Handler) {
	t.Helper()
	w := do(t, h, http.MethodPost, "/teams", map[string]any{"name": "sales", "config": json.RawMessage(salesTeam)})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

// =============================================================================
// 🧪 事件
// =============================================================================

func TestEventHandler_Dispatch(t *testing.T) {
	_, h := newTestAPI(t)
	addSales(t, h)

	w := do(t, h, http.MethodPost, "/teams/sales/events", `{"type":"lead_created","payload":{"x":1}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	env := decode[json.RawMessage](t, w)
	assert.True(t, env.Success)
	assert.JSONEq(t, `{"status":"done","result":{"echo":{"x":1}}}`, string(env.Data))

	// 未注册的事件类型是结构化结果，不是错误
	w = do(t, h, http.MethodPost, "/teams/sales/events", `{"type":"lead_lost"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, types.StatusIgnored, decode[types.Result](t, w).Data.Status)

	w = do(t, h, http.MethodPost, "/teams/nobody/events", `{"type":"lead_created"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, types.StatusUnknownTeam, decode[types.Result](t, w).Data.Status)
}

func TestEventHandler_BadRequests(t *testing.T) {
	_, h := newTestAPI(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing type", `{"payload":{}}`},
		{"malformed", `{"type":`},
		{"unknown field", `{"type":"a","extra":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/teams/sales/events", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			env := decode[json.RawMessage](t, w)
			assert.False(t, env.Success)
			assert.Equal(t, string(types.ErrCodeInvalidRequest), env.Error.Code)
		})
	}
}

func TestEventHandler_Enqueue(t *testing.T) {
	_, h := newTestAPI(t, solution.WithWorkers(2, 4))
	addSales(t, h)

	w := do(t, h, http.MethodPost, "/teams/sales/enqueue", `{"id":"ev-1","type":"lead_created","payload":{"x":2}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[types.Result](t, w).Data
	assert.Equal(t, types.StatusDone, res.Status)
}

func TestEventHandler_EnqueueAfterClose(t *testing.T) {
	orch, h := newTestAPI(t)
	addSales(t, h)
	require.NoError(t, orch.Close(context.Background()))

	w := do(t, h, http.MethodPost, "/teams/sales/enqueue", `{"type":"lead_created"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, w.Body.String())
}

func TestEventHandler_Activity(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "activity.jsonl")
	al, err := activity.NewLogger(logPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = al.Close() })

	_, h := newTestAPI(t, solution.WithActivityLog(al))
	addSales(t, h)

	for i := 0; i < 3; i++ {
		w := do(t, h, http.MethodPost, "/teams/sales/events", `{"type":"lead_created","payload":{}}`)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := do(t, h, http.MethodGet, "/activity?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, decode[[]activity.Entry](t, w).Data, 2)

	w = do(t, h, http.MethodGet, "/activity?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEventHandler_HistoryWithoutStore(t *testing.T) {
	_, h := newTestAPI(t)

	w := do(t, h, http.MethodGet, "/history?limit=10&offset=5&team=sales&event_type=lead_created", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[json.RawMessage](t, w).Success)

	w = do(t, h, http.MethodGet, "/history?offset=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// =============================================================================
// 🧪 团队
// =============================================================================

func TestTeamHandler_Lifecycle(t *testing.T) {
	orch, h := newTestAPI(t)
	addSales(t, h)

	w := do(t, h, http.MethodGet, "/teams", nil)
	require.Equal(t, http.StatusOK, w.Code)
	teams := decode[[]struct {
		Name   string   `json:"name"`
		Agents []string `json:"agents"`
	}](t, w).Data
	require.Len(t, teams, 1)
	assert.Equal(t, "sales", teams[0].Name)
	assert.Equal(t, []string{"lead_created"}, teams[0].Agents)

	w = do(t, h, http.MethodPost, "/teams", map[string]any{"name": "sales", "config": json.RawMessage(salesTeam)})
	assert.Equal(t, http.StatusConflict, w.Code)

	// 内联配置的团队没有可重载的文件
	w = do(t, h, http.MethodPost, "/teams/sales/reload", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodDelete, "/teams/sales", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, orch.Teams())

	w = do(t, h, http.MethodDelete, "/teams/sales", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, h, http.MethodPost, "/teams/sales/reload", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTeamHandler_AddValidation(t *testing.T) {
	_, h := newTestAPI(t)

	tests := []struct {
		name   string
		body   map[string]any
		status int
	}{
		{"missing name", map[string]any{"config": json.RawMessage(salesTeam)}, http.StatusBadRequest},
		{"neither source", map[string]any{"name": "a"}, http.StatusBadRequest},
		{"both sources", map[string]any{"name": "a", "path": "x.json", "config": json.RawMessage(salesTeam)}, http.StatusBadRequest},
		{"invalid config", map[string]any{"name": "a", "config": json.RawMessage(`{"config": {}}`)}, http.StatusBadRequest},
		{"unknown agent", map[string]any{"name": "a", "config": json.RawMessage(`{"config": {"participants": [{"config": {"name": "nobody"}}]}}`)}, http.StatusNotFound},
		{"missing file", map[string]any{"name": "a", "path": filepath.Join(t.TempDir(), "none.json")}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/teams", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestTeamHandler_AddFromFileAndReload(t *testing.T) {
	_, h := newTestAPI(t)
	path := filepath.Join(t.TempDir(), "sales.json")
	require.NoError(t, os.WriteFile(path, []byte(salesTeam), 0o644))

	w := do(t, h, http.MethodPost, "/teams", map[string]any{"name": "sales", "path": path})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, h, http.MethodPost, "/teams/sales/reload", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "sales", decode[struct {
		Name string `json:"name"`
	}](t, w).Data.Name)
}

func TestTeamHandler_Status(t *testing.T) {
	_, h := newTestAPI(t)

	w := do(t, h, http.MethodGet, "/teams/sales/status", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodPut, "/teams/sales/status", `{"status":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPut, "/teams/sales/status", `{"status":"running"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodGet, "/teams/sales/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "running", decode[struct {
		Status string `json:"status"`
	}](t, w).Data.Status)
}

// =============================================================================
// 🧪 目标与工作流
// =============================================================================

func TestGoalHandler(t *testing.T) {
	orch, h := newTestAPI(t)
	addSales(t, h)

	w := do(t, h, http.MethodPost, "/goals/onboard", nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)

	orch.SetPlans(solution.Plans{
		"onboard": {
			{Team: "sales", Event: types.NewEvent("lead_created", map[string]any{"x": 1})},
			{Team: "support", Event: types.NewEvent("welcome", nil)},
		},
	})

	w = do(t, h, http.MethodPost, "/goals/onboard?dry_run=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	plan := decode[solution.GoalResult](t, w).Data
	assert.Equal(t, types.StatusPlanned, plan.Status)
	assert.Len(t, plan.Steps, 2)
	assert.Empty(t, orch.History())

	w = do(t, h, http.MethodPost, "/goals/onboard", nil)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[solution.GoalResult](t, w).Data
	assert.Equal(t, types.StatusComplete, res.Status)
	require.Len(t, res.Results, 2)
	assert.Equal(t, types.StatusDone, res.Results[0].Result.Status)
	assert.Equal(t, types.StatusUnknownTeam, res.Results[1].Result.Status)

	w = do(t, h, http.MethodPost, "/goals/unknown", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, types.StatusUnknownGoal, decode[solution.GoalResult](t, w).Data.Status)

	w = do(t, h, http.MethodPost, "/goals/onboard?dry_run=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

const onboardingWorkflow = `{
  "name": "onboarding",
  "nodes": [
    {"id": "start", "type": "tool", "label": "Start"},
    {"id": "capture", "type": "agent", "label": "Capture",
     "config": {"team": "sales", "event": {"type": "lead_created", "payload": {"x": 1}}}}
  ],
  "edges": [{"source": "start", "target": "capture"}]
}`

func TestGoalHandler_Workflow(t *testing.T) {
	_, h := newTestAPI(t)
	addSales(t, h)

	w := do(t, h, http.MethodPost, "/workflows", map[string]any{"definition": json.RawMessage(onboardingWorkflow)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[struct {
		Status  types.Status `json:"status"`
		Results []struct {
			Node   string       `json:"node"`
			Result types.Result `json:"result"`
		} `json:"results"`
	}](t, w).Data
	assert.Equal(t, types.StatusComplete, res.Status)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "capture", res.Results[0].Node)
	assert.Equal(t, types.StatusDone, res.Results[0].Result.Status)

	path := filepath.Join(t.TempDir(), "onboarding.json")
	require.NoError(t, os.WriteFile(path, []byte(onboardingWorkflow), 0o644))
	w = do(t, h, http.MethodPost, "/workflows", map[string]any{"path": path, "strict": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestGoalHandler_WorkflowErrors(t *testing.T) {
	_, h := newTestAPI(t)

	tests := []struct {
		name   string
		body   map[string]any
		status int
	}{
		{"no source", map[string]any{}, http.StatusBadRequest},
		{"bad node type", map[string]any{"definition": json.RawMessage(`{"nodes":[{"id":"a","type":"robot"}],"edges":[]}`)}, http.StatusBadRequest},
		{"no entry point", map[string]any{"definition": json.RawMessage(`{"nodes":[{"id":"a","type":"tool"},{"id":"b","type":"tool"}],"edges":[{"source":"a","target":"b"},{"source":"b","target":"a"}]}`)}, http.StatusBadRequest},
		{"missing file", map[string]any{"path": filepath.Join(t.TempDir(), "none.json")}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/workflows", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}
