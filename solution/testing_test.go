package solution

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/teamflow/activity"
	"github.com/BaSui01/teamflow/agent"
	"github.com/BaSui01/teamflow/history"
	"github.com/BaSui01/teamflow/team"
	"github.com/stretchr/testify/require"
)

// newTeam 用独立注册表构建团队，participant 名即事件类型
func newTeam(t *testing.T, agents map[string]agent.AgentFunc) *team.Orchestrator {
	t.Helper()
	reg := agent.NewRegistry(nil)
	cfg := &team.Config{}
	for name, fn := range agents {
		reg.Register(name, func(map[string]any) (any, error) { return fn, nil })
		cfg.Config.Participants = append(cfg.Config.Participants,
			team.Participant{Config: map[string]any{"name": name}})
	}
	o, err := team.New(cfg, team.WithResolver(agent.NewResolver(reg, agent.NewCatalog(), nil)))
	require.NoError(t, err)
	return o
}

func echoAgent(_ context.Context, payload map[string]any) (any, error) {
	return map[string]any{"echo": payload}, nil
}

var errAgent = errors.New("crm unavailable")

func failingAgent(context.Context, map[string]any) (any, error) {
	return nil, errAgent
}

// gate 统计并发中的调用并在 release 前阻塞
type gate struct {
	active  atomic.Int32
	maxSeen atomic.Int32
	calls   atomic.Int32
	release chan struct{}
}

func newGate() *gate { return &gate{release: make(chan struct{})} }

func (g *gate) run(ctx context.Context, payload map[string]any) (any, error) {
	n := g.active.Add(1)
	defer g.active.Add(-1)
	for {
		m := g.maxSeen.Load()
		if n <= m || g.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	g.calls.Add(1)
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return payload, nil
}

type fakeHistory struct {
	mu      sync.Mutex
	records []history.Record
	err     error
}

func (h *fakeHistory) InsertEvent(_ context.Context, team, eventType string, _ map[string]any, _ any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.records = append(h.records, history.Record{Team: team, EventType: eventType})
	return nil
}

func (h *fakeHistory) FetchHistory(_ context.Context, q history.Query) ([]history.Record, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []history.Record
	for _, r := range h.records {
		if q.Team == "" || r.Team == q.Team {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeActivity struct {
	mu      sync.Mutex
	entries []activity.Entry
	err     error
}

func (a *fakeActivity) Log(agentID string, summary any, eventID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.entries = append(a.entries, activity.Entry{Timestamp: time.Now(), AgentID: agentID, Summary: summary, EventID: eventID})
	return nil
}

func (a *fakeActivity) Tail(limit int) ([]activity.Entry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if limit < len(a.entries) {
		return append([]activity.Entry(nil), a.entries[len(a.entries)-limit:]...), nil
	}
	return append([]activity.Entry(nil), a.entries...), nil
}

type recordingMetrics struct {
	mu         sync.Mutex
	events     []string
	drops      int
	admissions []string
	workflows  []string
	goals      []string
}

func (m *recordingMetrics) RecordEvent(team, status string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, team+":"+status)
}

func (m *recordingMetrics) RecordSubscriberDrop(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drops++
}

func (m *recordingMetrics) RecordAdmission(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.admissions = append(m.admissions, outcome)
}

func (m *recordingMetrics) SetAdmissionState(int, int) {}

func (m *recordingMetrics) RecordWorkflowRun(workflow, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workflows = append(m.workflows, workflow+":"+outcome)
}

func (m *recordingMetrics) RecordGoalRun(goal, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.goals = append(m.goals, goal+":"+status)
}

type metricsSnapshot struct {
	events     []string
	drops      int
	admissions []string
	workflows  []string
	goals      []string
}

func (m *recordingMetrics) snapshot() metricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return metricsSnapshot{
		events:     append([]string(nil), m.events...),
		drops:      m.drops,
		admissions: append([]string(nil), m.admissions...),
		workflows:  append([]string(nil), m.workflows...),
		goals:      append([]string(nil), m.goals...),
	}
}

func newOrchestrator(t *testing.T, opts ...Option) *Orchestrator {
	t.Helper()
	o := New(opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = o.Close(ctx)
	})
	return o
}
