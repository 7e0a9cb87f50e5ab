package solution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BaSui01/teamflow/agent"
	"github.com/BaSui01/teamflow/history"
	"github.com/BaSui01/teamflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleEvent_UnknownTeam(t *testing.T) {
	hist := &fakeHistory{}
	act := &fakeActivity{}
	m := &recordingMetrics{}
	o := newOrchestrator(t, WithHistoryStore(hist), WithActivityLog(act), WithMetrics(m))

	res, err := o.HandleEvent(context.Background(), "nobody", types.NewEvent("x", nil))
	require.NoError(t, err)
	assert.Equal(t, types.StatusUnknownTeam, res.Status)

	assert.Empty(t, o.History())
	assert.Empty(t, hist.records)
	assert.Empty(t, act.entries)
	assert.Equal(t, []string{"nobody:unknown_team"}, m.snapshot().events)
}

func TestHandleEvent_RecordsEverywhere(t *testing.T) {
	hist := &fakeHistory{}
	act := &fakeActivity{}
	m := &recordingMetrics{}
	o := newOrchestrator(t, WithHistoryStore(hist), WithActivityLog(act), WithMetrics(m))
	require.NoError(t, o.AddTeam("sales", newTeam(t, map[string]agent.AgentFunc{"lead_created": echoAgent})))

	sub := o.Subscribe("sales")
	other := o.Subscribe("support")

	ev := types.NewEvent("lead_created", map[string]any{"x": 1})
	res, err := o.HandleEvent(context.Background(), "sales", ev)
	require.NoError(t, err)
	assert.Equal(t, types.StatusDone, res.Status)
	assert.Equal(t, map[string]any{"echo": map[string]any{"x": 1}}, res.Result)

	entries := o.History()
	require.Len(t, entries, 1)
	assert.Equal(t, "sales", entries[0].Team)
	assert.NotEmpty(t, entries[0].Event.ID)
	assert.Equal(t, res, entries[0].Result)

	require.Len(t, hist.records, 1)
	assert.Equal(t, "lead_created", hist.records[0].EventType)

	recent, err := o.GetRecentActivity(10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "lead_created", recent[0].AgentID)
	assert.Equal(t, res.Result, recent[0].Summary)
	assert.Equal(t, entries[0].Event.ID, recent[0].EventID)

	msg, ok, err := sub.Next(context.Background(), time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, MessageActivity, msg.Type)
	assert.Equal(t, "lead_created", msg.Event.Type)
	assert.Equal(t, types.StatusDone, msg.Result.Status)

	_, ok, err = other.Next(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)

	records, err := o.FetchHistory(context.Background(), history.Query{Team: "sales"})
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, []string{"sales:done"}, m.snapshot().events)
}

func TestHandleEvent_CollaboratorFailuresSwallowed(t *testing.T) {
	o := newOrchestrator(t,
		WithHistoryStore(&fakeHistory{err: errors.New("db down")}),
		WithActivityLog(&fakeActivity{err: errors.New("disk full")}))
	require.NoError(t, o.AddTeam("sales", newTeam(t, map[string]agent.AgentFunc{"lead_created": echoAgent})))

	res, err := o.HandleEvent(context.Background(), "sales", types.NewEvent("lead_created", nil))
	require.NoError(t, err)
	assert.Equal(t, types.StatusDone, res.Status)
	assert.Len(t, o.History(), 1)
}

func TestHandleEvent_AgentError(t *testing.T) {
	m := &recordingMetrics{}
	o := newOrchestrator(t, WithMetrics(m))
	require.NoError(t, o.AddTeam("sales", newTeam(t, map[string]agent.AgentFunc{"lead_created": failingAgent})))

	_, err := o.HandleEvent(context.Background(), "sales", types.NewEvent("lead_created", nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, errAgent)
	assert.Contains(t, err.Error(), "team sales")
	assert.Empty(t, o.History())
	assert.Equal(t, []string{"sales:error"}, m.snapshot().events)
}

func TestHandleEvent_KeepsEventID(t *testing.T) {
	act := &fakeActivity{}
	o := newOrchestrator(t, WithActivityLog(act))
	require.NoError(t, o.AddTeam("sales", newTeam(t, map[string]agent.AgentFunc{"lead_created": echoAgent})))

	ev := types.NewEvent("lead_created", nil)
	ev.ID = "ev-42"
	_, err := o.HandleEvent(context.Background(), "sales", ev)
	require.NoError(t, err)
	assert.Equal(t, "ev-42", act.entries[0].EventID)
}

func TestHandleEvent_HistoryLimit(t *testing.T) {
	o := newOrchestrator(t, WithHistoryLimit(2))
	require.NoError(t, o.AddTeam("sales", newTeam(t, map[string]agent.AgentFunc{"lead_created": echoAgent})))
	for i := 0; i < 5; i++ {
		_, err := o.HandleEvent(context.Background(), "sales", types.NewEvent("lead_created", map[string]any{"i": i}))
		require.NoError(t, err)
	}
	entries := o.History()
	require.Len(t, entries, 2)
	assert.Equal(t, 4, entries[1].Event.Payload["i"])
}

func TestGetRecentActivity_Unset(t *testing.T) {
	o := newOrchestrator(t)
	entries, err := o.GetRecentActivity(5)
	require.NoError(t, err)
	assert.Empty(t, entries)

	records, err := o.FetchHistory(context.Background(), history.Query{})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStatus(t *testing.T) {
	o := newOrchestrator(t)
	_, ok := o.GetStatus("sales")
	assert.False(t, ok)

	sub := o.Subscribe("sales")
	o.ReportStatus("sales", "running")

	state, ok := o.GetStatus("sales")
	require.True(t, ok)
	assert.Equal(t, "running", state)

	msg, ok, err := sub.Next(context.Background(), time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Message{Type: MessageStatus, Status: "running"}, msg)
}
