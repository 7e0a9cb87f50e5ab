package activity

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_LogAndTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "activity.jsonl")
	l, err := NewLogger(path)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Log("lead_created", map[string]any{"echo": map[string]any{"x": 1}}, "ev-1"))
	require.NoError(t, l.Log("ticket", "handled", ""))
	require.NoError(t, l.Log("ping", 42, "ev-3"))

	entries, err := l.Tail(2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "ticket", entries[0].AgentID)
	assert.Equal(t, "handled", entries[0].Summary)
	assert.Empty(t, entries[0].EventID)
	assert.Equal(t, "ping", entries[1].AgentID)
	assert.EqualValues(t, 42, entries[1].Summary)
	assert.Equal(t, "ev-3", entries[1].EventID)
	assert.False(t, entries[1].Timestamp.IsZero())

	all, err := l.Tail(10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, map[string]any{"echo": map[string]any{"x": float64(1)}}, all[0].Summary)

	none, err := l.Tail(0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLogger_FileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.jsonl")
	l, err := NewLogger(path)
	require.NoError(t, err)
	require.NoError(t, l.Log("a", "s", "id"))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"agent_id":"a"`)
	assert.Contains(t, lines[0], `"summary":"s"`)
	assert.Contains(t, lines[0], `"event_id":"id"`)
	assert.NotContains(t, lines[0], `"level"`)

	assert.Error(t, l.Log("a", "s", ""))
	assert.NoError(t, l.Close())
}

func TestLogger_SkipsCorruptLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"agent_id\":\"old\",\"summary\":1}\n{broken\n"), 0o644))

	l, err := NewLogger(path)
	require.NoError(t, err)
	defer l.Close()
	require.NoError(t, l.Log("new", "ok", ""))

	entries, err := l.Tail(5)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "old", entries[0].AgentID)
	assert.Equal(t, "new", entries[1].AgentID)
}

func TestLogger_Concurrent(t *testing.T) {
	l, err := NewLogger(filepath.Join(t.TempDir(), "activity.jsonl"))
	require.NoError(t, err)
	defer l.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Log("agent", strings.Repeat("x", 100), ""))
		}()
	}
	wg.Wait()

	entries, err := l.Tail(100)
	require.NoError(t, err)
	assert.Len(t, entries, 20)
}

func TestNewLogger_EmptyPath(t *testing.T) {
	_, err := NewLogger("")
	assert.Error(t, err)
}
