package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BaSui01/teamflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoAgent struct{ prefix string }

func (e *echoAgent) Run(_ context.Context, payload map[string]any) (any, error) {
	return map[string]any{"echo": payload, "prefix": e.prefix}, nil
}

func (e *echoAgent) Skills() []string { return []string{"echo", "repeat"} }

func (e *echoAgent) Budget() Budget { return Budget{TokenBudget: 10, LoopBudget: 1} }

type suspendingAgent struct {
	delay time.Duration
	err   error
}

func (s *suspendingAgent) RunAsync(ctx context.Context, payload map[string]any) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		select {
		case <-time.After(s.delay):
			ch <- Result{Value: payload["x"], Err: s.err}
		case <-ctx.Done():
		}
	}()
	return ch
}

type notAnAgent struct{}

func TestAdapt_Immediate(t *testing.T) {
	h, err := Adapt("echo", "Echo", &echoAgent{prefix: ">"})
	require.NoError(t, err)

	assert.False(t, h.Suspending())
	assert.Equal(t, "echo", h.Name())
	assert.Equal(t, "Echo", h.Class())
	assert.True(t, h.HasSkill("repeat"))
	assert.False(t, h.HasSkill("sing"))
	assert.Equal(t, Budget{TokenBudget: 10, LoopBudget: 1}, h.Budget())

	out, err := h.Invoke(context.Background(), map[string]any{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"echo": map[string]any{"x": 1}, "prefix": ">"}, out)
}

func TestAdapt_Suspending(t *testing.T) {
	h, err := Adapt("slow", "Slow", &suspendingAgent{delay: 5 * time.Millisecond})
	require.NoError(t, err)
	assert.True(t, h.Suspending())
	assert.Nil(t, h.Skills())
	assert.Equal(t, Budget{}, h.Budget())

	out, err := h.Invoke(context.Background(), map[string]any{"x": 7})
	require.NoError(t, err)
	assert.Equal(t, 7, out)
}

func TestHandle_SuspendingErrorAndCancel(t *testing.T) {
	boom := errors.New("boom")
	h, err := Adapt("slow", "Slow", &suspendingAgent{delay: time.Millisecond, err: boom})
	require.NoError(t, err)
	_, err = h.Invoke(context.Background(), nil)
	assert.ErrorIs(t, err, boom)

	h, err = Adapt("slower", "Slower", &suspendingAgent{delay: time.Hour})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = h.Invoke(ctx, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHandle_PanicBecomesError(t *testing.T) {
	h, err := Adapt("p", "P", AgentFunc(func(context.Context, map[string]any) (any, error) {
		panic("kaboom")
	}))
	require.NoError(t, err)

	_, err = h.Invoke(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestAdapt_CapabilityMismatch(t *testing.T) {
	_, err := Adapt("bad", "Bad", notAnAgent{})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrCapabilityMismatch)
}
