package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrCodeUnavailable, "redis down").
		WithCause(root).
		WithHTTPStatus(http.StatusServiceUnavailable).
		WithRetryable(true)

	assert.Equal(t, ErrCodeUnavailable, GetErrorCode(err))
	assert.True(t, IsRetryable(err))
	assert.True(t, errors.Is(err, root))
	assert.Equal(t, "[UNAVAILABLE] redis down: root", err.Error())
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatusOf(err))
}

func TestError_SentinelMatching(t *testing.T) {
	t.Parallel()

	err := Errorf(ErrAgentNotFound, "no agent %q", "ghost")
	wrapped := fmt.Errorf("resolve: %w", err)

	assert.ErrorIs(t, wrapped, ErrAgentNotFound)
	assert.NotErrorIs(t, wrapped, ErrCapabilityMismatch)
	assert.NotErrorIs(t, wrapped, ErrTeamNotFound, "same code but different sentinel message")
	assert.True(t, IsErrorCode(wrapped, ErrCodeNotFound))
	assert.Equal(t, http.StatusNotFound, HTTPStatusOf(wrapped))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusOf(errors.New("plain")))
}

func TestResult_Summary(t *testing.T) {
	t.Parallel()

	assert.Equal(t, map[string]any{"x": 1}, Done(map[string]any{"x": 1}).Summary())
	assert.Equal(t, Ignored(), Ignored().Summary())
	assert.Equal(t, "boom", Invalid(errors.New("boom")).Error)
	assert.Equal(t, ReasonLoopBudgetExceeded, Terminated(ReasonLoopBudgetExceeded).Reason)
	assert.Equal(t, map[string]any{}, NewEvent("x", nil).Payload)
}
