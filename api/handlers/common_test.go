package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/BaSui01/teamflow/internal/ctxkeys"
	"github.com/BaSui01/teamflow/solution"
	"github.com/BaSui01/teamflow/types"
	"github.com/BaSui01/teamflow/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// =============================================================================
// 🧪 Common 函数测试
// =============================================================================

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusAccepted, []int{1, 2, 3})

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.JSONEq(t, `[1,2,3]`, w.Body.String())
}

func TestWriteSuccess(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(ctxkeys.WithRequestID(r.Context(), "req-1"))
	w := httptest.NewRecorder()

	WriteSuccess(w, r, map[string]string{"key": "value"})

	assert.Equal(t, http.StatusOK, w.Code)
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Error)
	assert.Equal(t, "req-1", resp.RequestID)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestWriteError(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	err := types.NewError(types.ErrCodeNotFound, "team not found").WithCause(errors.New("sales"))
	WriteError(w, r, err, zaptest.NewLogger(t))

	assert.Equal(t, http.StatusNotFound, w.Code)
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	assert.Equal(t, "team not found", resp.Error.Message)
	assert.Equal(t, "sales", resp.Error.Details)
}

func TestWriteErrorFrom_Classification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		code      types.ErrorCode
		retryable bool
	}{
		{"team not found", types.Errorf(types.ErrTeamNotFound, "team %q", "x"), http.StatusNotFound, types.ErrCodeNotFound, false},
		{"wrapped invalid config", fmt.Errorf("team a: %w", types.Errorf(types.ErrInvalidConfig, "bad")), http.StatusBadRequest, types.ErrCodeInvalidConfig, false},
		{"conflict", types.Errorf(solution.ErrTeamExists, "team %q", "a"), http.StatusConflict, types.ErrCodeConflict, false},
		{"capability", types.Errorf(types.ErrCapabilityMismatch, "x"), http.StatusUnprocessableEntity, types.ErrCodeCapabilityMismatch, false},
		{"rate limited", fmt.Errorf("submit: %w", solution.ErrRateLimited), http.StatusTooManyRequests, types.ErrCodeUnavailable, true},
		{"closed", solution.ErrClosed, http.StatusServiceUnavailable, types.ErrCodeUnavailable, true},
		{"no planner", solution.ErrPlannerNotConfigured, http.StatusNotImplemented, types.ErrCodeInvalidConfig, false},
		{"bad workflow", fmt.Errorf("%w: node a", workflow.ErrInvalidDefinition), http.StatusBadRequest, types.ErrCodeInvalidRequest, false},
		{"no entry", workflow.ErrNoEntryPoint, http.StatusBadRequest, types.ErrCodeInvalidRequest, false},
		{"missing file", fmt.Errorf("read: %w", os.ErrNotExist), http.StatusNotFound, types.ErrCodeNotFound, false},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, types.ErrCodeUnavailable, true},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, types.ErrCodeInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteErrorFrom(w, httptest.NewRequest(http.MethodGet, "/", nil), tt.err, zaptest.NewLogger(t))

			assert.Equal(t, tt.status, w.Code)
			var resp Response
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, string(tt.code), resp.Error.Code)
			assert.Equal(t, tt.retryable, resp.Error.Retryable)
		})
	}
}

func TestClassify_DoesNotMutateSentinel(t *testing.T) {
	_ = classify(fmt.Errorf("x: %w", types.ErrTeamNotFound))
	assert.Nil(t, types.ErrTeamNotFound.Cause)
}

func TestMapErrorCodeToHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, mapErrorCodeToHTTPStatus(types.ErrCodeInvalidRequest))
	assert.Equal(t, http.StatusConflict, mapErrorCodeToHTTPStatus(types.ErrCodeConflict))
	assert.Equal(t, http.StatusServiceUnavailable, mapErrorCodeToHTTPStatus(types.ErrCodeUnavailable))
	assert.Equal(t, http.StatusInternalServerError, mapErrorCodeToHTTPStatus("SOMETHING_ELSE"))
}

func TestDecodeJSONBody(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"name":"sales"}`, false},
		{"empty", ``, true},
		{"malformed", `{"name":`, true},
		{"unknown field", `{"name":"a","extra":1}`, true},
		{"too large", `{"name":"` + strings.Repeat("x", maxBodyBytes) + `"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			if tt.body == "" {
				r.Body = http.NoBody
			}
			w := httptest.NewRecorder()

			var dst payload
			err := DecodeJSONBody(w, r, &dst, zaptest.NewLogger(t))
			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, http.StatusBadRequest, w.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "sales", dst.Name)
		})
	}
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)

	rw.WriteHeader(http.StatusTeapot)
	rw.WriteHeader(http.StatusOK)
	n, err := rw.Write([]byte("hello"))
	require.NoError(t, err)

	assert.Equal(t, 5, n)
	assert.Equal(t, http.StatusTeapot, rw.StatusCode)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, int64(5), rw.BytesWritten)
	assert.Same(t, http.ResponseWriter(rec), rw.Unwrap())
}

func TestResponseWriter_ImplicitOK(t *testing.T) {
	rw := NewResponseWriter(httptest.NewRecorder())
	_, _ = rw.Write([]byte("x"))
	assert.True(t, rw.Written)
	assert.Equal(t, http.StatusOK, rw.StatusCode)
}
