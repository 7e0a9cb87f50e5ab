package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/teamflow/internal/retry"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPusher_ReportUsage(t *testing.T) {
	var (
		mu     sync.Mutex
		paths  []string
		bodies []string
	)
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		bodies = append(bodies, string(body))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	p := NewPusher(gateway.URL, "teamflow_usage", nil)
	require.NoError(t, p.ReportUsage(context.Background(), "operations.DummyCliAgent", 2, 64))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, paths, 1)
	assert.Equal(t, "PUT /metrics/job/teamflow_usage", paths[0])
	assert.NotEmpty(t, bodies[0])
	assert.Equal(t, float64(64), testutil.ToFloat64(p.tokens.WithLabelValues("operations.DummyCliAgent")))
	assert.Equal(t, float64(2), testutil.ToFloat64(p.loops.WithLabelValues("operations.DummyCliAgent")))
}

func TestPusher_GatewayError(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer gateway.Close()

	p := NewPusher(gateway.URL, "teamflow_usage", nil)
	err := p.ReportUsage(context.Background(), "sales.Closer", 1, 10)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "sales.Closer"))
}

func TestPusher_RetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	r := retry.NewBackoff(retry.Policy{MaxRetries: 2, InitialDelay: 5 * time.Millisecond}, zap.NewNop())
	p := NewPusher(gateway.URL, "teamflow_usage", nil, WithRetry(r))
	require.NoError(t, p.ReportUsage(context.Background(), "sales.Closer", 1, 10))
	assert.Equal(t, int32(2), calls.Load())
}
