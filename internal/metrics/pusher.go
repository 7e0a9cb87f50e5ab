package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/teamflow/internal/retry"
	"github.com/BaSui01/teamflow/internal/tlsutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
)

// Pusher 把 agent 用量推送到 Prometheus Pushgateway。
// 每个 Pusher 使用独立 Registry，避免与 /metrics 暴露的默认 Registry 冲突。
type Pusher struct {
	url      string
	job      string
	registry *prometheus.Registry
	client   push.HTTPDoer
	retryer  retry.Retryer
	loops    *prometheus.GaugeVec
	tokens   *prometheus.GaugeVec

	mu     sync.Mutex
	logger *zap.Logger
}

// PusherOption 配置 Pusher
type PusherOption func(*Pusher)

// WithRetry 推送失败时按 r 重试
func WithRetry(r retry.Retryer) PusherOption {
	return func(p *Pusher) { p.retryer = r }
}

// NewPusher creates a Pushgateway reporter for job at url.
func NewPusher(url, job string, logger *zap.Logger, opts ...PusherOption) *Pusher {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pusher{
		url:      url,
		job:      job,
		registry: prometheus.NewRegistry(),
		client:   tlsutil.SecureHTTPClient(10 * time.Second),
		loops: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "agent_loop_count",
			Help: "Cumulative dispatches per agent class",
		}, []string{"agent"}),
		tokens: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "agent_tokens_used",
			Help: "Cumulative estimated tokens per agent class",
		}, []string{"agent"}),
		logger: logger.With(zap.String("component", "metrics_pusher")),
	}
	p.registry.MustRegister(p.loops, p.tokens)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ReportUsage updates the gauges for class and pushes the registry. The
// caller treats a returned error as non-fatal.
func (p *Pusher) ReportUsage(ctx context.Context, class string, loops, tokens int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.loops.WithLabelValues(class).Set(float64(loops))
	p.tokens.WithLabelValues(class).Set(float64(tokens))

	pusher := push.New(p.url, p.job).Client(p.client).Gatherer(p.registry)
	var err error
	if p.retryer != nil {
		err = p.retryer.Do(ctx, pusher.PushContext)
	} else {
		err = pusher.PushContext(ctx)
	}
	if err != nil {
		p.logger.Debug("pushgateway push failed", zap.String("agent", class), zap.Error(err))
		return fmt.Errorf("push usage for %s: %w", class, err)
	}
	return nil
}
