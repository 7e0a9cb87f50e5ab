package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 分发指标
	eventsTotal      *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	subscriberDrops  *prometheus.CounterVec

	// 准入队列指标
	admissionsTotal *prometheus.CounterVec
	queueDepth      prometheus.Gauge
	activeWorkers   prometheus.Gauge

	// 工作流与目标
	workflowRuns *prometheus.CounterVec
	goalRuns     *prometheus.CounterVec

	// Agent 用量
	agentLoops  *prometheus.GaugeVec
	agentTokens *prometheus.GaugeVec

	// 数据库指标
	dbQueryDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器，指标注册到默认 Registry
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events dispatched per team and outcome status",
		},
		[]string{"team", "status"},
	)

	c.dispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent dispatching one event to a team",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"team"},
	)

	c.subscriberDrops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriber_drops_total",
			Help:      "Messages dropped because a subscriber queue was full",
		},
		[]string{"team"},
	)

	c.admissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admissions_total",
			Help:      "Events submitted to the admission queue by outcome",
		},
		[]string{"outcome"},
	)

	c.queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "admission_queue_depth",
		Help:      "Events waiting in the admission queue",
	})

	c.activeWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "admission_active_workers",
		Help:      "Workers currently processing an admitted event",
	})

	c.workflowRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_runs_total",
			Help:      "Workflow graph executions by outcome",
		},
		[]string{"workflow", "outcome"},
	)

	c.goalRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "goal_runs_total",
			Help:      "Planner goal executions by status",
		},
		[]string{"goal", "status"},
	)

	c.agentLoops = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agent_loop_count",
			Help:      "Cumulative dispatches per agent class",
		},
		[]string{"agent"},
	)

	c.agentTokens = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agent_tokens_used",
			Help:      "Cumulative estimated tokens per agent class",
		},
		[]string{"agent"},
	)

	c.dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "History store query duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"operation"},
	)

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// 🚦 分发指标记录
// =============================================================================

// RecordEvent 记录一次团队分发
func (c *Collector) RecordEvent(team, status string, duration time.Duration) {
	c.eventsTotal.WithLabelValues(team, status).Inc()
	c.dispatchDuration.WithLabelValues(team).Observe(duration.Seconds())
}

// RecordSubscriberDrop 记录订阅者队列满导致的丢弃
func (c *Collector) RecordSubscriberDrop(team string) {
	c.subscriberDrops.WithLabelValues(team).Inc()
}

// RecordAdmission 记录准入结果: accepted, rejected, rate_limited
func (c *Collector) RecordAdmission(outcome string) {
	c.admissionsTotal.WithLabelValues(outcome).Inc()
}

// SetAdmissionState 记录准入队列深度与活跃 worker 数
func (c *Collector) SetAdmissionState(queued, active int) {
	c.queueDepth.Set(float64(queued))
	c.activeWorkers.Set(float64(active))
}

// RecordWorkflowRun 记录工作流执行
func (c *Collector) RecordWorkflowRun(workflow, outcome string) {
	c.workflowRuns.WithLabelValues(workflow, outcome).Inc()
}

// RecordGoalRun 记录目标执行
func (c *Collector) RecordGoalRun(goal, status string) {
	c.goalRuns.WithLabelValues(goal, status).Inc()
}

// ReportUsage 把累计用量写入本进程的 gauge，满足团队编排器的用量上报接口
func (c *Collector) ReportUsage(_ context.Context, class string, loops, tokens int64) error {
	c.agentLoops.WithLabelValues(class).Set(float64(loops))
	c.agentTokens.WithLabelValues(class).Set(float64(tokens))
	return nil
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBQuery 记录历史库查询
func (c *Collector) RecordDBQuery(operation string, duration time.Duration) {
	c.dbQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
