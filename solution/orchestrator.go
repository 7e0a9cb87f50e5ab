package solution

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BaSui01/teamflow/activity"
	"github.com/BaSui01/teamflow/agent"
	"github.com/BaSui01/teamflow/bus"
	"github.com/BaSui01/teamflow/config"
	"github.com/BaSui01/teamflow/history"
	"github.com/BaSui01/teamflow/internal/pool"
	"github.com/BaSui01/teamflow/team"
	"github.com/BaSui01/teamflow/types"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const instrumentationName = "github.com/BaSui01/teamflow/solution"

var (
	// ErrTeamExists 重复注册同名团队
	ErrTeamExists = types.NewError(types.ErrCodeConflict, "team already exists").WithHTTPStatus(http.StatusConflict)
	// ErrClosed 编排器已关闭
	ErrClosed = errors.New("solution orchestrator is closed")
)

// =============================================================================
// 🧩 协作者接口
// =============================================================================

// HistoryStore 持久化分发记录，history.Store 实现了该接口
type HistoryStore interface {
	InsertEvent(ctx context.Context, team, eventType string, payload map[string]any, result any) error
	FetchHistory(ctx context.Context, q history.Query) ([]history.Record, error)
}

// ActivityLog 活动日志，activity.Logger 实现了该接口
type ActivityLog interface {
	Log(agentID string, summary any, eventID string) error
	Tail(limit int) ([]activity.Entry, error)
}

// Metrics 编排层指标，metrics.Collector 实现了该接口
type Metrics interface {
	RecordEvent(team, status string, duration time.Duration)
	RecordSubscriberDrop(team string)
	RecordAdmission(outcome string)
	SetAdmissionState(queued, active int)
	RecordWorkflowRun(workflow, outcome string)
	RecordGoalRun(goal, status string)
}

type nopMetrics struct{}

func (nopMetrics) RecordEvent(string, string, time.Duration) {}
func (nopMetrics) RecordSubscriberDrop(string)               {}
func (nopMetrics) RecordAdmission(string)                    {}
func (nopMetrics) SetAdmissionState(int, int)                {}
func (nopMetrics) RecordWorkflowRun(string, string)          {}
func (nopMetrics) RecordGoalRun(string, string)              {}

// HistoryEntry 进程内历史中的一条
type HistoryEntry struct {
	Team   string       `json:"team"`
	Event  types.Event  `json:"event"`
	Result types.Result `json:"result"`
}

// =============================================================================
// ⚙️ 选项
// =============================================================================

// Option 配置 Orchestrator
type Option func(*Orchestrator)

// WithLogger 设置日志
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithHistoryStore 设置持久化历史
func WithHistoryStore(s HistoryStore) Option {
	return func(o *Orchestrator) { o.historyStore = s }
}

// WithActivityLog 设置活动日志
func WithActivityLog(a ActivityLog) Option {
	return func(o *Orchestrator) { o.activity = a }
}

// WithMetrics 设置指标收集器
func WithMetrics(m Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithTracer 设置 tracer，默认取全局 TracerProvider
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithPlans 设置目标规划表
func WithPlans(p Plans) Option {
	return func(o *Orchestrator) { o.plans = p }
}

// WithWorkers 设置准入 worker 数与队列容量
func WithWorkers(workers, queueSize int) Option {
	return func(o *Orchestrator) {
		o.poolCfg.MaxWorkers = workers
		o.poolCfg.QueueSize = queueSize
	}
}

// WithAdmissionRate 设置准入令牌桶，rps <= 0 表示不限
func WithAdmissionRate(rps float64, burst int) Option {
	return func(o *Orchestrator) {
		if rps <= 0 {
			o.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		o.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithSubscriberBuffer 设置每个订阅者的队列容量
func WithSubscriberBuffer(n int) Option {
	return func(o *Orchestrator) { o.subBuffer = n }
}

// WithBlockingFanout 订阅者队列满时等待空位，最长 timeout 或直到发布方 ctx 结束
func WithBlockingFanout(timeout time.Duration) Option {
	return func(o *Orchestrator) {
		o.blocking = true
		o.blockTimeout = timeout
	}
}

// WithHistoryLimit 限制进程内历史条数，<= 0 不限
func WithHistoryLimit(n int) Option {
	return func(o *Orchestrator) { o.historyLimit = n }
}

// WithTeamOptions 设置从文件构建团队时使用的选项
func WithTeamOptions(opts ...team.Option) Option {
	return func(o *Orchestrator) { o.teamOpts = append(o.teamOpts, opts...) }
}

// WithTeamBus 为每个团队单独构建事件总线，团队关闭时释放
func WithTeamBus(f func(team string) (bus.Bus, error)) Option {
	return func(o *Orchestrator) { o.teamBus = f }
}

// WithUsageStore 设置由本编排器构建的所有团队共享的用量计数。
// 默认是进程内计数，重载团队时预算计数不会归零。
func WithUsageStore(s agent.UsageStore) Option {
	return func(o *Orchestrator) { o.usage = s }
}

// FromConfig 把编排层配置转换为选项
func FromConfig(cfg config.OrchestratorConfig) []Option {
	opts := []Option{
		WithWorkers(cfg.MaxWorkers, cfg.QueueSize),
		WithSubscriberBuffer(cfg.SubscriberBuffer),
		WithAdmissionRate(cfg.AdmissionRPS, cfg.AdmissionBurst),
	}
	if cfg.BlockOnFull {
		opts = append(opts, WithBlockingFanout(time.Second))
	}
	return opts
}

// =============================================================================
// 🎯 Orchestrator
// =============================================================================

// Orchestrator 在多个团队之间路由事件，维护历史、状态与订阅者，
// 并通过有界准入队列并发处理事件
type Orchestrator struct {
	mu    sync.RWMutex
	teams map[string]*team.Orchestrator
	paths map[string]string

	histMu       sync.Mutex
	history      []HistoryEntry
	historyLimit int

	statusMu sync.RWMutex
	status   map[string]string

	subsMu       sync.Mutex
	subs         map[string][]*Subscription
	subBuffer    int
	blocking     bool
	blockTimeout time.Duration

	poolCfg   pool.GoroutinePoolConfig
	admission *pool.GoroutinePool
	limiter   *rate.Limiter

	plans Plans

	cronMu  sync.Mutex
	cron    *cron.Cron
	watchMu sync.Mutex
	watcher *config.FileWatcher

	teamOpts     []team.Option
	teamBus      func(team string) (bus.Bus, error)
	usage        agent.UsageStore
	historyStore HistoryStore
	activity     ActivityLog
	metrics      Metrics

	tracer     trace.Tracer
	dispatched metric.Int64Counter

	// 后台任务（定时目标）使用的 ctx，Close 时取消
	baseCtx    context.Context
	baseCancel context.CancelFunc
	closed     atomic.Bool
	rootLogger *zap.Logger
	logger     *zap.Logger
}

// New creates a solution orchestrator with no teams.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		teams:        make(map[string]*team.Orchestrator),
		paths:        make(map[string]string),
		status:       make(map[string]string),
		subs:         make(map[string][]*Subscription),
		subBuffer:    100,
		historyLimit: 1000,
		poolCfg:      pool.DefaultGoroutinePoolConfig(),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	o.rootLogger = o.logger
	o.logger = o.logger.With(zap.String("component", "solution_orchestrator"))
	if o.metrics == nil {
		o.metrics = nopMetrics{}
	}
	if o.usage == nil {
		o.usage = agent.NewMemoryUsageStore()
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(instrumentationName)
	}
	if o.subBuffer <= 0 {
		o.subBuffer = 1
	}
	if o.poolCfg.MaxWorkers <= 0 {
		o.poolCfg.MaxWorkers = pool.DefaultGoroutinePoolConfig().MaxWorkers
	}
	if o.poolCfg.QueueSize <= 0 {
		o.poolCfg.QueueSize = pool.DefaultGoroutinePoolConfig().QueueSize
	}

	counter, err := otel.Meter(instrumentationName).Int64Counter("teamflow.events.dispatched",
		metric.WithDescription("Events dispatched to a team"))
	if err != nil {
		o.logger.Warn("failed to create otel counter", zap.Error(err))
	}
	o.dispatched = counter

	o.poolCfg.PanicHandler = func(r any) {
		o.logger.Error("admission worker recovered from panic", zap.Any("panic", r))
	}
	o.poolCfg.OnChange = func(s pool.GoroutinePoolStats) {
		o.metrics.SetAdmissionState(s.Queued, s.Active)
	}
	o.admission = pool.NewGoroutinePool(o.poolCfg)
	o.baseCtx, o.baseCancel = context.WithCancel(context.Background())
	return o
}

// =============================================================================
// 📋 团队注册表
// =============================================================================

// AddTeam 注册团队；同名已存在时返回 ErrTeamExists
func (o *Orchestrator) AddTeam(name string, t *team.Orchestrator) error {
	if name == "" || t == nil {
		return types.Errorf(types.ErrInvalidConfig, "team name and orchestrator are required")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.teams[name]; ok {
		return types.Errorf(ErrTeamExists, "team %q", name)
	}
	o.teams[name] = t
	o.logger.Info("team added", zap.String("team", name), zap.Strings("agents", t.Agents()))
	return nil
}

// AddTeamFromFile 从配置文件构建并注册团队，记录路径以便重载
func (o *Orchestrator) AddTeamFromFile(name, path string) error {
	o.mu.RLock()
	_, exists := o.teams[name]
	o.mu.RUnlock()
	if exists {
		return types.Errorf(ErrTeamExists, "team %q", name)
	}

	t, err := team.NewFromFile(path, o.teamOptions(name)...)
	if err != nil {
		return fmt.Errorf("team %s: %w", name, err)
	}
	if err := o.AddTeam(name, t); err != nil {
		_ = t.Close()
		return err
	}

	o.mu.Lock()
	o.paths[name] = path
	o.mu.Unlock()
	return nil
}

// AddTeamFromConfig 用已解析的配置构建并注册团队，例如来自 HTTP 请求体
func (o *Orchestrator) AddTeamFromConfig(name string, cfg *team.Config) error {
	o.mu.RLock()
	_, exists := o.teams[name]
	o.mu.RUnlock()
	if exists {
		return types.Errorf(ErrTeamExists, "team %q", name)
	}

	t, err := team.New(cfg, o.teamOptions(name)...)
	if err != nil {
		return fmt.Errorf("team %s: %w", name, err)
	}
	if err := o.AddTeam(name, t); err != nil {
		_ = t.Close()
		return err
	}
	return nil
}

// RemoveTeam 注销并关闭团队
func (o *Orchestrator) RemoveTeam(name string) error {
	o.mu.Lock()
	t, ok := o.teams[name]
	delete(o.teams, name)
	delete(o.paths, name)
	o.mu.Unlock()

	if !ok {
		return types.Errorf(types.ErrTeamNotFound, "team %q", name)
	}
	o.logger.Info("team removed", zap.String("team", name))
	return t.Close()
}

// ReloadTeam 从记录的配置路径重建团队。新配置无效时保留旧团队。
func (o *Orchestrator) ReloadTeam(name string) error {
	o.mu.RLock()
	_, ok := o.teams[name]
	path := o.paths[name]
	o.mu.RUnlock()

	if !ok {
		return types.Errorf(types.ErrTeamNotFound, "team %q", name)
	}
	if path == "" {
		return types.Errorf(types.ErrInvalidConfig, "team %q was not loaded from a file", name)
	}

	fresh, err := team.NewFromFile(path, o.teamOptions(name)...)
	if err != nil {
		o.logger.Warn("team reload failed, keeping previous definition",
			zap.String("team", name), zap.Error(err))
		return fmt.Errorf("reload team %s: %w", name, err)
	}

	o.mu.Lock()
	old, still := o.teams[name]
	if !still {
		o.mu.Unlock()
		_ = fresh.Close()
		return types.Errorf(types.ErrTeamNotFound, "team %q", name)
	}
	o.teams[name] = fresh
	o.mu.Unlock()

	o.logger.Info("team reloaded", zap.String("team", name), zap.String("path", path))
	return old.Close()
}

// WatchTeams 监听文件加载的团队配置，变更后自动重载，直到 ctx 结束或 Close
func (o *Orchestrator) WatchTeams(ctx context.Context) error {
	o.mu.RLock()
	byPath := make(map[string]string, len(o.paths))
	paths := make([]string, 0, len(o.paths))
	for name, p := range o.paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			o.mu.RUnlock()
			return fmt.Errorf("resolve team path %s: %w", p, err)
		}
		byPath[abs] = name
		paths = append(paths, abs)
	}
	o.mu.RUnlock()

	if len(paths) == 0 {
		return nil
	}

	w, err := config.NewFileWatcher(paths, config.WithWatcherLogger(o.logger))
	if err != nil {
		return err
	}
	w.OnChange(func(ev config.FileEvent) {
		name, ok := byPath[ev.Path]
		if !ok || ev.Op == config.FileOpRemove || ev.Op == config.FileOpChmod {
			return
		}
		if err := o.ReloadTeam(name); err != nil {
			o.logger.Warn("team watch reload failed", zap.String("team", name), zap.Error(err))
		}
	})

	o.watchMu.Lock()
	defer o.watchMu.Unlock()
	if o.watcher != nil {
		return errors.New("team watcher already running")
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	o.watcher = w
	context.AfterFunc(ctx, func() { o.stopWatcher() })
	return nil
}

func (o *Orchestrator) stopWatcher() {
	o.watchMu.Lock()
	defer o.watchMu.Unlock()
	if o.watcher != nil {
		_ = o.watcher.Stop()
		o.watcher = nil
	}
}

// Teams 返回已注册团队名，按字典序
func (o *Orchestrator) Teams() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	names := make([]string, 0, len(o.teams))
	for name := range o.teams {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Team 返回团队编排器
func (o *Orchestrator) Team(name string) (*team.Orchestrator, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	t, ok := o.teams[name]
	return t, ok
}

// teamOptions 组装构建团队 name 时使用的选项；WithTeamOptions 中的选项最后应用
func (o *Orchestrator) teamOptions(name string) []team.Option {
	opts := make([]team.Option, 0, len(o.teamOpts)+3)
	opts = append(opts, team.WithLogger(o.rootLogger), team.WithUsageStore(o.usage))
	if o.teamBus != nil {
		opts = append(opts, team.WithBusFactory(func() (bus.Bus, error) { return o.teamBus(name) }))
	}
	return append(opts, o.teamOpts...)
}

// =============================================================================
// 🛑 关闭
// =============================================================================

// Close 停止定时目标与文件监听，准入 worker 在 ctx 期限内排空队列，
// 到期后协作式取消运行中的事件，最后关闭所有团队。
// 未开始的事件的 future 不会被强制解决。
func (o *Orchestrator) Close(ctx context.Context) error {
	if !o.closed.CompareAndSwap(false, true) {
		return nil
	}
	o.baseCancel()

	var errs []error
	o.cronMu.Lock()
	if o.cron != nil {
		select {
		case <-o.cron.Stop().Done():
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("stop schedules: %w", ctx.Err()))
		}
	}
	o.cronMu.Unlock()

	o.stopWatcher()

	if err := o.admission.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close admission pool: %w", err))
	}

	o.subsMu.Lock()
	for name, list := range o.subs {
		for _, s := range list {
			s.close()
		}
		delete(o.subs, name)
	}
	o.subsMu.Unlock()

	o.mu.Lock()
	teams := o.teams
	o.teams = make(map[string]*team.Orchestrator)
	o.mu.Unlock()
	for name, t := range teams {
		if err := t.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close team %s: %w", name, err))
		}
	}

	o.logger.Info("solution orchestrator closed")
	return errors.Join(errs...)
}
