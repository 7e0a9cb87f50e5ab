package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	_ "github.com/BaSui01/teamflow/agent/builtin"

	"github.com/BaSui01/teamflow/activity"
	"github.com/BaSui01/teamflow/agent"
	"github.com/BaSui01/teamflow/api/handlers"
	"github.com/BaSui01/teamflow/bus"
	"github.com/BaSui01/teamflow/config"
	"github.com/BaSui01/teamflow/history"
	"github.com/BaSui01/teamflow/internal/cache"
	"github.com/BaSui01/teamflow/internal/database"
	"github.com/BaSui01/teamflow/internal/metrics"
	"github.com/BaSui01/teamflow/internal/retry"
	"github.com/BaSui01/teamflow/internal/server"
	"github.com/BaSui01/teamflow/internal/telemetry"
	"github.com/BaSui01/teamflow/internal/tlsutil"
	"github.com/BaSui01/teamflow/memory"
	"github.com/BaSui01/teamflow/solution"
	"github.com/BaSui01/teamflow/team"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// memoryCapacity 每个事件键保留的记忆条数
const memoryCapacity = 100

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 TeamFlow 的主服务器：组装编排器及其协作者，并暴露 HTTP 与 Metrics 端口
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 协作者
	collector *metrics.Collector
	telemetry *telemetry.Providers
	cache     *cache.Manager
	redis     redis.UniversalClient
	db        *database.PoolManager
	mongo     *history.MongoStore
	activity  *activity.Logger
	orch      *solution.Orchestrator
	handlers  *handlers.Set

	// 限流清理与团队监听的生命周期
	bgCtx    context.Context
	bgCancel context.CancelFunc

	shutdownOnce sync.Once
}

// NewServer 创建服务器；collector 由调用方创建，以便指标只注册一次
func NewServer(cfg *config.Config, logger *zap.Logger, collector *metrics.Collector) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:       cfg,
		logger:    logger,
		collector: collector,
		bgCtx:     ctx,
		bgCancel:  cancel,
	}
}

// =============================================================================
// 🔧 组件初始化
// =============================================================================

// Init 按依赖顺序构建全部组件。失败时已创建的组件由 Shutdown 释放。
func (s *Server) Init(ctx context.Context) error {
	providers, err := telemetry.Init(ctx, s.cfg.Telemetry, s.logger)
	if err != nil {
		// 遥测不可用不影响服务
		s.logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	s.telemetry = providers

	if s.cfg.UsesRedis() {
		s.cache, err = cache.NewManager(cache.ConfigFrom(s.cfg.Redis), s.logger)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
	}

	if s.cache != nil {
		s.redis = s.cache.Client()
	}
	// 提前校验总线配置，避免首个团队构建时才报错
	check, err := s.teamBus("")
	if err != nil {
		return fmt.Errorf("create event bus: %w", err)
	}
	_ = check.Close()

	teamOpts, usage, err := s.teamOptions()
	if err != nil {
		return err
	}

	opts := solution.FromConfig(s.cfg.Orchestrator)
	opts = append(opts,
		solution.WithLogger(s.logger),
		solution.WithMetrics(s.collector),
		solution.WithTracer(s.telemetry.Tracer()),
		solution.WithTeamOptions(teamOpts...),
		solution.WithUsageStore(usage),
		solution.WithTeamBus(s.teamBus),
	)

	switch {
	case s.cfg.Database.Enabled && s.cfg.Database.Driver == "mongodb":
		s.mongo, err = history.NewMongoStore(s.cfg.Database.DSN(), s.cfg.Database.Name, s.logger,
			history.WithMongoObserver(s.collector))
		if err != nil {
			return fmt.Errorf("open history database: %w", err)
		}
		if err := s.mongo.EnsureIndexes(ctx); err != nil {
			return err
		}
		opts = append(opts, solution.WithHistoryStore(s.mongo))
	case s.cfg.Database.Enabled:
		s.db, err = database.Open(s.cfg.Database, s.logger)
		if err != nil {
			return fmt.Errorf("open history database: %w", err)
		}
		store := history.NewStore(s.db, s.logger, history.WithObserver(s.collector))
		if err := store.AutoMigrate(ctx); err != nil {
			return fmt.Errorf("migrate history schema: %w", err)
		}
		opts = append(opts, solution.WithHistoryStore(store))
	}

	if path := s.cfg.Orchestrator.ActivityLogPath; path != "" {
		s.activity, err = activity.NewLogger(path)
		if err != nil {
			return err
		}
		opts = append(opts, solution.WithActivityLog(s.activity))
	}

	s.orch = solution.New(opts...)
	if err := s.loadTeams(); err != nil {
		return err
	}
	if err := s.loadPlans(); err != nil {
		return err
	}

	if s.cfg.Orchestrator.WatchTeams {
		if err := s.orch.WatchTeams(s.bgCtx); err != nil {
			return fmt.Errorf("watch teams: %w", err)
		}
	}

	s.handlers = handlers.NewSet(s.orch, Version, s.logger,
		handlers.WithOriginPatterns(originPatterns(s.cfg.Server.CORSAllowedOrigins)...))
	if s.db != nil {
		s.handlers.Health.RegisterCheck(handlers.NewCheck("database", s.db.Ping))
	}
	if s.mongo != nil {
		s.handlers.Health.RegisterCheck(handlers.NewCheck("database", s.mongo.Ping))
	}
	if s.cache != nil {
		s.handlers.Health.RegisterCheck(handlers.NewCheck("redis", s.cache.Ping))
	}

	s.logger.Info("orchestrator initialized",
		zap.Strings("teams", s.orch.Teams()),
		zap.String("bus", s.cfg.Bus.Backend),
		zap.Bool("history", s.db != nil || s.mongo != nil),
		zap.Bool("activity_log", s.activity != nil),
		zap.Bool("telemetry", s.telemetry.Enabled()),
	)
	return nil
}

// teamBus 为团队构建独立的事件总线；Redis 后端按团队名隔离频道前缀
func (s *Server) teamBus(name string) (bus.Bus, error) {
	cfg := s.cfg.Bus
	if cfg.Backend == "redis" && name != "" {
		prefix := cfg.ChannelPrefix
		if prefix == "" {
			prefix = "teamflow:"
		}
		cfg.ChannelPrefix = prefix + name + ":"
	}
	return bus.New(cfg, s.redis, s.logger)
}

// teamOptions 构建所有团队共享的用量、估算器、记忆与用量上报
func (s *Server) teamOptions() ([]team.Option, agent.UsageStore, error) {
	oc := s.cfg.Orchestrator

	var usage agent.UsageStore
	switch oc.UsageBackend {
	case "", "memory":
		usage = agent.NewMemoryUsageStore()
	case "redis":
		usage = agent.NewRedisUsageStore(s.redis, s.cfg.Bus.ChannelPrefix)
	default:
		return nil, nil, fmt.Errorf("unknown usage backend %q", oc.UsageBackend)
	}

	estimator, err := agent.NewEstimator(oc.Tokenizer, oc.TokenizerModel)
	if err != nil {
		return nil, nil, err
	}

	reporters := usageReporters{s.collector}
	if url := s.cfg.Metrics.PushgatewayURL; url != "" {
		reporters = append(reporters, metrics.NewPusher(url, s.cfg.Metrics.PushJob, s.logger,
			metrics.WithRetry(retry.NewBackoff(retry.DefaultPolicy(), s.logger))))
	}

	opts := []team.Option{
		team.WithEstimator(estimator),
		team.WithUsageReporter(reporters),
		team.WithLogger(s.logger),
	}

	switch oc.MemoryBackend {
	case "", "none":
	case "memory":
		opts = append(opts, team.WithMemory(memory.NewInMemoryStore(memoryCapacity)))
	case "redis":
		opts = append(opts, team.WithMemory(memory.NewRedisStore(s.cache, s.cfg.Bus.ChannelPrefix, memoryCapacity)))
	default:
		return nil, nil, fmt.Errorf("unknown memory backend %q", oc.MemoryBackend)
	}
	return opts, usage, nil
}

// loadTeams 按名称顺序注册配置中的团队
func (s *Server) loadTeams() error {
	names := make([]string, 0, len(s.cfg.Teams))
	for name := range s.cfg.Teams {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := s.orch.AddTeamFromFile(name, s.cfg.Teams[name]); err != nil {
			return err
		}
	}
	return nil
}

// loadPlans 加载目标规划表并注册定时目标
func (s *Server) loadPlans() error {
	if s.cfg.PlansPath != "" {
		plans, err := solution.LoadPlans(s.cfg.PlansPath)
		if err != nil {
			return err
		}
		s.orch.SetPlans(plans)
		s.logger.Info("plans loaded", zap.String("path", s.cfg.PlansPath), zap.Int("goals", len(plans)))
	}

	for _, sc := range s.cfg.Schedules {
		if _, err := s.orch.ScheduleGoal(sc.Spec, sc.Goal); err != nil {
			return fmt.Errorf("schedule %q: %w", sc.Goal, err)
		}
	}
	return nil
}

// usageReporters 把用量同时上报给 Prometheus 收集器与 Pushgateway
type usageReporters []team.UsageReporter

func (r usageReporters) ReportUsage(ctx context.Context, class string, loops, tokens int64) error {
	var errs []error
	for _, rep := range r {
		if err := rep.ReportUsage(ctx, class, loops, tokens); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// originPatterns 把完整来源转换为 WebSocket 握手使用的 host 模式
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if rest, ok := strings.CutPrefix(o, "https://"); ok {
			o = rest
		} else if rest, ok := strings.CutPrefix(o, "http://"); ok {
			o = rest
		}
		out = append(out, o)
	}
	return out
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// skipAuthPaths 无需认证的端点
var skipAuthPaths = []string{"/health", "/healthz", "/version"}

// Handler 构建带中间件链的 API 处理器
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.handlers.Register(mux)
	mux.HandleFunc("GET /version", s.handlers.Health.HandleVersion(BuildTime, GitCommit))

	sc := s.cfg.Server
	chain := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
		OTelTracing(s.telemetry.Tracer()),
		CORS(sc.CORSAllowedOrigins),
	}
	if sc.JWTSecret != "" {
		chain = append(chain, JWTAuth(sc.JWTSecret, sc.JWTIssuer, skipAuthPaths, len(sc.APIKeys) > 0, s.logger))
	}
	if len(sc.APIKeys) > 0 {
		chain = append(chain, APIKeyAuth(sc.APIKeys, skipAuthPaths, s.logger))
	}
	if sc.RateLimitRPS > 0 {
		chain = append(chain, RateLimiter(s.bgCtx, sc.RateLimitRPS, sc.RateLimitBurst, s.logger))
	}
	return Chain(mux, chain...)
}

// Start 启动 API 与 Metrics 服务器（非阻塞）
func (s *Server) Start() error {
	sc := s.cfg.Server
	apiConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", sc.HTTPPort),
		ReadTimeout:     sc.ReadTimeout,
		WriteTimeout:    sc.WriteTimeout,
		IdleTimeout:     2 * sc.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		MaxConns:        sc.MaxConns,
		ShutdownTimeout: sc.ShutdownTimeout,
	}
	if sc.TLSEnabled() {
		tlsConfig, err := tlsutil.ServerTLSConfig(sc.TLSCertFile, sc.TLSKeyFile)
		if err != nil {
			return err
		}
		apiConfig.TLS = tlsConfig
	}

	s.httpManager = server.NewManager("api", s.Handler(), apiConfig, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	s.metricsManager = server.NewManager("metrics", mux, server.Config{
		Addr:            fmt.Sprintf(":%d", sc.MetricsPort),
		ReadTimeout:     sc.ReadTimeout,
		WriteTimeout:    sc.WriteTimeout,
		ShutdownTimeout: sc.ShutdownTimeout,
	}, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", sc.HTTPPort),
		zap.Int("metrics_port", sc.MetricsPort),
		zap.Bool("tls", sc.TLSEnabled()),
	)
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待信号或 ctx 结束后优雅关闭
func (s *Server) WaitForShutdown(ctx context.Context) {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown(ctx)
	}
	s.Shutdown(context.WithoutCancel(ctx))
}

// Shutdown 依次关闭：入口 → 编排器（在途事件与团队）→ 存储与连接 → 遥测
func (s *Server) Shutdown(ctx context.Context) {
	s.shutdownOnce.Do(func() {
		s.logger.Info("Starting graceful shutdown...")
		s.bgCancel()

		// 1. 停止接收请求
		if s.httpManager != nil {
			if err := s.httpManager.Shutdown(ctx); err != nil {
				s.logger.Error("HTTP server shutdown error", zap.Error(err))
			}
		}

		// 2. 关闭编排器：定时目标、准入 worker、订阅者与团队
		if s.orch != nil {
			closeCtx, cancel := ctx, context.CancelFunc(func() {})
			if d := s.cfg.Server.ShutdownTimeout; d > 0 {
				closeCtx, cancel = context.WithTimeout(ctx, d)
			}
			if err := s.orch.Close(closeCtx); err != nil {
				s.logger.Error("orchestrator shutdown error", zap.Error(err))
			}
			cancel()
		}

		// 3. 存储（团队总线随团队关闭）
		if s.activity != nil {
			if err := s.activity.Close(); err != nil {
				s.logger.Error("activity log close error", zap.Error(err))
			}
		}
		if s.db != nil {
			if err := s.db.Close(); err != nil {
				s.logger.Error("database close error", zap.Error(err))
			}
		}
		if s.mongo != nil {
			if err := s.mongo.Close(ctx); err != nil {
				s.logger.Error("mongodb close error", zap.Error(err))
			}
		}
		if s.cache != nil {
			if err := s.cache.Close(); err != nil {
				s.logger.Error("redis close error", zap.Error(err))
			}
		}

		// 4. Metrics 最后关闭，保证关闭期间仍可抓取
		if s.metricsManager != nil {
			if err := s.metricsManager.Shutdown(ctx); err != nil {
				s.logger.Error("Metrics server shutdown error", zap.Error(err))
			}
		}
		if err := s.telemetry.Shutdown(ctx); err != nil {
			s.logger.Error("telemetry shutdown error", zap.Error(err))
		}

		s.logger.Info("Graceful shutdown completed")
	})
}
