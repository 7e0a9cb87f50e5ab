package team

import (
	"context"
	"fmt"
	"sync"

	"github.com/BaSui01/teamflow/agent"
	"github.com/BaSui01/teamflow/bus"
	"github.com/BaSui01/teamflow/memory"
	"github.com/BaSui01/teamflow/types"
	"go.uber.org/zap"
)

// UsageReporter 接收每次分发后的累计用量，例如 Prometheus 收集器或 Pushgateway
type UsageReporter interface {
	ReportUsage(ctx context.Context, class string, loops, tokens int64) error
}

// Orchestrator 持有一个团队的 agent 表与事件总线，把单个事件分发给单个 agent
type Orchestrator struct {
	cfg     *Config
	agents  map[string]*agent.Handle
	order   []string
	bus     bus.Bus
	ownsBus bool

	newBus    func() (bus.Bus, error)
	resolver  *agent.Resolver
	usage     agent.UsageStore
	estimator agent.TokenEstimator
	reporter  UsageReporter
	memory    memory.Store

	mu         sync.RWMutex
	schemas    map[string]Schema
	terminated map[string]string // class -> reason

	logger *zap.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithResolver sets the agent resolver. Defaults to the package-level registry and catalog.
func WithResolver(r *agent.Resolver) Option {
	return func(o *Orchestrator) { o.resolver = r }
}

// WithBus sets the team bus. The orchestrator does not close a bus it was given.
func WithBus(b bus.Bus) Option {
	return func(o *Orchestrator) { o.bus = b }
}

// WithBusFactory builds a dedicated bus for the team. The orchestrator owns
// the result and closes it on Close. Ignored when WithBus is also given.
func WithBusFactory(f func() (bus.Bus, error)) Option {
	return func(o *Orchestrator) { o.newBus = f }
}

// WithUsageStore sets where loop and token counters live.
func WithUsageStore(s agent.UsageStore) Option {
	return func(o *Orchestrator) { o.usage = s }
}

// WithEstimator sets the token estimator.
func WithEstimator(e agent.TokenEstimator) Option {
	return func(o *Orchestrator) { o.estimator = e }
}

// WithUsageReporter sets the best-effort usage metrics sink.
func WithUsageReporter(r UsageReporter) Option {
	return func(o *Orchestrator) { o.reporter = r }
}

// WithMemory stores every handled payload under its event type.
func WithMemory(m memory.Store) Option {
	return func(o *Orchestrator) { o.memory = m }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithSchema registers a payload schema for eventType.
func WithSchema(eventType string, s Schema) Option {
	return func(o *Orchestrator) { o.schemas[eventType] = s }
}

// New validates cfg and instantiates one agent per named participant.
// Participants without a name are skipped.
func New(cfg *Config, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		return nil, types.Errorf(types.ErrInvalidConfig, "team config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:        cfg,
		agents:     make(map[string]*agent.Handle),
		schemas:    make(map[string]Schema),
		terminated: make(map[string]string),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	o.logger = o.logger.With(zap.String("component", "team_orchestrator"))
	if o.resolver == nil {
		o.resolver = agent.NewResolver(nil, nil, o.logger)
	}
	if o.usage == nil {
		o.usage = agent.NewMemoryUsageStore()
	}
	if o.estimator == nil {
		o.estimator = agent.LengthEstimator{}
	}
	if o.bus == nil && o.newBus != nil {
		b, err := o.newBus()
		if err != nil {
			return nil, types.Errorf(types.ErrInvalidConfig, "create team bus: %w", err)
		}
		o.bus = b
		o.ownsBus = true
	}
	if o.bus == nil {
		o.bus = bus.NewAsyncBus(o.logger)
		o.ownsBus = true
	}

	for _, p := range cfg.Config.Participants {
		name := p.Name()
		if name == "" {
			continue
		}
		h, err := o.resolver.Instantiate(name, p.FactoryConfig())
		if err != nil {
			if o.ownsBus {
				_ = o.bus.Close()
			}
			return nil, fmt.Errorf("participant %s: %w", name, err)
		}
		if _, dup := o.agents[name]; !dup {
			o.order = append(o.order, name)
		}
		o.agents[name] = h
	}

	o.logger.Debug("team initialised", zap.Strings("agents", o.order))
	return o, nil
}

// NewFromFile loads a team definition and builds its orchestrator.
func NewFromFile(path string, opts ...Option) (*Orchestrator, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return New(cfg, opts...)
}

// RegisterSchema sets or replaces the payload schema for eventType.
func (o *Orchestrator) RegisterSchema(eventType string, s Schema) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.schemas[eventType] = s
}

// =============================================================================
// 🚦 分发
// =============================================================================

// HandleEvent dispatches ev to the agent named by ev.Type. Unknown types,
// invalid payloads and exceeded budgets are reported through the Result;
// the returned error is reserved for agent failures.
func (o *Orchestrator) HandleEvent(ctx context.Context, ev types.Event) (types.Result, error) {
	h, ok := o.agents[ev.Type]
	if !ok {
		o.logger.Warn("unknown event type", zap.String("event_type", ev.Type))
		return types.Ignored(), nil
	}

	payload := ev.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	if o.memory != nil {
		if err := o.memory.Store(ctx, ev.Type, payload); err != nil {
			o.logger.Warn("memory store failed", zap.String("event_type", ev.Type), zap.Error(err))
		}
	}

	o.mu.RLock()
	schema := o.schemas[ev.Type]
	o.mu.RUnlock()
	if schema != nil {
		coerced, err := schema.Coerce(payload)
		if err != nil {
			o.logger.Info("payload rejected by schema", zap.String("event_type", ev.Type), zap.Error(err))
			return types.Invalid(err), nil
		}
		payload = coerced
	}

	if reason, stop := o.account(ctx, h, payload); stop {
		return types.Terminated(reason), nil
	}

	out, err := h.Invoke(ctx, payload)
	if err != nil {
		return types.Result{}, fmt.Errorf("agent %s: %w", h.Name(), err)
	}
	return types.Done(out), nil
}

// account 更新用量计数并判断预算。计数在每次分发时都会增加，
// 包括已终止的处理器；终止原因一旦出现就固定下来。
func (o *Orchestrator) account(ctx context.Context, h *agent.Handle, payload map[string]any) (string, bool) {
	class := h.Class()

	usage, err := o.usage.Add(ctx, class, o.estimator.Estimate(payload))
	if err != nil {
		o.logger.Warn("usage accounting failed", zap.String("class", class), zap.Error(err))
	} else {
		o.report(ctx, class, usage)
	}

	o.mu.RLock()
	reason, stuck := o.terminated[class]
	o.mu.RUnlock()
	if stuck {
		return reason, true
	}
	if err != nil {
		// 计数后端不可用时放行，不因基础设施故障拒绝事件
		return "", false
	}

	budget := h.Budget()
	switch {
	case budget.LoopBudget > 0 && usage.Loops > int64(budget.LoopBudget):
		reason = types.ReasonLoopBudgetExceeded
	case budget.TokenBudget > 0 && usage.Tokens > int64(budget.TokenBudget):
		reason = types.ReasonTokenBudgetExceeded
	default:
		return "", false
	}

	o.mu.Lock()
	if prev, ok := o.terminated[class]; ok {
		reason = prev
	} else {
		o.terminated[class] = reason
	}
	o.mu.Unlock()

	o.logger.Warn("agent terminated",
		zap.String("class", class),
		zap.String("reason", reason),
		zap.Int64("loops", usage.Loops),
		zap.Int64("tokens", usage.Tokens),
	)
	return reason, true
}

func (o *Orchestrator) report(ctx context.Context, class string, usage agent.Usage) {
	if o.reporter == nil {
		return
	}
	if err := o.reporter.ReportUsage(ctx, class, usage.Loops, usage.Tokens); err != nil {
		o.logger.Debug("usage report failed", zap.String("class", class), zap.Error(err))
	}
}

// DelegateBySkill dispatches payload to the first participant, in
// configuration order, declaring skill.
func (o *Orchestrator) DelegateBySkill(ctx context.Context, skill string, payload map[string]any) (types.Result, error) {
	for _, name := range o.order {
		if o.agents[name].HasSkill(skill) {
			return o.HandleEvent(ctx, types.NewEvent(name, payload))
		}
	}
	return types.Result{Status: types.StatusUnhandled}, nil
}

// =============================================================================
// 访问器
// =============================================================================

// Agents returns participant names in configuration order.
func (o *Orchestrator) Agents() []string {
	out := make([]string, len(o.order))
	copy(out, o.order)
	return out
}

// Agent returns the handle for name.
func (o *Orchestrator) Agent(name string) (*agent.Handle, bool) {
	h, ok := o.agents[name]
	return h, ok
}

// Bus returns the team bus.
func (o *Orchestrator) Bus() bus.Bus { return o.bus }

// Config returns the team definition.
func (o *Orchestrator) Config() *Config { return o.cfg }

// Usage returns the counters for an agent class.
func (o *Orchestrator) Usage(ctx context.Context, class string) (agent.Usage, error) {
	return o.usage.Get(ctx, class)
}

// Close releases the bus when the orchestrator created it.
func (o *Orchestrator) Close() error {
	if o.ownsBus {
		return o.bus.Close()
	}
	return nil
}
