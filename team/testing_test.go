package team

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"

	"github.com/BaSui01/teamflow/agent"
)

// countingAgent 记录调用次数，可声明预算与技能
type countingAgent struct {
	calls  atomic.Int32
	budget agent.Budget
	skills []string
	err    error
}

func (a *countingAgent) Run(_ context.Context, payload map[string]any) (any, error) {
	a.calls.Add(1)
	if a.err != nil {
		return nil, a.err
	}
	return map[string]any{"seen": payload}, nil
}

func (a *countingAgent) Budget() agent.Budget { return a.budget }
func (a *countingAgent) Skills() []string     { return a.skills }

type asyncAgent struct{}

func (asyncAgent) RunAsync(_ context.Context, payload map[string]any) <-chan agent.Result {
	ch := make(chan agent.Result, 1)
	go func() {
		ch <- agent.Result{Value: map[string]any{"async": payload["x"]}}
	}()
	return ch
}

type notAnAgent struct{}

// fixture 为每个测试构建独立的注册表
type fixture struct {
	registry *agent.Registry
	resolver *agent.Resolver
}

func newFixture(agents map[string]any) *fixture {
	reg := agent.NewRegistry(nil)
	for name, obj := range agents {
		reg.Register(name, func(map[string]any) (any, error) { return obj, nil })
	}
	return &fixture{registry: reg, resolver: agent.NewResolver(reg, agent.NewCatalog(), nil)}
}

func configFor(names ...string) *Config {
	cfg := &Config{Responsibilities: names}
	for _, n := range names {
		cfg.Config.Participants = append(cfg.Config.Participants, Participant{Config: map[string]any{"name": n}})
	}
	return cfg
}

type recordingReporter struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (r *recordingReporter) ReportUsage(_ context.Context, class string, loops, tokens int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, class)
	return r.err
}

var errReport = errors.New("pushgateway down")

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
