package agent

import (
	"context"
	"fmt"

	"github.com/BaSui01/teamflow/types"
)

// Agent 是立即返回的处理器契约
type Agent interface {
	Run(ctx context.Context, payload map[string]any) (any, error)
}

// AsyncAgent 是挂起式处理器契约：结果通过 channel 交付
type AsyncAgent interface {
	RunAsync(ctx context.Context, payload map[string]any) <-chan Result
}

// Result 是 AsyncAgent 交付的单个结果
type Result struct {
	Value any
	Err   error
}

// Skilled 是可选能力：声明处理器掌握的技能，用于按技能委派
type Skilled interface {
	Skills() []string
}

// Budget 声明处理器的资源上限，0 表示不限制
type Budget struct {
	TokenBudget int `json:"token_budget" yaml:"token_budget"`
	LoopBudget  int `json:"loop_budget" yaml:"loop_budget"`
}

// Budgeted 是可选能力：声明预算
type Budgeted interface {
	Budget() Budget
}

// AgentFunc adapts a function to the Agent interface.
type AgentFunc func(ctx context.Context, payload map[string]any) (any, error)

func (f AgentFunc) Run(ctx context.Context, payload map[string]any) (any, error) {
	return f(ctx, payload)
}

// Handle 统一包装 Agent 与 AsyncAgent，调用方无需区分两种形态
type Handle struct {
	name     string
	class    string
	instance any
	sync     Agent
	async    AsyncAgent
}

// Adapt wraps obj in a Handle. Objects implementing neither Agent nor
// AsyncAgent are rejected with ErrCapabilityMismatch. Agent wins when both
// are implemented.
func Adapt(name, class string, obj any) (*Handle, error) {
	h := &Handle{name: name, class: class, instance: obj}
	switch v := obj.(type) {
	case Agent:
		h.sync = v
	case AsyncAgent:
		h.async = v
	default:
		return nil, types.Errorf(types.ErrCapabilityMismatch, "%s (%T) has neither Run nor RunAsync", class, obj)
	}
	return h, nil
}

// Name is the participant name the handle was created for.
func (h *Handle) Name() string { return h.name }

// Class is the resolved class path; usage counters are keyed by it.
func (h *Handle) Class() string { return h.class }

// Instance returns the wrapped object.
func (h *Handle) Instance() any { return h.instance }

// Suspending reports whether the wrapped object is an AsyncAgent.
func (h *Handle) Suspending() bool { return h.async != nil }

// Skills returns declared skills, or nil.
func (h *Handle) Skills() []string {
	if s, ok := h.instance.(Skilled); ok {
		return s.Skills()
	}
	return nil
}

// HasSkill reports whether skill is declared.
func (h *Handle) HasSkill(skill string) bool {
	for _, s := range h.Skills() {
		if s == skill {
			return true
		}
	}
	return false
}

// Budget returns declared limits, zero when none.
func (h *Handle) Budget() Budget {
	if b, ok := h.instance.(Budgeted); ok {
		return b.Budget()
	}
	return Budget{}
}

// Invoke runs the agent to completion. For a suspending agent it waits on
// the result channel or ctx. Panics are converted to errors.
func (h *Handle) Invoke(ctx context.Context, payload map[string]any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("agent %s panicked: %v", h.name, r)
		}
	}()

	if h.sync != nil {
		return h.sync.Run(ctx, payload)
	}

	ch := h.async.RunAsync(ctx, payload)
	if ch == nil {
		return nil, fmt.Errorf("agent %s returned a nil result channel", h.name)
	}
	select {
	case res, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("agent %s closed its result channel without a result", h.name)
		}
		return res.Value, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
