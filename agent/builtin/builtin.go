// Package builtin registers the handlers that ship with teamflow. Importing
// it for side effects makes them resolvable by name:
//
//	import _ "github.com/BaSui01/teamflow/agent/builtin"
package builtin

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/teamflow/agent"
)

func init() {
	agent.Register("echo", NewEcho)
	agent.RegisterClass("operations", "DummyCliAgent", NewEcho)
	agent.RegisterClass("", "HumanApprovalAgent", NewApproval)
}

// Echo 原样返回 payload
type Echo struct {
	skills []string
}

// NewEcho builds an Echo. An optional "skills" list is exposed for
// skill-based delegation.
func NewEcho(cfg map[string]any) (any, error) {
	e := &Echo{}
	if raw, ok := cfg["skills"].([]any); ok {
		for _, s := range raw {
			if str, ok := s.(string); ok {
				e.skills = append(e.skills, str)
			}
		}
	}
	return e, nil
}

func (e *Echo) Run(_ context.Context, payload map[string]any) (any, error) {
	return map[string]any{"echo": payload}, nil
}

func (e *Echo) Skills() []string { return e.skills }

// Approval 模拟人工审批：等待配置的时长后批准，期间不占用调用方 goroutine
type Approval struct {
	wait time.Duration
}

// NewApproval builds an Approval. "wait" accepts a Go duration string.
func NewApproval(cfg map[string]any) (any, error) {
	a := &Approval{wait: time.Second}
	if raw, ok := cfg["wait"].(string); ok {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid wait %q: %w", raw, err)
		}
		a.wait = d
	}
	return a, nil
}

func (a *Approval) RunAsync(ctx context.Context, payload map[string]any) <-chan agent.Result {
	out := make(chan agent.Result, 1)
	go func() {
		defer close(out)
		timer := time.NewTimer(a.wait)
		defer timer.Stop()

		select {
		case <-timer.C:
			var approver any
			if list, ok := payload["approvers"].([]any); ok && len(list) > 0 {
				approver = list[0]
			}
			out <- agent.Result{Value: map[string]any{"status": "approved", "approved_by": approver}}
		case <-ctx.Done():
			out <- agent.Result{Err: ctx.Err()}
		}
	}()
	return out
}
