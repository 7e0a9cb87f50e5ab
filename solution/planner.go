package solution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BaSui01/teamflow/types"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ErrPlannerNotConfigured 未提供规划表时执行目标
var ErrPlannerNotConfigured = errors.New("planner is not configured")

// PlanStep 目标中的一步：向 team 发送 event
type PlanStep struct {
	Team  string      `json:"team" yaml:"team"`
	Event types.Event `json:"event" yaml:"event"`
}

// Plans 目标名 → 有序步骤
type Plans map[string][]PlanStep

// StepResult 单步执行结果
type StepResult struct {
	Team   string       `json:"team"`
	Result types.Result `json:"result"`
}

// GoalResult 目标执行或预演的结果
type GoalResult struct {
	Status  types.Status `json:"status"`
	Goal    string       `json:"goal,omitempty"`
	Results []StepResult `json:"results,omitempty"`
	Steps   []PlanStep   `json:"steps,omitempty"`
}

// ParsePlans 解析 JSON 或 YAML 规划表
func ParsePlans(data []byte, format string) (Plans, error) {
	var plans Plans
	var err error
	switch strings.ToLower(format) {
	case "yaml", "yml":
		err = yaml.Unmarshal(data, &plans)
	case "json", "":
		err = json.Unmarshal(data, &plans)
	default:
		return nil, types.Errorf(types.ErrInvalidConfig, "unsupported plan format %q", format)
	}
	if err != nil {
		return nil, types.Errorf(types.ErrInvalidConfig, "parse plans: %w", err)
	}
	for goal, steps := range plans {
		for i, step := range steps {
			if step.Team == "" || step.Event.Type == "" {
				return nil, types.Errorf(types.ErrInvalidConfig, "goal %q step %d requires team and event.type", goal, i+1)
			}
		}
	}
	return plans, nil
}

// LoadPlans 按扩展名读取规划表
func LoadPlans(path string) (Plans, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.Errorf(types.ErrInvalidConfig, "read plans %s: %w", path, err)
	}
	return ParsePlans(data, strings.TrimPrefix(filepath.Ext(path), "."))
}

// SetPlans 替换规划表
func (o *Orchestrator) SetPlans(p Plans) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.plans = p
}

func (o *Orchestrator) lookupPlan(goal string) ([]PlanStep, bool, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.plans == nil {
		return nil, false, ErrPlannerNotConfigured
	}
	steps, ok := o.plans[goal]
	if !ok || len(steps) == 0 {
		return nil, false, nil
	}
	return steps, true, nil
}

// ExecuteGoal 依次执行目标的每一步，步骤的结构化状态（如 unknown_team）
// 照常记录，不会中断后续步骤；分发错误则中止。
func (o *Orchestrator) ExecuteGoal(ctx context.Context, goal string) (GoalResult, error) {
	steps, ok, err := o.lookupPlan(goal)
	if err != nil {
		return GoalResult{}, err
	}
	if !ok {
		o.logger.Warn("planner received unknown goal", zap.String("goal", goal))
		o.metrics.RecordGoalRun(goal, string(types.StatusUnknownGoal))
		return GoalResult{Status: types.StatusUnknownGoal, Goal: goal}, nil
	}

	results := make([]StepResult, 0, len(steps))
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			o.metrics.RecordGoalRun(goal, "error")
			return GoalResult{}, err
		}
		o.logger.Info("planner executing step",
			zap.String("goal", goal), zap.Int("step", i+1), zap.String("team", step.Team))

		ev := step.Event
		ev.ID = ""
		res, err := o.HandleEvent(ctx, step.Team, ev)
		if err != nil {
			o.metrics.RecordGoalRun(goal, "error")
			return GoalResult{}, fmt.Errorf("goal %s step %d: %w", goal, i+1, err)
		}
		results = append(results, StepResult{Team: step.Team, Result: res})
	}

	o.metrics.RecordGoalRun(goal, string(types.StatusComplete))
	return GoalResult{Status: types.StatusComplete, Goal: goal, Results: results}, nil
}

// PlanGoal 预演：返回目标的步骤而不分发
func (o *Orchestrator) PlanGoal(goal string) (GoalResult, error) {
	steps, ok, err := o.lookupPlan(goal)
	if err != nil {
		return GoalResult{}, err
	}
	if !ok {
		return GoalResult{Status: types.StatusUnknownGoal, Goal: goal}, nil
	}
	out := append([]PlanStep(nil), steps...)
	return GoalResult{Status: types.StatusPlanned, Goal: goal, Steps: out}, nil
}
