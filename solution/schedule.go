package solution

import (
	"context"

	"github.com/BaSui01/teamflow/types"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ScheduleGoal 按 cron 表达式（5 字段或 @every 描述符）定时执行目标。
// 调度器在首次调用时启动，Close 时停止。
func (o *Orchestrator) ScheduleGoal(spec, goal string) (cron.EntryID, error) {
	if o.closed.Load() {
		return 0, ErrClosed
	}
	if _, ok, err := o.lookupPlan(goal); err != nil {
		return 0, err
	} else if !ok {
		return 0, types.Errorf(types.ErrInvalidConfig, "unknown goal %q", goal)
	}

	o.cronMu.Lock()
	defer o.cronMu.Unlock()
	if o.cron == nil {
		logger := cron.PrintfLogger(zap.NewStdLog(o.logger))
		o.cron = cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		)
		o.cron.Start()
	}

	id, err := o.cron.AddFunc(spec, func() { o.runScheduledGoal(o.baseCtx, goal) })
	if err != nil {
		return 0, types.Errorf(types.ErrInvalidConfig, "schedule %q: %w", spec, err)
	}
	o.logger.Info("goal scheduled", zap.String("goal", goal), zap.String("spec", spec))
	return id, nil
}

// Unschedule 移除定时目标
func (o *Orchestrator) Unschedule(id cron.EntryID) {
	o.cronMu.Lock()
	defer o.cronMu.Unlock()
	if o.cron != nil {
		o.cron.Remove(id)
	}
}

func (o *Orchestrator) runScheduledGoal(ctx context.Context, goal string) {
	if ctx.Err() != nil {
		return
	}
	res, err := o.ExecuteGoal(ctx, goal)
	if err != nil {
		o.logger.Error("scheduled goal failed", zap.String("goal", goal), zap.Error(err))
		return
	}
	o.logger.Info("scheduled goal finished",
		zap.String("goal", goal),
		zap.String("status", string(res.Status)),
		zap.Int("steps", len(res.Results)))
}
