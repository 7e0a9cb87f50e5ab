package solution

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/teamflow/activity"
	"github.com/BaSui01/teamflow/history"
	"github.com/BaSui01/teamflow/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// =============================================================================
// 🚦 事件分发
// =============================================================================

// HandleEvent 把事件转发给团队并记录结果：进程内历史、持久化历史、
// 活动日志，最后向该团队的订阅者广播 activity 消息。
// 未知团队返回 unknown_team 状态，不产生任何记录。
func (o *Orchestrator) HandleEvent(ctx context.Context, teamName string, ev types.Event) (types.Result, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Payload == nil {
		ev.Payload = map[string]any{}
	}

	ctx, span := o.tracer.Start(ctx, "solution.handle_event",
		trace.WithAttributes(
			attribute.String("team", teamName),
			attribute.String("event.type", ev.Type),
			attribute.String("event.id", ev.ID),
		))
	defer span.End()
	start := time.Now()

	o.mu.RLock()
	t, ok := o.teams[teamName]
	o.mu.RUnlock()

	if !ok {
		res := types.Result{Status: types.StatusUnknownTeam}
		o.observe(ctx, span, teamName, string(res.Status), start)
		return res, nil
	}

	res, err := t.HandleEvent(ctx, ev)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.observe(ctx, span, teamName, "error", start)
		o.logger.Error("team dispatch failed",
			zap.String("team", teamName),
			zap.String("event_type", ev.Type),
			zap.String("event_id", ev.ID),
			zap.Error(err))
		return types.Result{}, fmt.Errorf("team %s: %w", teamName, err)
	}

	o.record(ctx, teamName, ev, res)
	o.observe(ctx, span, teamName, string(res.Status), start)
	return res, nil
}

func (o *Orchestrator) observe(ctx context.Context, span trace.Span, teamName, status string, start time.Time) {
	span.SetAttributes(attribute.String("result.status", status))
	o.metrics.RecordEvent(teamName, status, time.Since(start))
	if o.dispatched != nil {
		o.dispatched.Add(ctx, 1, metric.WithAttributes(
			attribute.String("team", teamName),
			attribute.String("status", status)))
	}
}

// record 写入各类历史；协作者失败只记录日志
func (o *Orchestrator) record(ctx context.Context, teamName string, ev types.Event, res types.Result) {
	o.histMu.Lock()
	o.history = append(o.history, HistoryEntry{Team: teamName, Event: ev, Result: res})
	if o.historyLimit > 0 && len(o.history) > o.historyLimit {
		o.history = append([]HistoryEntry(nil), o.history[len(o.history)-o.historyLimit:]...)
	}
	o.histMu.Unlock()

	if o.historyStore != nil {
		if err := o.historyStore.InsertEvent(ctx, teamName, ev.Type, ev.Payload, res); err != nil {
			o.logger.Warn("failed to persist history",
				zap.String("team", teamName), zap.String("event_id", ev.ID), zap.Error(err))
		}
	}

	if o.activity != nil {
		if err := o.activity.Log(ev.Type, res.Summary(), ev.ID); err != nil {
			o.logger.Warn("failed to write activity log",
				zap.String("team", teamName), zap.String("event_id", ev.ID), zap.Error(err))
		}
	}

	o.publish(ctx, teamName, Message{Type: MessageActivity, Event: &ev, Result: &res})
}

// History 返回进程内历史的副本，旧的在前
func (o *Orchestrator) History() []HistoryEntry {
	o.histMu.Lock()
	defer o.histMu.Unlock()
	out := make([]HistoryEntry, len(o.history))
	copy(out, o.history)
	return out
}

// =============================================================================
// 📡 团队状态
// =============================================================================

// ReportStatus 记录团队最新状态并广播 status 消息
func (o *Orchestrator) ReportStatus(teamName, state string) {
	o.statusMu.Lock()
	o.status[teamName] = state
	o.statusMu.Unlock()

	o.publish(o.baseCtx, teamName, Message{Type: MessageStatus, Status: state})
}

// GetStatus 返回团队最近一次上报的状态
func (o *Orchestrator) GetStatus(teamName string) (string, bool) {
	o.statusMu.RLock()
	defer o.statusMu.RUnlock()
	s, ok := o.status[teamName]
	return s, ok
}

// =============================================================================
// 📜 活动与历史查询
// =============================================================================

// GetRecentActivity 返回最近 limit 条活动日志；未配置活动日志时为空
func (o *Orchestrator) GetRecentActivity(limit int) ([]activity.Entry, error) {
	if o.activity == nil {
		return nil, nil
	}
	return o.activity.Tail(limit)
}

// FetchHistory 查询持久化历史；未配置时为空
func (o *Orchestrator) FetchHistory(ctx context.Context, q history.Query) ([]history.Record, error) {
	if o.historyStore == nil {
		return nil, nil
	}
	return o.historyStore.FetchHistory(ctx, q)
}
