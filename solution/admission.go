package solution

import (
	"context"
	"errors"
	"fmt"

	"github.com/BaSui01/teamflow/internal/pool"
	"github.com/BaSui01/teamflow/types"
)

// ErrRateLimited 准入令牌桶拒绝了提交
var ErrRateLimited = errors.New("admission rate limit exceeded")

// 准入结果标签
const (
	admissionAccepted    = "accepted"
	admissionRejected    = "rejected"
	admissionRateLimited = "rate_limited"
)

// Submit 把事件放入有界准入队列，由固定数量的 worker 调用 HandleEvent。
// 队列满时等待空位直到 ctx 结束。返回的 future 以 types.Result 解决；
// worker 中的错误与 panic 转为 future 的错误。
func (o *Orchestrator) Submit(ctx context.Context, teamName string, ev types.Event) (*pool.Future, error) {
	if o.closed.Load() {
		return nil, ErrClosed
	}
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			o.metrics.RecordAdmission(admissionRateLimited)
			return nil, fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
	}

	f, err := o.admission.Submit(ctx, func(ctx context.Context) (any, error) {
		return o.HandleEvent(ctx, teamName, ev)
	})
	if err != nil {
		o.metrics.RecordAdmission(admissionRejected)
		if errors.Is(err, pool.ErrPoolClosed) {
			return nil, ErrClosed
		}
		return nil, err
	}
	o.metrics.RecordAdmission(admissionAccepted)
	return f, nil
}

// EnqueueEvent 提交事件并等待结果。放弃等待（ctx 结束）不会取消已入队的事件。
func (o *Orchestrator) EnqueueEvent(ctx context.Context, teamName string, ev types.Event) (types.Result, error) {
	f, err := o.Submit(ctx, teamName, ev)
	if err != nil {
		return types.Result{}, err
	}
	v, err := f.Wait(ctx)
	if err != nil {
		return types.Result{}, err
	}
	res, _ := v.(types.Result)
	return res, nil
}

// AdmissionStats 返回准入池统计
func (o *Orchestrator) AdmissionStats() pool.GoroutinePoolStats {
	return o.admission.Stats()
}
