package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Policy 重试策略
type Policy struct {
	MaxRetries   int           // 最大重试次数（0 表示不重试）
	InitialDelay time.Duration // 首次重试前的延迟
	MaxDelay     time.Duration // 延迟上限
	Multiplier   float64       // 指数退避因子
	Jitter       bool          // ±25% 随机抖动
	// OnRetry 在每次重试等待前调用
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy 适用于 Pushgateway 等外部端点的短重试
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Retryer 执行带重试的操作
type Retryer interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// Backoff 基于指数退避的 Retryer
type Backoff struct {
	policy Policy
	logger *zap.Logger
}

// NewBackoff normalises policy and returns a retryer.
func NewBackoff(policy Policy, logger *zap.Logger) *Backoff {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = 100 * time.Millisecond
	}
	if policy.MaxDelay < policy.InitialDelay {
		policy.MaxDelay = policy.InitialDelay
	}
	if policy.Multiplier < 1.0 {
		policy.Multiplier = 2.0
	}
	return &Backoff{policy: policy, logger: logger.With(zap.String("component", "retry"))}
}

// Do 执行 fn，失败时按策略重试；Permanent 包装的错误立即返回
func (b *Backoff) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= b.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := b.delay(attempt)
			b.logger.Debug("retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", b.policy.MaxRetries),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			if b.policy.OnRetry != nil {
				b.policy.OnRetry(attempt, lastErr, delay)
			}

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("retry canceled: %w", errors.Join(ctx.Err(), lastErr))
			case <-timer.C:
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}
	}

	b.logger.Warn("retries exhausted", zap.Int("attempts", b.policy.MaxRetries+1), zap.Error(lastErr))
	return fmt.Errorf("failed after %d attempts: %w", b.policy.MaxRetries+1, lastErr)
}

// delay = initial * multiplier^(attempt-1)，不超过 MaxDelay，抖动后不低于 InitialDelay
func (b *Backoff) delay(attempt int) time.Duration {
	d := float64(b.policy.InitialDelay) * math.Pow(b.policy.Multiplier, float64(attempt-1))
	d = math.Min(d, float64(b.policy.MaxDelay))
	if b.policy.Jitter {
		d += (rand.Float64()*2 - 1) * d * 0.25
	}
	return time.Duration(math.Max(d, float64(b.policy.InitialDelay)))
}

// DoValue 是 Do 的泛型版本
func DoValue[T any](ctx context.Context, r Retryer, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent 标记不应重试的错误
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}
