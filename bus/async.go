package bus

import (
	"context"

	"go.uber.org/zap"
)

// AsyncBus 为每个订阅者启动独立 goroutine，Publish 等待全部完成后返回
type AsyncBus struct {
	reg   *registry
	limit int
}

// AsyncOption configures an AsyncBus.
type AsyncOption func(*AsyncBus)

// WithConcurrencyLimit caps the number of handlers running at once for a
// single Publish. Zero or negative means one goroutine per subscriber.
func WithConcurrencyLimit(n int) AsyncOption {
	return func(b *AsyncBus) { b.limit = n }
}

// NewAsyncBus creates an in-process cooperative bus.
func NewAsyncBus(logger *zap.Logger, opts ...AsyncOption) *AsyncBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &AsyncBus{reg: newRegistry(logger.With(zap.String("component", "async_bus")))}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *AsyncBus) Subscribe(topic string, h Handler) string { return b.reg.subscribe(topic, h) }

func (b *AsyncBus) Unsubscribe(id string) { b.reg.unsubscribe(id) }

// Publish starts every subscriber concurrently and joins them. A failing
// handler neither cancels its siblings nor surfaces to the caller.
func (b *AsyncBus) Publish(ctx context.Context, topic string, payload map[string]any) error {
	if b.reg.closed.Load() {
		return ErrClosed
	}
	b.reg.published.Add(1)
	b.reg.deliver(ctx, topic, payload, true, b.limit)
	return nil
}

func (b *AsyncBus) Close() error {
	b.reg.closed.Store(true)
	return nil
}

// Stats returns delivery counters.
func (b *AsyncBus) Stats() Stats { return b.reg.stats() }
