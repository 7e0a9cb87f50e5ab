package bus

import (
	"context"

	"go.uber.org/zap"
)

// SyncBus 在发布者的 goroutine 上按注册顺序依次调用订阅者
type SyncBus struct {
	reg *registry
}

// NewSyncBus creates an in-process synchronous bus.
func NewSyncBus(logger *zap.Logger) *SyncBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncBus{reg: newRegistry(logger.With(zap.String("component", "sync_bus")))}
}

func (b *SyncBus) Subscribe(topic string, h Handler) string { return b.reg.subscribe(topic, h) }

func (b *SyncBus) Unsubscribe(id string) { b.reg.unsubscribe(id) }

// Publish runs every subscriber of topic in registration order.
func (b *SyncBus) Publish(ctx context.Context, topic string, payload map[string]any) error {
	if b.reg.closed.Load() {
		return ErrClosed
	}
	b.reg.published.Add(1)
	b.reg.deliver(ctx, topic, payload, false, 0)
	return nil
}

func (b *SyncBus) Close() error {
	b.reg.closed.Store(true)
	return nil
}

// Stats returns delivery counters.
func (b *SyncBus) Stats() Stats { return b.reg.stats() }
