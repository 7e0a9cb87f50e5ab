package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("event bus is closed")

// Handler 处理一个主题上的消息。返回的错误只会被记录，不会传回发布者。
type Handler func(ctx context.Context, payload map[string]any) error

// Bus 是主题发布/订阅总线
type Bus interface {
	// Subscribe registers h for topic and returns a subscription id.
	Subscribe(topic string, h Handler) string
	// Unsubscribe removes a subscription; unknown ids are ignored.
	Unsubscribe(id string)
	// Publish delivers payload to every current subscriber of topic and
	// returns once all of them have finished. Handler failures are contained.
	Publish(ctx context.Context, topic string, payload map[string]any) error
	Close() error
}

// Stats 总线计数
type Stats struct {
	Published int64 `json:"published"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
}

// subscriptionCounter 生成进程内唯一的订阅 ID
var subscriptionCounter int64

type subscription struct {
	id      string
	handler Handler
}

// registry 按注册顺序保存每个主题的订阅者
type registry struct {
	mu     sync.RWMutex
	topics map[string][]subscription
	closed atomic.Bool

	published atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64

	logger *zap.Logger
}

func newRegistry(logger *zap.Logger) *registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &registry{
		topics: make(map[string][]subscription),
		logger: logger,
	}
}

func (r *registry) subscribe(topic string, h Handler) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := fmt.Sprintf("%s-%d", topic, atomic.AddInt64(&subscriptionCounter, 1))
	r.topics[topic] = append(r.topics[topic], subscription{id: id, handler: h})
	return id
}

// unsubscribe 返回被移除订阅的主题，以及该主题是否已无订阅者
func (r *registry) unsubscribe(id string) (topic string, empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for t, subs := range r.topics {
		for i, s := range subs {
			if s.id != id {
				continue
			}
			rest := make([]subscription, 0, len(subs)-1)
			rest = append(rest, subs[:i]...)
			rest = append(rest, subs[i+1:]...)
			if len(rest) == 0 {
				delete(r.topics, t)
				return t, true
			}
			r.topics[t] = rest
			return t, false
		}
	}
	return "", false
}

// snapshot 拷贝订阅列表，发布期间的订阅变更不影响本次分发
func (r *registry) snapshot(topic string) []subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src := r.topics[topic]
	out := make([]subscription, len(src))
	copy(out, src)
	return out
}

func (r *registry) topicNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.topics))
	for t := range r.topics {
		names = append(names, t)
	}
	return names
}

// invoke 调用单个处理器，错误与 panic 均被记录后吞掉
func (r *registry) invoke(ctx context.Context, topic string, s subscription, payload map[string]any) {
	defer func() {
		if rec := recover(); rec != nil {
			r.failed.Add(1)
			r.logger.Error("event handler panicked",
				zap.String("topic", topic),
				zap.String("subscription", s.id),
				zap.Any("recover", rec))
		}
	}()

	if err := s.handler(ctx, payload); err != nil {
		r.failed.Add(1)
		r.logger.Warn("event handler failed",
			zap.String("topic", topic),
			zap.String("subscription", s.id),
			zap.Error(err))
		return
	}
	r.delivered.Add(1)
}

// deliver 执行本地扇出。async 为 true 时每个订阅者一个 goroutine 并等待全部结束；
// limit > 0 时限制同时运行的处理器数量。
func (r *registry) deliver(ctx context.Context, topic string, payload map[string]any, async bool, limit int) {
	subs := r.snapshot(topic)
	if !async {
		for _, s := range subs {
			r.invoke(ctx, topic, s, payload)
		}
		return
	}

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, s := range subs {
		g.Go(func() error {
			r.invoke(ctx, topic, s, payload)
			return nil
		})
	}
	_ = g.Wait()
}

func (r *registry) stats() Stats {
	return Stats{
		Published: r.published.Load(),
		Delivered: r.delivered.Load(),
		Failed:    r.failed.Load(),
	}
}
