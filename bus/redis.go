package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/BaSui01/teamflow/internal/pool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBus 通过 Redis Pub/Sub 在进程间分发消息。
// 发布端把 payload 序列化为 JSON 写入 <prefix><topic> 频道；
// 后台监听 goroutine 收到消息后按本地扇出规则调用订阅者。
// 投递语义为至多一次，不做持久化与重放。
type RedisBus struct {
	client redis.UniversalClient
	prefix string
	async  bool
	limit  int

	reg *registry

	mu      sync.Mutex
	pubsub  *redis.PubSub
	done    chan struct{}
	stopped chan struct{}

	logger *zap.Logger
}

// RedisOption configures a RedisBus.
type RedisOption func(*RedisBus)

// WithChannelPrefix sets the Redis channel prefix.
func WithChannelPrefix(prefix string) RedisOption {
	return func(b *RedisBus) { b.prefix = prefix }
}

// WithAsyncFanout makes the listener fan out to local subscribers
// concurrently instead of in registration order.
func WithAsyncFanout(limit int) RedisOption {
	return func(b *RedisBus) {
		b.async = true
		b.limit = limit
	}
}

// NewRedisBus creates a distributed bus on top of an existing client.
// The client is owned by the caller and is not closed by Close.
func NewRedisBus(client redis.UniversalClient, logger *zap.Logger, opts ...RedisOption) *RedisBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "redis_bus"))
	b := &RedisBus{
		client: client,
		prefix: "teamflow:",
		reg:    newRegistry(logger),
		done:   make(chan struct{}),
		logger: logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *RedisBus) channel(topic string) string { return b.prefix + topic }

// Subscribe registers a local handler and subscribes the Redis channel the
// first time a topic is seen. Channel subscription failures are logged.
func (b *RedisBus) Subscribe(topic string, h Handler) string {
	id := b.reg.subscribe(topic, h)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.reg.closed.Load() {
		return id
	}

	ctx := context.Background()
	if b.pubsub == nil {
		b.pubsub = b.client.Subscribe(ctx, b.channel(topic))
		b.stopped = make(chan struct{})
		go b.listen(b.pubsub.Channel(), b.stopped)
		return id
	}
	if err := b.pubsub.Subscribe(ctx, b.channel(topic)); err != nil {
		b.logger.Error("redis subscribe failed", zap.String("topic", topic), zap.Error(err))
	}
	return id
}

// Unsubscribe removes a local handler and drops the Redis channel once the
// topic has no local subscribers left.
func (b *RedisBus) Unsubscribe(id string) {
	topic, empty := b.reg.unsubscribe(id)
	if !empty {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubsub == nil || b.reg.closed.Load() {
		return
	}
	if err := b.pubsub.Unsubscribe(context.Background(), b.channel(topic)); err != nil {
		b.logger.Warn("redis unsubscribe failed", zap.String("topic", topic), zap.Error(err))
	}
}

// Publish serialises payload and publishes it. It returns once Redis has
// accepted the message; remote delivery is best effort.
func (b *RedisBus) Publish(ctx context.Context, topic string, payload map[string]any) error {
	if b.reg.closed.Load() {
		return ErrClosed
	}
	buf := pool.ByteBufferPool.Get()
	defer pool.ByteBufferPool.Put(buf)
	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		return fmt.Errorf("marshal payload for %s: %w", topic, err)
	}
	// Encoder 追加的换行不进入消息体；String() 复制了数据，缓冲可安全归还
	data := strings.TrimSuffix(buf.String(), "\n")
	if err := b.client.Publish(ctx, b.channel(topic), data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", topic, err)
	}
	b.reg.published.Add(1)
	return nil
}

func (b *RedisBus) listen(ch <-chan *redis.Message, stopped chan struct{}) {
	defer close(stopped)

	for {
		select {
		case <-b.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.handleMessage(msg)
		}
	}
}

func (b *RedisBus) handleMessage(msg *redis.Message) {
	if !strings.HasPrefix(msg.Channel, b.prefix) {
		return
	}
	topic := strings.TrimPrefix(msg.Channel, b.prefix)

	var payload map[string]any
	if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
		b.logger.Warn("dropping undecodable message",
			zap.String("channel", msg.Channel),
			zap.Error(err))
		return
	}
	b.reg.deliver(context.Background(), topic, payload, b.async, b.limit)
}

// Close stops the listener and releases the Pub/Sub connection.
func (b *RedisBus) Close() error {
	if b.reg.closed.Swap(true) {
		return nil
	}
	close(b.done)

	b.mu.Lock()
	ps, stopped := b.pubsub, b.stopped
	b.mu.Unlock()

	if ps == nil {
		return nil
	}
	err := ps.Close()
	<-stopped
	return err
}

// Stats returns delivery counters. Published counts messages accepted by
// Redis from this process; Delivered counts local handler invocations.
func (b *RedisBus) Stats() Stats { return b.reg.stats() }

// Topics lists topics with at least one local subscriber.
func (b *RedisBus) Topics() []string { return b.reg.topicNames() }
