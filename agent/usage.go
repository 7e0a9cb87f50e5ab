package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Usage 是某个处理器类的累计用量，单调递增，从不重置
type Usage struct {
	Loops  int64 `json:"loops" redis:"loops"`
	Tokens int64 `json:"tokens" redis:"tokens"`
}

// UsageStore 按类路径累计用量。实例由编排器持有并显式传入，不做进程级共享。
type UsageStore interface {
	// Add increments loops by one and tokens by tokens, returning the totals.
	Add(ctx context.Context, class string, tokens int) (Usage, error)
	Get(ctx context.Context, class string) (Usage, error)
}

// MemoryUsageStore 进程内用量计数
type MemoryUsageStore struct {
	mu    sync.Mutex
	usage map[string]Usage
}

// NewMemoryUsageStore creates an empty in-memory store.
func NewMemoryUsageStore() *MemoryUsageStore {
	return &MemoryUsageStore{usage: make(map[string]Usage)}
}

func (s *MemoryUsageStore) Add(_ context.Context, class string, tokens int) (Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.usage[class]
	u.Loops++
	u.Tokens += int64(tokens)
	s.usage[class] = u
	return u, nil
}

func (s *MemoryUsageStore) Get(_ context.Context, class string) (Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage[class], nil
}

// RedisUsageStore 以 Redis hash 保存用量，便于多进程共享同一预算
type RedisUsageStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisUsageStore creates a store keyed under prefix (e.g. "team:sales:").
func NewRedisUsageStore(client redis.UniversalClient, prefix string) *RedisUsageStore {
	return &RedisUsageStore{client: client, prefix: prefix}
}

func (s *RedisUsageStore) key(class string) string { return s.prefix + "usage:" + class }

// Add increments both counters in one MULTI/EXEC round trip.
func (s *RedisUsageStore) Add(ctx context.Context, class string, tokens int) (Usage, error) {
	key := s.key(class)
	var loops, total *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		loops = pipe.HIncrBy(ctx, key, "loops", 1)
		total = pipe.HIncrBy(ctx, key, "tokens", int64(tokens))
		return nil
	})
	if err != nil {
		return Usage{}, fmt.Errorf("increment usage for %s: %w", class, err)
	}
	return Usage{Loops: loops.Val(), Tokens: total.Val()}, nil
}

func (s *RedisUsageStore) Get(ctx context.Context, class string) (Usage, error) {
	var u Usage
	if err := s.client.HGetAll(ctx, s.key(class)).Scan(&u); err != nil {
		return Usage{}, fmt.Errorf("read usage for %s: %w", class, err)
	}
	return u, nil
}
