// Package memory stores raw event payloads by key so handlers and operators
// can look back at recent traffic for an event type.
package memory

import (
	"context"
	"sync"

	"github.com/BaSui01/teamflow/internal/cache"
)

// Store 按键追加并读取最近的 payload
type Store interface {
	Store(ctx context.Context, key string, payload map[string]any) error
	// Fetch returns up to topK most recent payloads for key, oldest first.
	Fetch(ctx context.Context, key string, topK int) ([]map[string]any, error)
}

// InMemoryStore 进程内实现，每个键最多保留 capacity 条
type InMemoryStore struct {
	mu       sync.RWMutex
	capacity int
	items    map[string][]map[string]any
}

// NewInMemoryStore creates a store. capacity <= 0 keeps everything.
func NewInMemoryStore(capacity int) *InMemoryStore {
	return &InMemoryStore{capacity: capacity, items: make(map[string][]map[string]any)}
}

func (s *InMemoryStore) Store(_ context.Context, key string, payload map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := append(s.items[key], payload)
	if s.capacity > 0 && len(list) > s.capacity {
		list = append([]map[string]any(nil), list[len(list)-s.capacity:]...)
	}
	s.items[key] = list
	return nil
}

func (s *InMemoryStore) Fetch(_ context.Context, key string, topK int) ([]map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.items[key]
	if topK <= 0 {
		return nil, nil
	}
	if topK < len(list) {
		list = list[len(list)-topK:]
	}
	out := make([]map[string]any, len(list))
	copy(out, list)
	return out, nil
}

// RedisStore 以 Redis 列表保存 payload，键为 <prefix><key>
type RedisStore struct {
	manager  *cache.Manager
	prefix   string
	capacity int64
}

// NewRedisStore creates a Redis-backed store. capacity <= 0 keeps everything.
func NewRedisStore(manager *cache.Manager, prefix string, capacity int) *RedisStore {
	return &RedisStore{manager: manager, prefix: prefix, capacity: int64(capacity)}
}

func (s *RedisStore) Store(ctx context.Context, key string, payload map[string]any) error {
	return s.manager.AppendJSON(ctx, s.prefix+key, payload, s.capacity)
}

func (s *RedisStore) Fetch(ctx context.Context, key string, topK int) ([]map[string]any, error) {
	return s.manager.TailJSON(ctx, s.prefix+key, int64(topK))
}
