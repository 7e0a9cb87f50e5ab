package agent

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Factory 根据参与者配置构造处理器实例。
// 返回值须实现 Agent 或 AsyncAgent，否则解析阶段报 CapabilityMismatch。
type Factory func(cfg map[string]any) (any, error)

// Registry manages explicitly registered agent factories by name.
// It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	logger    *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		factories: make(map[string]Factory),
		logger:    logger.With(zap.String("component", "agent_registry")),
	}
}

// DefaultRegistry 由发现代码在 init 中填充
var DefaultRegistry = NewRegistry(nil)

// Register adds a factory to DefaultRegistry.
func Register(name string, factory Factory) {
	DefaultRegistry.Register(name, factory)
}

// Register registers a factory under name, replacing any previous one.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[name] = factory
	r.logger.Debug("agent registered", zap.String("name", name))
}

// Unregister removes a factory.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.factories, name)
	r.logger.Debug("agent unregistered", zap.String("name", name))
}

// Lookup returns the factory registered under name.
func (r *Registry) Lookup(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.factories[name]
	return f, ok
}

// Names lists registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
