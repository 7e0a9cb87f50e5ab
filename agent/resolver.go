package agent

import (
	"strings"
	"sync"
	"unicode"

	"github.com/BaSui01/teamflow/types"
	"go.uber.org/zap"
)

// Class 是解析结果：类路径与构造工厂
type Class struct {
	// Name 请求解析的名字
	Name string
	// Path 注册名或约定推导出的类路径，用量计数以此为键
	Path string
	// Conventional 为 true 表示经命名约定解析
	Conventional bool
	Factory      Factory
}

// Catalog 保存约定命名空间下的类，键为类路径（如 operations.DummyCliAgent）
type Catalog struct {
	mu      sync.RWMutex
	classes map[string]Factory
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{classes: make(map[string]Factory)}
}

// DefaultCatalog 是约定命名空间的默认目录
var DefaultCatalog = NewCatalog()

// RegisterClass adds a class to DefaultCatalog.
func RegisterClass(namespace, className string, factory Factory) {
	DefaultCatalog.RegisterClass(namespace, className, factory)
}

// RegisterClass registers className under an optional dotted namespace.
func (c *Catalog) RegisterClass(namespace, className string, factory Factory) {
	path := className
	if namespace != "" {
		path = namespace + "." + className
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.classes[path] = factory
}

func (c *Catalog) lookup(path string) (Factory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.classes[path]
	return f, ok
}

// ClassPath derives the conventional class path for a name: the namespace
// segments are kept and the final segment is CamelCased on underscores,
// so "operations.dummy_cli_agent" becomes "operations.DummyCliAgent".
func ClassPath(name string) string {
	ns, stem := "", name
	if i := strings.LastIndex(name, "."); i >= 0 {
		ns, stem = name[:i], name[i+1:]
	}

	var b strings.Builder
	for _, word := range strings.Split(stem, "_") {
		if word == "" {
			continue
		}
		runes := []rune(strings.ToLower(word))
		runes[0] = unicode.ToUpper(runes[0])
		b.WriteString(string(runes))
	}

	if ns == "" {
		return b.String()
	}
	return ns + "." + b.String()
}

// Resolver 把名字解析为可实例化的类：先查显式注册表，再按命名约定查目录
type Resolver struct {
	registry *Registry
	catalog  *Catalog
	logger   *zap.Logger
}

// NewResolver creates a resolver. Nil arguments fall back to the package
// defaults.
func NewResolver(registry *Registry, catalog *Catalog, logger *zap.Logger) *Resolver {
	if registry == nil {
		registry = DefaultRegistry
	}
	if catalog == nil {
		catalog = DefaultCatalog
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		registry: registry,
		catalog:  catalog,
		logger:   logger.With(zap.String("component", "agent_resolver")),
	}
}

// Resolve looks name up in the registry, then under its conventional class
// path. Neither matching yields ErrAgentNotFound.
func (r *Resolver) Resolve(name string) (Class, error) {
	if f, ok := r.registry.Lookup(name); ok {
		return Class{Name: name, Path: name, Factory: f}, nil
	}

	path := ClassPath(name)
	if f, ok := r.catalog.lookup(path); ok {
		r.logger.Debug("agent resolved by convention",
			zap.String("name", name),
			zap.String("class", path))
		return Class{Name: name, Path: path, Conventional: true, Factory: f}, nil
	}

	return Class{}, types.Errorf(types.ErrAgentNotFound, "agent %q not registered and class %q not found", name, path)
}

// Instantiate resolves name and builds a fresh handle from cfg. Each call
// invokes the factory again, so repeated resolution yields independent but
// behaviourally equivalent instances.
func (r *Resolver) Instantiate(name string, cfg map[string]any) (*Handle, error) {
	class, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}

	obj, err := class.Factory(cfg)
	if err != nil {
		return nil, types.Errorf(types.ErrInvalidConfig, "construct agent %q: %w", name, err)
	}
	return Adapt(name, class.Path, obj)
}
