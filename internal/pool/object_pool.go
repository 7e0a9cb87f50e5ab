package pool

import (
	"bytes"
	"sync"
)

// Pool 是带重置回调的类型化 sync.Pool
type Pool[T any] struct {
	pool  sync.Pool
	reset func(*T)
}

// NewPool creates a pool. reset, when non-nil, runs on every Put.
func NewPool[T any](newFunc func() T, reset func(*T)) *Pool[T] {
	p := &Pool[T]{reset: reset}
	p.pool.New = func() any { return newFunc() }
	return p
}

func (p *Pool[T]) Get() T { return p.pool.Get().(T) }

func (p *Pool[T]) Put(obj T) {
	if p.reset != nil {
		p.reset(&obj)
	}
	p.pool.Put(obj)
}

// ByteBufferPool 复用 RedisBus 发布时的 JSON 编码缓冲
var ByteBufferPool = NewPool(
	func() *bytes.Buffer { return bytes.NewBuffer(make([]byte, 0, 4096)) },
	func(b **bytes.Buffer) { (*b).Reset() },
)
