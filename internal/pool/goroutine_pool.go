// Package pool provides the bounded worker pool behind event admission and
// pooled scratch buffers for hot encode paths.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	ErrPoolClosed = errors.New("pool is closed")
	ErrPoolFull   = errors.New("pool is full")
)

// Task represents a unit of work producing a value.
type Task func(ctx context.Context) (any, error)

// Future 是一次提交的结果占位，任务结束时被恰好解决一次
type Future struct {
	done  chan struct{}
	value any
	err   error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(value any, err error) {
	f.value = value
	f.err = err
	close(f.done)
}

// Done is closed once the task has finished.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the task finishes or ctx is done. Giving up on the wait
// does not cancel the task.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GoroutinePool runs submitted tasks on a fixed number of workers fed by a
// bounded queue. Workers are spawned on demand up to MaxWorkers and live
// until the queue has been drained after Close.
type GoroutinePool struct {
	maxWorkers  int
	taskQueue   chan taskWrapper
	workerCount atomic.Int32
	activeCount atomic.Int32
	closed      atomic.Bool
	wg          sync.WaitGroup

	// ctx 在 Close 时取消，只用于拒绝新的提交
	ctx    context.Context
	cancel context.CancelFunc
	// abort 在 Close 的等待期限到达时取消：运行中的任务收到取消，
	// worker 不再领取队列中的任务
	abort       context.Context
	abortCancel context.CancelFunc
	mu          sync.RWMutex

	// Metrics
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64

	panicHandler func(any)
	onChange     func(GoroutinePoolStats)
}

type taskWrapper struct {
	task   Task
	ctx    context.Context
	future *Future
}

// GoroutinePoolConfig configures the pool.
type GoroutinePoolConfig struct {
	MaxWorkers   int                      `json:"max_workers"`
	QueueSize    int                      `json:"queue_size"`
	PanicHandler func(any)                `json:"-"`
	OnChange     func(GoroutinePoolStats) `json:"-"`
}

// DefaultGoroutinePoolConfig returns sensible defaults.
func DefaultGoroutinePoolConfig() GoroutinePoolConfig {
	return GoroutinePoolConfig{
		MaxWorkers: 4,
		QueueSize:  100,
	}
}

// NewGoroutinePool creates a new goroutine pool. No worker starts until the
// first submission.
func NewGoroutinePool(config GoroutinePoolConfig) *GoroutinePool {
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = 1
	}
	if config.QueueSize < 0 {
		config.QueueSize = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	abort, abortCancel := context.WithCancel(context.Background())
	return &GoroutinePool{
		maxWorkers:   config.MaxWorkers,
		taskQueue:    make(chan taskWrapper, config.QueueSize),
		ctx:          ctx,
		cancel:       cancel,
		abort:        abort,
		abortCancel:  abortCancel,
		panicHandler: config.PanicHandler,
		onChange:     config.OnChange,
	}
}

// Submit queues task, waiting for queue space until ctx is done. The task
// runs with ctx's values but is only cancelled when Close gives up waiting.
func (p *GoroutinePool) Submit(ctx context.Context, task Task) (*Future, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed.Load() {
		return nil, ErrPoolClosed
	}

	wrapper := taskWrapper{task: task, ctx: ctx, future: newFuture()}
	p.ensureWorker()

	select {
	case p.taskQueue <- wrapper:
		p.submitted.Add(1)
		p.notify()
		return wrapper.future, nil
	case <-ctx.Done():
		p.rejected.Add(1)
		return nil, ctx.Err()
	case <-p.ctx.Done():
		p.rejected.Add(1)
		return nil, ErrPoolClosed
	}
}

// TrySubmit queues task without waiting; a full queue returns ErrPoolFull.
func (p *GoroutinePool) TrySubmit(ctx context.Context, task Task) (*Future, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed.Load() {
		return nil, ErrPoolClosed
	}

	wrapper := taskWrapper{task: task, ctx: ctx, future: newFuture()}
	p.ensureWorker()

	select {
	case p.taskQueue <- wrapper:
		p.submitted.Add(1)
		p.notify()
		return wrapper.future, nil
	default:
		p.rejected.Add(1)
		return nil, ErrPoolFull
	}
}

func (p *GoroutinePool) ensureWorker() {
	if p.workerCount.Load() < int32(p.maxWorkers) {
		p.trySpawnWorker()
	}
}

func (p *GoroutinePool) trySpawnWorker() bool {
	for {
		current := p.workerCount.Load()
		if current >= int32(p.maxWorkers) {
			return false
		}
		if p.workerCount.CompareAndSwap(current, current+1) {
			p.wg.Add(1)
			go p.worker()
			return true
		}
	}
}

func (p *GoroutinePool) worker() {
	defer p.wg.Done()
	defer p.workerCount.Add(-1)

	for {
		// 放弃排空后不再领取新任务，剩余 future 保持未解决
		if p.abort.Err() != nil {
			return
		}
		select {
		case <-p.abort.Done():
			return
		case wrapper, ok := <-p.taskQueue:
			if !ok {
				return
			}

			p.activeCount.Add(1)
			p.notify()
			value, err := p.executeTask(wrapper)
			p.activeCount.Add(-1)

			if err != nil {
				p.failed.Add(1)
			} else {
				p.completed.Add(1)
			}
			wrapper.future.resolve(value, err)
			p.notify()
		}
	}
}

func (p *GoroutinePool) executeTask(wrapper taskWrapper) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			if p.panicHandler != nil {
				p.panicHandler(r)
			}
			value = nil
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()

	ctx, cancel := context.WithCancel(context.WithoutCancel(wrapper.ctx))
	defer cancel()
	stop := context.AfterFunc(p.abort, cancel)
	defer stop()

	return wrapper.task(ctx)
}

func (p *GoroutinePool) notify() {
	if p.onChange != nil {
		p.onChange(p.Stats())
	}
}

// Close stops accepting work and lets workers drain the queue until ctx
// expires. At that point running tasks' contexts are cancelled, workers stop
// taking queued tasks, and the futures of tasks never started stay
// unresolved.
func (p *GoroutinePool) Close(ctx context.Context) error {
	if p.closed.Swap(true) {
		return nil
	}
	p.cancel()

	// 等待所有阻塞中的 Submit 退出，此后不会再有发送方
	p.mu.Lock()
	close(p.taskQueue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.abortCancel()
		return nil
	case <-ctx.Done():
		p.abortCancel()
		return ctx.Err()
	}
}

// Stats returns pool statistics.
func (p *GoroutinePool) Stats() GoroutinePoolStats {
	return GoroutinePoolStats{
		Workers:   int(p.workerCount.Load()),
		Active:    int(p.activeCount.Load()),
		Queued:    len(p.taskQueue),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
	}
}

// GoroutinePoolStats contains pool statistics.
type GoroutinePoolStats struct {
	Workers   int   `json:"workers"`
	Active    int   `json:"active"`
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
}
