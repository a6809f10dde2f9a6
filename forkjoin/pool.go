// Package forkjoin provides a small work-stealing pool and the completion
// primitives needed to run recursive task graphs on it without blocking
// worker goroutines.
//
// A task never waits for its children. Instead each task is attached to a
// Completer whose pending count records how many children are still
// outstanding; the last child to finish runs the parent's completion action
// and propagates further up the chain.
package forkjoin

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	// ErrPoolClosed is returned when work is submitted to a closed pool.
	ErrPoolClosed = errors.New("forkjoin: pool closed")

	commonOnce sync.Once
	commonPool *ForkJoinPool
)

// Task is a unit of work executed by a pool worker. The worker running the
// task is passed in so the task can fork children onto its own deque.
type Task func(w *Worker)

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	Parallelism int32
	Submitted   uint64 // tasks entering the pool from outside a worker
	Forked      uint64 // tasks pushed by a worker onto its own deque
	Stolen      uint64 // tasks taken from another worker's deque
	Completed   uint64
	Panics      uint64
	Queued      int // tasks waiting in deques at snapshot time
}

type poolMetrics struct {
	submitted atomic.Uint64
	forked    atomic.Uint64
	stolen    atomic.Uint64
	completed atomic.Uint64
	panics    atomic.Uint64
}

// Option configures a ForkJoinPool.
type Option func(*ForkJoinPool)

// WithLogger sets the logger used for lifecycle and panic reports.
func WithLogger(logger *zap.Logger) Option {
	return func(fp *ForkJoinPool) {
		if logger != nil {
			fp.logger = logger
		}
	}
}

// WithPanicHandler installs a callback invoked with every recovered panic.
func WithPanicHandler(panicHandler func(interface{})) Option {
	return func(fp *ForkJoinPool) {
		fp.panicHandler = panicHandler
	}
}

// ForkJoinPool runs tasks on a fixed set of workers. Each worker owns a
// deque: it pushes and pops its own work LIFO at the bottom, while idle
// workers steal FIFO from the top of other deques.
type ForkJoinPool struct {
	cap          int32
	workers      []*Worker
	queued       atomic.Int64 // >= number of tasks sitting in deques
	idle         atomic.Int32
	lock         sync.Mutex
	signal       *sync.Cond // 用于通知 worker pool 中的 worker 有新的任务到来
	closed       bool       // guarded by lock
	nextWorker   atomic.Uint64
	wg           sync.WaitGroup
	logger       *zap.Logger
	panicHandler func(interface{})
	metrics      poolMetrics
}

// NewForkJoinPool starts a pool with workerCap workers. A non-positive
// workerCap uses runtime.GOMAXPROCS(0).
func NewForkJoinPool(workerCap int32, opts ...Option) *ForkJoinPool {
	if workerCap <= 0 {
		workerCap = int32(runtime.GOMAXPROCS(0))
	}
	fp := &ForkJoinPool{
		cap:    workerCap,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(fp)
	}
	fp.signal = sync.NewCond(&fp.lock)

	fp.workers = make([]*Worker, workerCap)
	for i := range fp.workers {
		fp.workers[i] = newWorker(i, fp)
	}
	for _, w := range fp.workers {
		fp.wg.Add(1)
		go func(w *Worker) {
			defer fp.wg.Done()
			w.run()
		}(w)
	}
	fp.logger.Debug("fork/join pool started", zap.Int32("parallelism", workerCap))
	return fp
}

// CommonPool returns the process-wide pool, creating it on first use. It is
// sized to GOMAXPROCS and is never closed.
func CommonPool() *ForkJoinPool {
	commonOnce.Do(func() {
		commonPool = NewForkJoinPool(0)
	})
	return commonPool
}

// SetPanicHandler replaces the panic callback. It must be called before
// tasks are submitted.
func (fp *ForkJoinPool) SetPanicHandler(panicHandler func(interface{})) {
	fp.panicHandler = panicHandler
}

// Parallelism is the number of workers.
func (fp *ForkJoinPool) Parallelism() int32 {
	return fp.cap
}

// Submit schedules t from outside the pool. Tasks are spread round-robin
// across the workers.
func (fp *ForkJoinPool) Submit(t Task) error {
	if t == nil {
		return errors.New("forkjoin: nil task")
	}
	// closed is checked and the task published under the same lock, so a
	// worker can never park for good between the two
	fp.lock.Lock()
	defer fp.lock.Unlock()
	if fp.closed {
		return ErrPoolClosed
	}
	fp.metrics.submitted.Add(1)
	idx := fp.nextWorker.Add(1) % uint64(len(fp.workers))
	fp.queued.Add(1)
	fp.workers[idx].queue.pushBottom(t)
	fp.signal.Signal()
	return nil
}

// Close stops accepting external submissions, lets the workers drain every
// queued task, and waits for them to exit. Tasks forked by running tasks
// during the drain still execute. Close is idempotent.
func (fp *ForkJoinPool) Close() {
	fp.lock.Lock()
	if fp.closed {
		fp.lock.Unlock()
		fp.wg.Wait()
		return
	}
	fp.closed = true
	fp.signal.Broadcast()
	fp.lock.Unlock()

	fp.wg.Wait()
	fp.logger.Debug("fork/join pool stopped", zap.Uint64("completed", fp.metrics.completed.Load()))
}

// Stats returns a snapshot of the pool counters.
func (fp *ForkJoinPool) Stats() Stats {
	queued := 0
	for _, w := range fp.workers {
		queued += w.queue.size()
	}
	return Stats{
		Queued:      queued,
		Parallelism: fp.cap,
		Submitted:   fp.metrics.submitted.Load(),
		Forked:      fp.metrics.forked.Load(),
		Stolen:      fp.metrics.stolen.Load(),
		Completed:   fp.metrics.completed.Load(),
		Panics:      fp.metrics.panics.Load(),
	}
}

func (fp *ForkJoinPool) push(w *Worker, t Task) {
	// queued is raised before the task becomes visible so a zero count always
	// means every deque is empty.
	fp.queued.Add(1)
	w.queue.pushBottom(t)
	if fp.idle.Load() > 0 {
		fp.lock.Lock()
		fp.signal.Signal()
		fp.lock.Unlock()
	}
}

// park blocks an idle worker until work is queued. It reports false once the
// pool is closed and nothing is left to run.
func (fp *ForkJoinPool) park() bool {
	fp.lock.Lock()
	defer fp.lock.Unlock()
	fp.idle.Add(1)
	defer fp.idle.Add(-1)
	for fp.queued.Load() <= 0 {
		if fp.closed {
			return false
		}
		fp.signal.Wait()
	}
	return true
}

func (fp *ForkJoinPool) execute(w *Worker, t Task) {
	defer func() {
		if r := recover(); r != nil {
			fp.reportPanic(w, newPanicError(r))
		}
		fp.metrics.completed.Add(1)
	}()
	t(w)
}

func (fp *ForkJoinPool) reportPanic(w *Worker, pe *PanicError) {
	fp.metrics.panics.Add(1)
	fp.logger.Error("fork/join task panicked",
		zap.Int("worker", w.id),
		zap.Any("panic", pe.Value),
		zap.ByteString("stack", pe.Stack))
	if fp.panicHandler != nil {
		fp.panicHandler(pe.Value)
	}
}

// Worker is a pool goroutine together with its deque.
type Worker struct {
	id    int
	pool  *ForkJoinPool
	queue deque
	seed  uint64
}

func newWorker(id int, pool *ForkJoinPool) *Worker {
	return &Worker{id: id, pool: pool, seed: uint64(id)*0x9E3779B97F4A7C15 + 1}
}

// Pool is the pool the worker belongs to.
func (w *Worker) Pool() *ForkJoinPool {
	return w.pool
}

// Fork pushes t onto the worker's own deque. It must only be called from
// the goroutine running this worker.
func (w *Worker) Fork(t Task) {
	w.pool.metrics.forked.Add(1)
	w.pool.push(w, t)
}

func (w *Worker) run() {
	for {
		if t, ok := w.next(); ok {
			w.pool.execute(w, t)
			continue
		}
		if w.pool.queued.Load() > 0 {
			// a task is being published; try again shortly
			runtime.Gosched()
			continue
		}
		if !w.pool.park() {
			return
		}
	}
}

// next pops local work first and otherwise tries to steal, starting at a
// pseudo-random victim.
func (w *Worker) next() (Task, bool) {
	if t, ok := w.queue.popBottom(); ok {
		w.pool.queued.Add(-1)
		return t, true
	}
	workers := w.pool.workers
	n := len(workers)
	if n == 1 {
		return nil, false
	}
	start := int(w.rand() % uint64(n))
	for i := 0; i < n; i++ {
		victim := workers[(start+i)%n]
		if victim == w {
			continue
		}
		if t, ok := victim.queue.steal(); ok {
			w.pool.queued.Add(-1)
			w.pool.metrics.stolen.Add(1)
			return t, true
		}
	}
	return nil, false
}

// xorshift64
func (w *Worker) rand() uint64 {
	x := w.seed
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	w.seed = x
	return x
}
