package forkjoin

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// ErrIncomplete is returned by Group.Wait when every task finished without
// error but the group's root completer never completed. It indicates a
// broken completion graph.
var ErrIncomplete = errors.New("forkjoin: task graph finished without completing its root")

// PanicError wraps a value recovered from a panicking task.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func newPanicError(v interface{}) *PanicError {
	return &PanicError{Value: v, Stack: debug.Stack()}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("forkjoin: task panicked: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Group tracks the tasks of one fork/join computation. The first failure
// wins; tasks of a failed group that have not started yet are skipped.
type Group struct {
	pool     *ForkJoinPool
	root     *Completer
	done     atomic.Bool
	inflight sync.WaitGroup
	failed   atomic.Bool
	errOnce  sync.Once
	err      error
}

// NewGroup starts an empty computation on fp.
func (fp *ForkJoinPool) NewGroup() *Group {
	g := &Group{pool: fp}
	g.root = NewCompleter(nil, 0, func(*Worker) {
		g.done.Store(true)
	})
	return g
}

// Root is the completer whose completion marks the computation successful.
func (g *Group) Root() *Completer {
	return g.root
}

// Pool returns the pool running the group.
func (g *Group) Pool() *ForkJoinPool {
	return g.pool
}

// Err returns the first failure recorded so far.
func (g *Group) Err() error {
	if !g.failed.Load() {
		return nil
	}
	return g.err
}

// Fork schedules t as part of the group. From a worker of the same pool the
// task goes onto that worker's deque; a nil worker submits from outside.
func (g *Group) Fork(w *Worker, t Task) {
	g.inflight.Add(1)
	task := func(w *Worker) {
		defer g.inflight.Done()
		if g.failed.Load() {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				pe := newPanicError(r)
				g.fail(pe)
				g.pool.reportPanic(w, pe)
			}
		}()
		t(w)
	}
	if w != nil && w.pool == g.pool {
		w.Fork(task)
		return
	}
	if err := g.pool.Submit(task); err != nil {
		g.fail(err)
		g.inflight.Done()
	}
}

// Wait blocks until every task forked into the group has returned or been
// skipped, and reports the outcome. No task of the group runs after Wait
// returns.
func (g *Group) Wait() error {
	g.inflight.Wait()
	if err := g.Err(); err != nil {
		return err
	}
	if !g.done.Load() {
		return ErrIncomplete
	}
	return nil
}

func (g *Group) fail(err error) {
	g.errOnce.Do(func() {
		g.err = err
		g.failed.Store(true)
	})
}

// Invoke runs fn as the root task of a new group on fp and waits for the
// whole task graph. fn must arrange for g.Root() to complete exactly once.
func Invoke(fp *ForkJoinPool, fn func(g *Group, w *Worker)) error {
	g := fp.NewGroup()
	g.Fork(nil, func(w *Worker) {
		fn(g, w)
	})
	return g.Wait()
}
