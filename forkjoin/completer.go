package forkjoin

import "sync/atomic"

// Completer is a node of a completion graph. It finishes once TryComplete has
// been called one more time than its pending count: each forked child raises
// the count by one and reports back with TryComplete, and the node's own work
// reports last.
//
// When a node finishes, its onCompletion action runs on the reporting worker
// and completion moves on to the parent.
type Completer struct {
	parent       *Completer
	pending      atomic.Int32
	onCompletion func(w *Worker)
}

// NewCompleter creates a node under parent with an initial pending count.
// onCompletion may be nil.
func NewCompleter(parent *Completer, pending int32, onCompletion func(w *Worker)) *Completer {
	c := &Completer{parent: parent, onCompletion: onCompletion}
	c.pending.Store(pending)
	return c
}

// NewEmptyCompleter returns a placeholder with no work of its own that
// forwards a single completion to parent. It anchors a completion chain at a
// position of the graph where the real work happens elsewhere.
func NewEmptyCompleter(parent *Completer) *Completer {
	return NewCompleter(parent, 0, nil)
}

// NewBarrier returns a node without a parent that runs cont on the worker
// delivering the last of parties completions.
func NewBarrier(parties int32, cont func(w *Worker)) *Completer {
	if parties < 1 {
		panic("forkjoin: barrier needs at least one party")
	}
	return NewCompleter(nil, parties-1, cont)
}

// NewRelay returns a barrier that waits for two predecessors and then forks
// task into g. The relay holds no state of its own; task is expected to
// report to its own completer when done.
func NewRelay(g *Group, task Task) *Completer {
	return NewBarrier(2, func(w *Worker) {
		g.Fork(w, task)
	})
}

// AddPending adjusts the pending count. Call it before forking the child
// that will report back.
func (c *Completer) AddPending(delta int32) {
	c.pending.Add(delta)
}

// TryComplete reports one completion. If the node still has pending
// children the count is decremented; otherwise the node finishes and the
// report travels to its parent.
func (c *Completer) TryComplete(w *Worker) {
	for a := c; a != nil; {
		p := a.pending.Load()
		if p == 0 {
			if a.onCompletion != nil {
				a.onCompletion(w)
			}
			a = a.parent
			continue
		}
		if a.pending.CompareAndSwap(p, p-1) {
			return
		}
	}
}
