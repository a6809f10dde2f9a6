package parallel

import (
	"github.com/king54346/timsort/forkjoin"
)

// SequentialFunc stably sorts a[lo:hi] with cmp, optionally using work as
// scratch space. timsort.SortRangeFunc is the default.
type SequentialFunc[T any] func(a []T, lo, hi int, cmp func(a, b T) int, work []T)

// sorter sorts a[base:base+size] in place, using w[wbase:wbase+size] as the
// workspace for the range.
type sorter[T any] struct {
	a, w  []T
	base  int
	size  int
	wbase int
	gran  int
	cmp   func(a, b T) int
	seq   SequentialFunc[T]
	group *forkjoin.Group
	node  *forkjoin.Completer // completed once the range is sorted
}

func (s *sorter[T]) child(node *forkjoin.Completer, base, size, wbase int) *sorter[T] {
	return &sorter[T]{
		a: s.a, w: s.w,
		base: base, size: size, wbase: wbase,
		gran:  s.gran,
		cmp:   s.cmp,
		seq:   s.seq,
		group: s.group,
		node:  node,
	}
}

// compute splits the range into quarters until it is small enough to sort
// sequentially:
//
//	q1 = [b, b+q)   q2 = [b+q, b+h)   q3 = [b+h, b+u)   q4 = [b+u, b+n)
//
// q3 and q4 report to relay rc, which merges them into the workspace. q2 and
// the continuation that keeps working on q1 report to relay bc, which merges
// q1 and q2 into the workspace. Both workspace merges report to relay fc,
// which merges the two halves back into a and completes this sorter. No merge
// starts before both of its inputs are final, so the result is stable.
func (s *sorter[T]) compute(w *forkjoin.Worker) {
	a, ws, cmp, grp := s.a, s.w, s.cmp, s.group
	b, n, wb, g := s.base, s.size, s.wbase, s.gran
	c := s.node
	for n > g {
		h := n >> 1
		q := h >> 1
		u := h + q

		fc := forkjoin.NewRelay(grp,
			newMerger(c, grp, ws, a, wb, h, wb+h, n-h, b, g, cmp).compute)
		rc := forkjoin.NewRelay(grp,
			newMerger(fc, grp, a, ws, b+h, q, b+u, n-u, wb+h, g, cmp).compute)
		grp.Fork(w, s.child(rc, b+u, n-u, wb+u).compute)
		grp.Fork(w, s.child(rc, b+h, q, wb+h).compute)
		bc := forkjoin.NewRelay(grp,
			newMerger(fc, grp, a, ws, b, q, b+q, h-q, wb, g, cmp).compute)
		grp.Fork(w, s.child(bc, b+q, h-q, wb+q).compute)

		c = forkjoin.NewEmptyCompleter(bc)
		n = q
	}
	s.seq(a, b, b+n, cmp, ws[wb:wb+n:wb+n])
	c.TryComplete(w)
}
