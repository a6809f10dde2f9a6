package parallel

import (
	"github.com/king54346/timsort/forkjoin"
)

// merger merges the sorted runs src[lbase:lbase+lsize] and
// src[rbase:rbase+rsize] into dst starting at dbase. On ties the left
// element goes first.
type merger[T any] struct {
	src, dst     []T
	lbase, lsize int
	rbase, rsize int
	dbase        int
	gran         int
	cmp          func(a, b T) int
	group        *forkjoin.Group
	node         *forkjoin.Completer
}

func newMerger[T any](parent *forkjoin.Completer, group *forkjoin.Group, src, dst []T,
	lbase, lsize, rbase, rsize, dbase, gran int, cmp func(a, b T) int) *merger[T] {
	return &merger[T]{
		src: src, dst: dst,
		lbase: lbase, lsize: lsize,
		rbase: rbase, rsize: rsize,
		dbase: dbase,
		gran:  gran,
		cmp:   cmp,
		group: group,
		node:  forkjoin.NewCompleter(parent, 0, nil),
	}
}

func (m *merger[T]) compute(w *forkjoin.Worker) {
	src, dst, cmp := m.src, m.dst, m.cmp
	lb, ln, rb, rn, k, g := m.lbase, m.lsize, m.rbase, m.rsize, m.dbase, m.gran
	if src == nil || dst == nil || cmp == nil || lb < 0 || rb < 0 || k < 0 {
		panic(ErrIllegalState)
	}

	// Split the larger run at its midpoint, find the split value's place in
	// the other run, and hand the upper halves to a forked merger.
	for {
		var lh, rh int
		if ln >= rn {
			if ln <= g {
				break
			}
			lh = ln >> 1
			rh = rn
			split := src[lb+lh]
			// right elements equal to split must land after it
			for lo := 0; lo < rh; {
				rm := int(uint(lo+rh) >> 1)
				if cmp(split, src[rb+rm]) <= 0 {
					rh = rm
				} else {
					lo = rm + 1
				}
			}
		} else {
			if rn <= g {
				break
			}
			rh = rn >> 1
			lh = ln
			split := src[rb+rh]
			// left elements equal to split must land before it
			for lo := 0; lo < lh; {
				lm := int(uint(lo+lh) >> 1)
				if cmp(split, src[lb+lm]) < 0 {
					lh = lm
				} else {
					lo = lm + 1
				}
			}
		}
		upper := newMerger(m.node, m.group, src, dst,
			lb+lh, ln-lh, rb+rh, rn-rh, k+lh+rh, g, cmp)
		ln = lh
		rn = rh
		m.node.AddPending(1)
		m.group.Fork(w, upper.compute)
	}

	lf, rf := lb+ln, rb+rn
	for lb < lf && rb < rf {
		if al, ar := src[lb], src[rb]; cmp(al, ar) <= 0 {
			dst[k] = al
			lb++
		} else {
			dst[k] = ar
			rb++
		}
		k++
	}
	if rb < rf {
		copy(dst[k:], src[rb:rf])
	} else if lb < lf {
		copy(dst[k:], src[lb:lf])
	}

	m.node.TryComplete(w)
}
