// Package timsort implements a stable, adaptive merge sort (TimSort) over
// generic slices. It is the sequential base case of the parallel sorter in
// package parallel, so every entry point can sort a sub-range with a
// caller-supplied workspace.
package timsort

import (
	"errors"

	"golang.org/x/exp/constraints"
)

const (
	// 小于minMerge的序列直接使用二分插入排序
	minMerge = 32

	// 初始的gallop阈值, mergeLo/mergeHi 会根据数据自适应调整
	minGallopInit = 7

	// tmp数组的初始长度, 需要时再扩容
	initialTmpStorageLength = 256
)

// ErrContractViolation is the panic value raised when the comparator is not
// a consistent total order and a merge runs out of elements it was promised.
var ErrContractViolation = errors.New("timsort: comparison method violates its general contract")

// Comparable is implemented by element types that know how to order
// themselves. CompareTo returns a negative number, zero or a positive number
// when the receiver is less than, equal to or greater than o.
type Comparable[T any] interface {
	CompareTo(o T) int
}

type stack struct {
	runBase   []int //runBase[i] + runLen[i] == runBase[i + 1] 每个run首元素的下标
	runLen    []int //每个run的长度
	stackSize int   //栈的大小
}

type timSort[T any] struct {
	ts        stack
	a         []T
	cmp       func(a, b T) int
	tmp       []T
	minGallop int
}

func stackLen(n int) int {
	switch {
	case n < 120:
		return 5
	case n < 1542:
		return 10
	case n < 119151:
		return 24
	default:
		return 49
	}
}

func newTimSort[T any](a []T, cmp func(a, b T) int, work []T, n int) *timSort[T] {
	tlen := initialTmpStorageLength
	if n < 2*initialTmpStorageLength {
		tlen = n >> 1
	}
	// work只在足够大时直接复用; 截断cap, 扩容时绝不会写到work之外
	var tmp []T
	if len(work) < tlen {
		tmp = make([]T, tlen)
	} else {
		tmp = work[:len(work):len(work)]
	}
	sl := stackLen(n)
	return &timSort[T]{
		ts:        stack{runBase: make([]int, sl), runLen: make([]int, sl)},
		a:         a,
		cmp:       cmp,
		tmp:       tmp,
		minGallop: minGallopInit,
	}
}

// Sort sorts a in ascending order. The sort is stable.
func Sort[T constraints.Ordered](a []T) {
	SortRangeFunc(a, 0, len(a), Compare[T], nil)
}

// SortRange sorts a[lo:hi] in ascending order.
func SortRange[T constraints.Ordered](a []T, lo, hi int) {
	if lo < hi {
		SortRangeFunc(a, lo, hi, Compare[T], nil)
	}
}

// SortFunc sorts a using cmp, keeping equal elements in their original order.
func SortFunc[T any](a []T, cmp func(a, b T) int) {
	SortRangeFunc(a, 0, len(a), cmp, nil)
}

// SortComparable sorts a by the elements' own CompareTo order.
func SortComparable[T Comparable[T]](a []T) {
	SortRangeFunc(a, 0, len(a), CompareComparable[T], nil)
}

// SortRangeFunc stably sorts a[lo:hi] with cmp, using work as temporary
// storage when it is large enough. At most (hi-lo)/2 elements of work are
// used; a nil or short work slice makes the sort allocate its own.
//
// Elements of work outside work[:len(work)] are never touched.
func SortRangeFunc[T any](a []T, lo, hi int, cmp func(a, b T) int, work []T) {
	if cmp == nil || lo < 0 || lo > hi || hi > len(a) {
		panic("assert cmp != nil && lo >= 0 && lo <= hi && hi <= len(a)")
	}

	nRemaining := hi - lo
	if nRemaining < 2 {
		return
	}
	if nRemaining < minMerge {
		initRunLen := countRunAndMakeAscending(a, lo, hi, cmp)
		binarySort(a, lo, hi, lo+initRunLen, cmp)
		return
	}
	/**
	1. 把待排序数组分成一个个的run（即单调上升的数组）， 并且run不能太短， 如果run的长度小于minRun这个阀值， 则使用插入排序进行填充
	2. 将上面的一个个run入栈， 当栈顶的run的长度不满足下列约束条件中的任意一个时，则使用归并排序将其中最短的2个run合并成一个新的run，最终栈=1的时候，排序完成。
	　　① runLen[n-2] > runLen[n-1] + runLen[n]
	　　② runLen[n-1] > runLen[n]
	*/
	c := newTimSort(a, cmp, work, nRemaining)
	minRun := minRunLength(nRemaining)
	for {
		runLen := countRunAndMakeAscending(a, lo, hi, cmp)
		//如果run的长度小于minRun这个阀值， 则使用插入排序进行填充,填充到min(minRun, nRemaining)
		if runLen < minRun {
			force := minRun
			if nRemaining <= minRun {
				force = nRemaining
			}
			binarySort(a, lo, lo+force, lo+runLen, cmp)
			runLen = force
		}
		c.pushRun(lo, runLen)
		c.mergeCollapse()

		lo += runLen
		nRemaining -= runLen
		if nRemaining == 0 {
			break
		}
	}
	if lo != hi {
		panic("assert lo == hi")
	}

	c.mergeForceCollapse()
	if c.ts.stackSize != 1 {
		panic("assert stackSize == 1")
	}
}

// IsSorted reports whether a is sorted in ascending order.
func IsSorted[T constraints.Ordered](a []T) bool {
	return IsSortedFunc(a, Compare[T])
}

// IsSortedFunc reports whether a is sorted according to cmp.
func IsSortedFunc[T any](a []T, cmp func(a, b T) int) bool {
	for i := len(a) - 1; i > 0; i-- {
		if cmp(a[i], a[i-1]) < 0 {
			return false
		}
	}
	return true
}

func (c *timSort[T]) pushRun(runBase int, runLen int) {
	c.ts.runBase[c.ts.stackSize] = runBase
	c.ts.runLen[c.ts.stackSize] = runLen
	c.ts.stackSize++
}

/**
检查等待合并的run的堆栈，并合并相邻的run，直到满足:
1 runLen[n-2] > runLen[n-1] + runLen[n]
2 runLen[n-1] > runLen[n]
同时检查更深一层的run, 否则栈的不变式可能在合并后被破坏
*/
func (c *timSort[T]) mergeCollapse() {
	runLen := c.ts.runLen
	for c.ts.stackSize > 1 {
		n := c.ts.stackSize - 2
		if n > 0 && runLen[n-1] <= runLen[n]+runLen[n+1] ||
			n > 1 && runLen[n-2] <= runLen[n]+runLen[n-1] {
			if runLen[n-1] < runLen[n+1] {
				n--
			}
		} else if runLen[n] > runLen[n+1] {
			break
		}
		c.mergeAt(n)
	}
}

// 最后一次合并所有
func (c *timSort[T]) mergeForceCollapse() {
	for c.ts.stackSize > 1 {
		n := c.ts.stackSize - 2
		if n > 0 && c.ts.runLen[n-1] < c.ts.runLen[n+1] {
			n--
		}
		c.mergeAt(n)
	}
}

// ensureCapacity 返回至少minCapacity长度的tmp, 扩容时按2的幂增长且不超过len(a)/2
func (c *timSort[T]) ensureCapacity(minCapacity int) []T {
	if len(c.tmp) < minCapacity {
		newSize := 1
		for newSize < minCapacity {
			newSize <<= 1
		}
		if newSize > len(c.a)>>1 {
			newSize = max(len(c.a)>>1, minCapacity)
		}
		c.tmp = make([]T, newSize)
	}
	return c.tmp
}

/**
返回指定长度的数组的最小可接受运行长度。
如果n < minMerge，返回n。
如果n是2的精确幂，返回minMerge/2。
否则返回一个int k, minMerge/2 <= k <= minMerge，这样n/k接近但严格小于2的精确幂。
*/
func minRunLength(n int) int {
	r := 0 // Becomes 1 if any 1 bits are shifted off
	for n >= minMerge {
		r |= n & 1
		n >>= 1
	}
	return n + r
}

/**
使用二分插入排序对指定数组的指定部分进行排序。
假设[low, start)已经排好序。
*/
func binarySort[T any](a []T, low int, high int, start int, cmp func(a, b T) int) {
	if low > start || start > high {
		panic("assert low <= start && start <= high")
	}
	if start == low {
		start++
	}
	for ; start < high; start++ {
		left := low
		right := start
		pivot := a[start]
		for left < right {
			mid := int(uint(left+right) >> 1)
			// pivot >= all in [low, left).
			// pivot <  all in [right, start)
			if cmp(pivot, a[mid]) < 0 {
				right = mid
			} else {
				left = mid + 1
			}
		}
		n := start - left //要移动的元素的数量
		switch n {
		case 2:
			a[left+2] = a[left+1]
			a[left+1] = a[left]
		case 1:
			a[left+1] = a[left]
		default:
			copy(a[left+1:], a[left:left+n]) //向后移动n
		}
		a[left] = pivot
	}
}

/**
返回从low开始的run的长度, 严格递减的run会被原地反转
(严格递减保证反转后依然稳定)
*/
func countRunAndMakeAscending[T any](a []T, low int, high int, cmp func(a, b T) int) int {
	runHi := low + 1
	if runHi == high {
		return 1
	}

	if cmp(a[runHi], a[low]) < 0 { // Descending
		runHi++
		for runHi < high && cmp(a[runHi], a[runHi-1]) < 0 {
			runHi++
		}
		reverseRange(a, low, runHi)
	} else { // Ascending
		runHi++
		for runHi < high && cmp(a[runHi], a[runHi-1]) >= 0 {
			runHi++
		}
	}

	return runHi - low
}

func reverseRange[T any](a []T, low int, high int) {
	high--
	for low < high {
		a[low], a[high] = a[high], a[low]
		low++
		high--
	}
}

// Compare is the ascending order used by Sort, exported so callers can hand
// the same ordering to other sorts. NaNs order before every other value.
func Compare[T constraints.Ordered](x, y T) int {
	xNaN := x != x
	yNaN := y != y
	switch {
	case xNaN && yNaN:
		return 0
	case xNaN:
		return -1
	case yNaN:
		return 1
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

// CompareComparable adapts a Comparable element type to a comparator.
func CompareComparable[T Comparable[T]](x, y T) int {
	return x.CompareTo(y)
}
