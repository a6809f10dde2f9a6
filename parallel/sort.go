// Package parallel implements a stable parallel merge sort on top of the
// forkjoin pool. Ranges are split into quarters that are sorted
// concurrently and merged pairwise through a workspace slice; below the
// granularity threshold each piece is sorted with TimSort.
package parallel

import (
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"golang.org/x/exp/constraints"

	"github.com/king54346/timsort/forkjoin"
	"github.com/king54346/timsort/timsort"
)

// MinArraySortGran is the smallest range worth splitting. Shorter inputs,
// and every piece of the split at or below the granularity, are sorted
// sequentially.
const MinArraySortGran = 1 << 13

var (
	// ErrInvalidRange is returned when from/to do not describe a sub-slice.
	ErrInvalidRange = errors.New("parallel: invalid sort range")

	// ErrNilComparator is returned when no ordering function is given.
	ErrNilComparator = errors.New("parallel: nil comparator")

	// ErrInvalidGranularity is returned for a non-positive WithGranularity.
	ErrInvalidGranularity = errors.New("parallel: granularity must be positive")

	// ErrFallbackType is returned when WithFallback was given a function for
	// a different element type.
	ErrFallbackType = errors.New("parallel: fallback sort has the wrong element type")

	// ErrIllegalState marks a broken internal invariant of a merge task. It
	// surfaces wrapped in a *forkjoin.PanicError.
	ErrIllegalState = errors.New("parallel: illegal merge state")
)

type config struct {
	pool     *forkjoin.ForkJoinPool
	gran     int
	granSet  bool
	fallback interface{}
	logger   *zap.Logger
}

// Option customises a single sort call.
type Option func(*config)

// WithPool runs the sort on pool instead of forkjoin.CommonPool().
func WithPool(pool *forkjoin.ForkJoinPool) Option {
	return func(c *config) {
		c.pool = pool
	}
}

// WithGranularity fixes the size at or below which ranges are sorted and
// merged sequentially, overriding the size-based default.
func WithGranularity(gran int) Option {
	return func(c *config) {
		c.gran = gran
		c.granSet = true
	}
}

// WithFallback replaces the sequential sort used for small ranges. The
// function must be stable for the overall sort to be stable.
func WithFallback[T any](f SequentialFunc[T]) Option {
	return func(c *config) {
		c.fallback = f
	}
}

// WithLogger enables debug logging of sort decisions.
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Sort stably sorts a in ascending order.
func Sort[T constraints.Ordered](a []T, opts ...Option) error {
	return SortRangeFunc(a, 0, len(a), timsort.Compare[T], opts...)
}

// SortFunc stably sorts a with cmp.
func SortFunc[T any](a []T, cmp func(a, b T) int, opts ...Option) error {
	return SortRangeFunc(a, 0, len(a), cmp, opts...)
}

// SortComparable stably sorts a by the elements' CompareTo order.
func SortComparable[T timsort.Comparable[T]](a []T, opts ...Option) error {
	return SortRangeFunc(a, 0, len(a), timsort.CompareComparable[T], opts...)
}

// SortRangeFunc stably sorts a[from:to] with cmp and returns once the range
// is sorted. cmp may be called concurrently from several goroutines and
// must not modify the elements.
//
// If cmp panics the panic is returned as a *forkjoin.PanicError and the
// contents of a[from:to] are unspecified; no task touches a after the call
// returns.
func SortRangeFunc[T any](a []T, from, to int, cmp func(a, b T) int, opts ...Option) error {
	if cmp == nil {
		return ErrNilComparator
	}
	if from < 0 || from > to || to > len(a) {
		return fmt.Errorf("%w: [%d:%d] with length %d", ErrInvalidRange, from, to, len(a))
	}
	cfg := config{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.granSet && cfg.gran <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidGranularity, cfg.gran)
	}
	seq := SequentialFunc[T](timsort.SortRangeFunc[T])
	if cfg.fallback != nil {
		f, ok := cfg.fallback.(SequentialFunc[T])
		if !ok {
			return fmt.Errorf("%w: %T", ErrFallbackType, cfg.fallback)
		}
		seq = f
	}

	n := to - from
	if n < 2 {
		return nil
	}

	p := runtime.GOMAXPROCS(0)
	if cfg.pool != nil {
		p = int(cfg.pool.Parallelism())
	}
	g := cfg.gran
	if !cfg.granSet {
		if n <= MinArraySortGran || p == 1 {
			return sortSequential(a, from, to, cmp, seq)
		}
		g = n / (p << 2)
		if g <= MinArraySortGran {
			g = MinArraySortGran
		}
	}
	if n <= g {
		return sortSequential(a, from, to, cmp, seq)
	}

	pool := cfg.pool
	if pool == nil {
		pool = forkjoin.CommonPool()
	}
	start := time.Now()
	work := make([]T, n)
	err := forkjoin.Invoke(pool, func(grp *forkjoin.Group, w *forkjoin.Worker) {
		root := &sorter[T]{
			a: a, w: work,
			base: from, size: n, wbase: 0,
			gran:  g,
			cmp:   cmp,
			seq:   seq,
			group: grp,
			node:  grp.Root(),
		}
		root.compute(w)
	})
	cfg.logger.Debug("parallel sort",
		zap.Int("size", n),
		zap.Int("granularity", g),
		zap.Int("parallelism", p),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err))
	return err
}

func sortSequential[T any](a []T, from, to int, cmp func(a, b T) int, seq SequentialFunc[T]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &forkjoin.PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	seq(a, from, to, cmp, nil)
	return nil
}
