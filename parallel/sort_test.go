package parallel

import (
	"math/rand"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/king54346/timsort/forkjoin"
	"github.com/king54346/timsort/timsort"
)

type item struct {
	key int
	seq int
}

func (it item) CompareTo(o item) int {
	return it.key - o.key
}

func byKey(a, b item) int {
	return a.key - b.key
}

func makeItems(n, keys int, seed int64) []item {
	rng := rand.New(rand.NewSource(seed))
	items := make([]item, n)
	for i := range items {
		items[i] = item{key: rng.Intn(keys), seq: i}
	}
	return items
}

func requireStable(t *testing.T, items []item) {
	t.Helper()
	for i := 1; i < len(items); i++ {
		require.LessOrEqual(t, items[i-1].key, items[i].key, "not sorted at %d", i)
		if items[i-1].key == items[i].key {
			require.Less(t, items[i-1].seq, items[i].seq, "equal keys out of input order at %d", i)
		}
	}
}

func newPool(t *testing.T, workers int32) *forkjoin.ForkJoinPool {
	pool := forkjoin.NewForkJoinPool(workers)
	t.Cleanup(pool.Close)
	return pool
}

func TestSortKeepsTagsOfEqualKeys(t *testing.T) {
	type tagged struct {
		key int
		tag string
	}
	in := []tagged{{5, "a"}, {3, "b"}, {3, "c"}, {1, "d"}, {4, "e"}}
	err := SortFunc(in, func(a, b tagged) int { return a.key - b.key },
		WithPool(newPool(t, 2)), WithGranularity(1))
	require.NoError(t, err)
	assert.Equal(t, []tagged{{1, "d"}, {3, "b"}, {3, "c"}, {4, "e"}, {5, "a"}}, in)
}

func TestSortTrivialInputsDoNotTouchPool(t *testing.T) {
	pool := newPool(t, 4)
	var empty []int
	require.NoError(t, Sort(empty, WithPool(pool)))
	one := []int{7}
	require.NoError(t, Sort(one, WithPool(pool), WithGranularity(1)))
	assert.Equal(t, []int{7}, one)

	stats := pool.Stats()
	assert.Zero(t, stats.Submitted)
	assert.Zero(t, stats.Forked)
}

func TestGranularityThreshold(t *testing.T) {
	for _, tc := range []struct {
		n        int
		parallel bool
	}{
		{63, false},
		{64, false},
		{65, true},
	} {
		pool := newPool(t, 4)
		items := makeItems(tc.n, 10, int64(tc.n))
		require.NoError(t, SortFunc(items, byKey, WithPool(pool), WithGranularity(64)))
		requireStable(t, items)

		stats := pool.Stats()
		if tc.parallel {
			assert.EqualValues(t, 1, stats.Submitted, "n=%d", tc.n)
			assert.Positive(t, stats.Forked, "n=%d", tc.n)
		} else {
			assert.Zero(t, stats.Submitted, "n=%d", tc.n)
			assert.Zero(t, stats.Forked, "n=%d", tc.n)
		}
	}
}

func TestSortIsStableAcrossGranularities(t *testing.T) {
	pool := newPool(t, 4)
	for _, n := range []int{100, 1000, 12345, 100000} {
		for _, gran := range []int{1, 7, 64, 1000, n} {
			for _, keys := range []int{1, 5, n} {
				items := makeItems(n, keys, int64(n+gran+keys))
				require.NoError(t, SortFunc(items, byKey, WithPool(pool), WithGranularity(gran)))
				requireStable(t, items)
			}
		}
	}
}

func TestSortIsPermutation(t *testing.T) {
	pool := newPool(t, 3)
	rng := rand.New(rand.NewSource(7))
	ints := make([]int, 50000)
	for i := range ints {
		ints[i] = rng.Intn(1000) - 500
	}
	want := append([]int(nil), ints...)
	sort.Ints(want)

	require.NoError(t, Sort(ints, WithPool(pool), WithGranularity(333)))
	assert.Equal(t, want, ints)

	// sorting sorted input again changes nothing
	require.NoError(t, Sort(ints, WithPool(pool), WithGranularity(333)))
	assert.Equal(t, want, ints)
}

func TestDefaultGranularity(t *testing.T) {
	t.Run("splits large inputs", func(t *testing.T) {
		pool := newPool(t, 4)
		items := makeItems(1<<16, 100, 1)
		require.NoError(t, SortComparable(items, WithPool(pool)))
		requireStable(t, items)
		assert.Positive(t, pool.Stats().Forked)
	})
	t.Run("small inputs stay sequential", func(t *testing.T) {
		pool := newPool(t, 4)
		items := makeItems(MinArraySortGran, 100, 2)
		require.NoError(t, SortComparable(items, WithPool(pool)))
		requireStable(t, items)
		assert.Zero(t, pool.Stats().Submitted)
	})
	t.Run("single worker stays sequential", func(t *testing.T) {
		pool := newPool(t, 1)
		items := makeItems(1<<16, 100, 3)
		require.NoError(t, SortComparable(items, WithPool(pool)))
		requireStable(t, items)
		assert.Zero(t, pool.Stats().Submitted)
	})
}

func TestSortUsesCommonPoolByDefault(t *testing.T) {
	items := makeItems(1<<15, 50, 4)
	require.NoError(t, SortFunc(items, byKey, WithGranularity(512), WithLogger(zap.NewNop())))
	requireStable(t, items)
}

func TestSortRangeOnlyTouchesRange(t *testing.T) {
	pool := newPool(t, 4)
	items := makeItems(10000, 20, 5)
	orig := append([]item(nil), items...)

	require.NoError(t, SortRangeFunc(items, 1000, 9000, byKey, WithPool(pool), WithGranularity(100)))

	assert.Equal(t, orig[:1000], items[:1000])
	assert.Equal(t, orig[9000:], items[9000:])
	requireStable(t, items[1000:9000])
}

func TestSortArgumentErrors(t *testing.T) {
	ints := []int{3, 1, 2}

	err := SortRangeFunc(ints, 0, 3, nil)
	assert.ErrorIs(t, err, ErrNilComparator)

	for _, r := range [][2]int{{-1, 2}, {2, 1}, {0, 4}} {
		err := SortRangeFunc(ints, r[0], r[1], timsort.Compare[int])
		assert.ErrorIs(t, err, ErrInvalidRange, "range %v", r)
	}

	assert.ErrorIs(t, Sort(ints, WithGranularity(0)), ErrInvalidGranularity)
	assert.ErrorIs(t, Sort(ints, WithGranularity(-5)), ErrInvalidGranularity)

	wrong := WithFallback[string](func([]string, int, int, func(a, b string) int, []string) {})
	assert.ErrorIs(t, Sort(ints, wrong), ErrFallbackType)

	// nothing was sorted by the failed calls
	assert.Equal(t, []int{3, 1, 2}, ints)
}

func TestWithFallback(t *testing.T) {
	pool := newPool(t, 4)
	var calls atomic.Int64
	fallback := func(a []item, lo, hi int, cmp func(a, b item) int, work []item) {
		calls.Add(1)
		if work != nil {
			assert.Equal(t, hi-lo, len(work))
		}
		timsort.SortRangeFunc(a, lo, hi, cmp, work)
	}

	items := makeItems(1000, 10, 6)
	require.NoError(t, SortFunc(items, byKey,
		WithPool(pool), WithGranularity(100), WithFallback[item](fallback)))
	requireStable(t, items)
	assert.Greater(t, calls.Load(), int64(1))

	calls.Store(0)
	small := makeItems(50, 10, 7)
	require.NoError(t, SortFunc(small, byKey, WithPool(pool), WithFallback[item](fallback)))
	requireStable(t, small)
	assert.EqualValues(t, 1, calls.Load())
}

func panickyCompare(after int64) func(a, b int) int {
	var n atomic.Int64
	return func(a, b int) int {
		if n.Add(1) == after {
			panic("comparator exploded")
		}
		return timsort.Compare(a, b)
	}
}

func TestComparatorPanicIsReturned(t *testing.T) {
	t.Run("parallel", func(t *testing.T) {
		defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

		pool := forkjoin.NewForkJoinPool(4)
		ints := rand.New(rand.NewSource(8)).Perm(5000)
		err := SortFunc(ints, panickyCompare(3), WithPool(pool), WithGranularity(50))
		pool.Close()

		var pe *forkjoin.PanicError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "comparator exploded", pe.Value)
		assert.EqualValues(t, 1, pool.Stats().Panics)
	})
	t.Run("sequential", func(t *testing.T) {
		ints := rand.New(rand.NewSource(9)).Perm(10)
		err := SortFunc(ints, panickyCompare(3))

		var pe *forkjoin.PanicError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "comparator exploded", pe.Value)
	})
}

func TestMergerKeepsLeftRunFirstOnTies(t *testing.T) {
	pool := newPool(t, 4)
	for _, tc := range []struct {
		name        string
		left, right int
	}{
		{"left larger", 3000, 700},
		{"right larger", 700, 3000},
		{"equal", 1500, 1500},
	} {
		t.Run(tc.name, func(t *testing.T) {
			src := makeItems(tc.left+tc.right, 8, int64(tc.left))
			timsort.SortFunc(src[:tc.left], byKey)
			timsort.SortFunc(src[tc.left:], byKey)
			for i := range src {
				src[i].seq = i
			}
			dst := make([]item, len(src))

			err := forkjoin.Invoke(pool, func(g *forkjoin.Group, w *forkjoin.Worker) {
				newMerger(g.Root(), g, src, dst, 0, tc.left, tc.left, tc.right, 0, 1, byKey).compute(w)
			})
			require.NoError(t, err)
			requireStable(t, dst)
		})
	}
}

func TestMergerRejectsBrokenState(t *testing.T) {
	m := newMerger[int](nil, nil, nil, []int{}, 0, 0, 0, 0, 0, 1, timsort.Compare[int])
	assert.PanicsWithValue(t, ErrIllegalState, func() { m.compute(nil) })

	m = newMerger[int](nil, nil, []int{1}, []int{0}, -1, 1, 0, 0, 0, 1, timsort.Compare[int])
	assert.PanicsWithValue(t, ErrIllegalState, func() { m.compute(nil) })
}

func BenchmarkParallelSort(b *testing.B) {
	pool := forkjoin.NewForkJoinPool(0)
	defer pool.Close()
	src := rand.New(rand.NewSource(42)).Perm(1 << 20)
	work := make([]int, len(src))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		copy(work, src)
		b.StartTimer()
		if err := Sort(work, WithPool(pool)); err != nil {
			b.Fatal(err)
		}
	}
}
