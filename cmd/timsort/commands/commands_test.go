package commands

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	chdir(t, dir)

	root, a := newRootCommand()
	defer a.teardown()
	var out bytes.Buffer
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

const people = `bob 3
alice 1
carol 3
dave 2
erin 10
`

func TestSortNumericKey(t *testing.T) {
	out, err := run(t, people, "sort", "-k", "2", "-n", "--granularity", "2", "--parallelism", "2")
	require.NoError(t, err)
	assert.Equal(t, "alice 1\ndave 2\nbob 3\ncarol 3\nerin 10\n", out)
}

func TestSortReverseKeepsInputOrderOfTies(t *testing.T) {
	out, err := run(t, people, "sort", "-k", "2", "-n", "-r")
	require.NoError(t, err)
	assert.Equal(t, "erin 10\nbob 3\ncarol 3\ndave 2\nalice 1\n", out)
}

func TestSortWholeLineToFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.txt")
	outPath := filepath.Join(dir, "out.txt")
	require.NoError(t, os.WriteFile(in, []byte("pear\napple\nfig\n"), 0o600))

	out, err := run(t, "", "sort", "-o", outPath, in)
	require.NoError(t, err)
	assert.Empty(t, out)

	got, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, "apple\nfig\npear\n", string(got))
}

func TestSortReportsOutputFailure(t *testing.T) {
	if _, err := os.Stat("/dev/full"); err != nil {
		t.Skip("/dev/full not available")
	}
	_, err := run(t, people, "sort", "-o", "/dev/full")
	assert.ErrorContains(t, err, "output")
}

func TestMetricsEndpoint(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	chdir(t, dir)

	root, a := newRootCommand()
	defer a.teardown()
	root.SetIn(strings.NewReader(people))
	root.SetOut(io.Discard)
	root.SetArgs([]string{"sort", "-k", "2", "-n", "--granularity", "2", "--parallelism", "2"})
	require.NoError(t, root.Execute())

	srv := httptest.NewServer(a.metricsHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	for _, want := range []string{
		"timsort_forkjoin_submitted_total 1",
		"timsort_forkjoin_parallelism 2",
		`timsort_sorted_elements_total{algorithm="parallel"} 5`,
		"timsort_sort_duration_seconds_count",
	} {
		assert.Contains(t, string(body), want)
	}
}

func TestSortErrors(t *testing.T) {
	_, err := run(t, "", "sort", "-k", "-1")
	assert.Error(t, err)

	_, err = run(t, "", "sort", filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)

	_, err = run(t, "", "--parallelism", "-3", "sort")
	assert.Error(t, err)
}

func TestBench(t *testing.T) {
	out, err := run(t, "", "bench", "--size", "5000", "--rounds", "2", "--granularity", "256")
	require.NoError(t, err)
	// go-pretty upper-cases header and footer cells
	out = strings.ToLower(out)
	for _, want := range []string{"sort.slicestable", "timsort", "parallel", "5,000 elements", "2 rounds"} {
		assert.Contains(t, out, want)
	}
}

func TestMakeRandomIntsIsDeterministic(t *testing.T) {
	a, err := makeRandomInts(10000, 7)
	require.NoError(t, err)
	b, err := makeRandomInts(10000, 7)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	empty, err := makeRandomInts(0, 7)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
