package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate keeps a developer's ~/.timsort.yaml and working directory out of
// the test.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	chdir(t, dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, DefaultParallelism, cfg.Pool.Parallelism)
	assert.Equal(t, DefaultGranularity, cfg.Pool.Granularity)
	assert.Equal(t, DefaultBenchSize, cfg.Bench.Size)
	assert.Equal(t, DefaultBenchRounds, cfg.Bench.Rounds)
	assert.EqualValues(t, DefaultSeed, cfg.Bench.Seed)
	assert.Equal(t, DefaultNamespace, cfg.Metrics.Namespace)
	assert.Empty(t, cfg.Metrics.Addr)
	assert.False(t, cfg.Log.Verbose)
}

func TestLoadFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
pool:
  parallelism: 6
  granularity: 4096
bench:
  rounds: 5
metrics:
  addr: ":9100"
log:
  verbose: true
`), 0o600))

	cfg, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Pool.Parallelism)
	assert.Equal(t, 4096, cfg.Pool.Granularity)
	assert.Equal(t, 5, cfg.Bench.Rounds)
	assert.Equal(t, DefaultBenchSize, cfg.Bench.Size)
	assert.Equal(t, ":9100", cfg.Metrics.Addr)
	assert.True(t, cfg.Log.Verbose)
}

func TestLoadFindsDotFileInWorkingDir(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".timsort.yaml"),
		[]byte("bench:\n  size: 1234\n"), 0o600))

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, 1234, cfg.Bench.Size)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pool:\n  granularity: 100\n"), 0o600))
	t.Setenv("TIMSORT_POOL_GRANULARITY", "2048")

	cfg, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, 2048, cfg.Pool.Granularity)
}

func TestLoadErrors(t *testing.T) {
	dir := isolate(t)

	_, err := Load(New(), filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err, "an explicit path must exist")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("pool: [unclosed"), 0o600))
	_, err = Load(New(), bad)
	assert.Error(t, err)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("bench:\n  rounds: 0\n"), 0o600))
	_, err = Load(New(), invalid)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Bench:   BenchConfig{Size: 10, Rounds: 1},
			Metrics: MetricsConfig{Namespace: "ns"},
		}
	}
	c := valid()
	require.NoError(t, c.Validate())

	for name, mutate := range map[string]func(*Config){
		"negative parallelism": func(c *Config) { c.Pool.Parallelism = -1 },
		"negative granularity": func(c *Config) { c.Pool.Granularity = -1 },
		"negative size":        func(c *Config) { c.Bench.Size = -1 },
		"zero rounds":          func(c *Config) { c.Bench.Rounds = 0 },
		"empty namespace":      func(c *Config) { c.Metrics.Namespace = "" },
	} {
		c := valid()
		mutate(&c)
		assert.ErrorIs(t, c.Validate(), ErrInvalidConfig, name)
	}
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
