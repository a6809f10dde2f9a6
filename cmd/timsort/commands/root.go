// Package commands implements the timsort CLI subcommands.
package commands

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/king54346/timsort/forkjoin"
	"github.com/king54346/timsort/internal/config"
	"github.com/king54346/timsort/metrics"
	"github.com/king54346/timsort/parallel"
)

// app holds what every subcommand shares once the root pre-run finished.
type app struct {
	v          *viper.Viper
	configPath string

	cfg      *config.Config
	logger   *zap.Logger
	pool     *forkjoin.ForkJoinPool
	registry *prometheus.Registry
	sorts    *metrics.SortMetrics
	server   *http.Server
}

// Execute runs the CLI. The pool, logger and metrics server are released
// even when the subcommand fails.
func Execute() error {
	root, a := newRootCommand()
	defer a.teardown()
	return root.Execute()
}

func newRootCommand() (*cobra.Command, *app) {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:   "timsort",
		Short: "Stable sequential and parallel sorting",
		Long: `timsort sorts text lines stably and benchmarks the sequential
TimSort against the fork/join parallel merge sort.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default .timsort.yaml in . or $HOME)")
	flags.BoolP("verbose", "v", false, "debug logging")
	flags.Int("parallelism", config.DefaultParallelism, "fork/join workers (0 = GOMAXPROCS)")
	flags.Int("granularity", config.DefaultGranularity, "sequential threshold (0 = size based)")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	mustBind(a.v, "log.verbose", flags.Lookup("verbose"))
	mustBind(a.v, "pool.parallelism", flags.Lookup("parallelism"))
	mustBind(a.v, "pool.granularity", flags.Lookup("granularity"))
	mustBind(a.v, "metrics.addr", flags.Lookup("metrics-addr"))

	root.AddCommand(newSortCommand(a))
	root.AddCommand(newBenchCommand(a))
	return root, a
}

func (a *app) setup() error {
	cfg, err := config.Load(a.v, a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	zcfg := zap.NewProductionConfig()
	if cfg.Log.Verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	a.logger, err = zcfg.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	a.pool = forkjoin.NewForkJoinPool(int32(cfg.Pool.Parallelism), forkjoin.WithLogger(a.logger))

	a.registry = prometheus.NewRegistry()
	if err := a.registry.Register(metrics.NewPoolCollector(cfg.Metrics.Namespace, a.pool)); err != nil {
		return fmt.Errorf("register pool metrics: %w", err)
	}
	a.sorts, err = metrics.NewSortMetrics(cfg.Metrics.Namespace, a.registry)
	if err != nil {
		return fmt.Errorf("register sort metrics: %w", err)
	}
	if cfg.Metrics.Addr != "" {
		a.serveMetrics(cfg.Metrics.Addr)
	}
	return nil
}

func (a *app) serveMetrics(addr string) {
	a.server = &http.Server{Addr: addr, Handler: a.metricsHandler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	a.logger.Info("serving metrics", zap.String("addr", addr))
}

func (a *app) metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	return mux
}

func (a *app) teardown() {
	if a.server != nil {
		_ = a.server.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// sortOptions are the parallel options every subcommand sorts with.
func (a *app) sortOptions() []parallel.Option {
	opts := []parallel.Option{
		parallel.WithPool(a.pool),
		parallel.WithLogger(a.logger),
	}
	if a.cfg.Pool.Granularity > 0 {
		opts = append(opts, parallel.WithGranularity(a.cfg.Pool.Granularity))
	}
	return opts
}

func mustBind(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("bind flag %q: %v", key, err))
	}
}
