package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gftdcojp/tiered-vmem/internal/config"
	"github.com/gftdcojp/tiered-vmem/internal/metrics"
	"github.com/gftdcojp/tiered-vmem/internal/vmem"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "show version")
	workers := flag.Int("workers", 4, "number of synthetic workload workers (0 disables the workload)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("tiered-vmem %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Observability.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, *workers, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("fatal error", zap.Error(err))
	}
}

func run(cfg *config.Config, workers int, logger *zap.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sys, err := vmem.New(cfg, logger.Named("vmem"))
	if err != nil {
		return fmt.Errorf("initializing virtual memory system: %w", err)
	}
	defer sys.Close()

	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < workers; i++ {
		worker := i
		g.Go(func() error {
			return runWorkload(gctx, sys, worker, logger.Named("workload").With(zap.Int("worker", worker)))
		})
	}

	// Periodic stats report
	g.Go(func() error {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				logStats(sys, logger)
			}
		}
	})

	if cfg.Observability.Metrics.Enabled {
		g.Go(func() error { return metrics.RunServer(gctx, cfg.Observability.Metrics) })
	}

	if cfg.Observability.Health.Enabled {
		healthChecker := metrics.NewHealthChecker(sys.Files())
		g.Go(func() error {
			return metrics.RunHealthServer(gctx, cfg.Observability.Health, healthChecker)
		})
	}

	logger.Info("tiered-vmem started",
		zap.String("version", version),
		zap.Int("workers", workers),
		zap.String("file_backend", cfg.FileCache.Backend),
	)

	err = g.Wait()

	logStats(sys, logger)
	logger.Info("shutting down")

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// runWorkload drives a synthetic allocate/write/read/free mix with
// occasional file traffic. It exists to exercise tier movement and to
// give the metrics endpoints something to report.
func runWorkload(ctx context.Context, sys *vmem.System, worker int, logger *zap.Logger) error {
	rng := rand.New(rand.NewSource(int64(worker) + time.Now().UnixNano()))
	dir := filepath.Join(os.TempDir(), "tiered-vmem", fmt.Sprintf("worker-%d", worker))

	var live []uint64
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			for _, ptr := range live {
				sys.Free(ptr)
			}
			return ctx.Err()
		case <-ticker.C:
		}

		switch rng.Intn(10) {
		case 0, 1, 2: // allocate
			size := int64(64 + rng.Intn(4096))
			if ptr := sys.Malloc(size); ptr != 0 {
				live = append(live, ptr)
			}
		case 3, 4, 5: // touch an existing buffer
			if len(live) == 0 {
				continue
			}
			ptr := live[rng.Intn(len(live))]
			data := []byte(fmt.Sprintf("w%d-%d", worker, rng.Int63()))
			if !sys.Write(ptr, data, int64(rng.Intn(32))) {
				logger.Debug("write rejected", zap.Uint64("ptr", ptr))
			}
			sys.Read(ptr, int64(len(data)), 0)
		case 6, 7: // release
			if len(live) == 0 {
				continue
			}
			i := rng.Intn(len(live))
			sys.Free(live[i])
			live = append(live[:i], live[i+1:]...)
		default: // file traffic
			path := filepath.Join(dir, fmt.Sprintf("blob-%d.bin", rng.Intn(16)))
			fd := sys.Open(path, "w")
			sys.WriteFile(fd, []byte(fmt.Sprintf("payload-%d", rng.Int63())))
			sys.ReadFile(fd, 64)
			sys.CloseFile(fd)
		}
	}
}

func logStats(sys *vmem.System, logger *zap.Logger) {
	stats := sys.Stats()
	logger.Info("stats",
		zap.Float64("cache_hit_rate", stats.Cache.HitRate()),
		zap.Uint64("promotions", stats.Cache.Promotions),
		zap.Uint64("demotions", stats.Cache.Demotions),
		zap.Uint64("evictions", stats.Cache.Evictions),
		zap.Int64("bytes_saved", stats.Cache.BytesSaved),
		zap.Int64("allocated_bytes", stats.Alloc.AllocatedBytes),
		zap.Uint64("budget_rejects", stats.Alloc.BudgetRejects),
		zap.Int("cached_files", stats.Files.CachedFiles),
		zap.Uint64("write_errors", stats.Files.WriteErrors),
		zap.Int("active_pointers", stats.Translator.ActivePointers),
		zap.Int("active_descriptors", stats.Translator.ActiveDescriptors),
	)
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level.SetLevel(zap.DebugLevel)
	case "info":
		zapCfg.Level.SetLevel(zap.InfoLevel)
	case "warn":
		zapCfg.Level.SetLevel(zap.WarnLevel)
	case "error":
		zapCfg.Level.SetLevel(zap.ErrorLevel)
	}

	return zapCfg.Build()
}
