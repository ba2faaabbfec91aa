package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/gftdcojp/tiered-vmem/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cache metrics
	TierHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vmem_tier_hits_total",
		Help: "Cache hits by tier",
	}, []string{"tier"})

	TierMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vmem_tier_misses_total",
		Help: "Cache misses by tier",
	}, []string{"tier"})

	TierBlockCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vmem_tier_block_count",
		Help: "Number of blocks resident in each tier",
	}, []string{"tier"})

	TierBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vmem_tier_bytes",
		Help: "Effective occupied bytes in each tier",
	}, []string{"tier"})

	PromotionOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vmem_promotion_ops_total",
		Help: "Number of block promotions",
	}, []string{"from_tier", "to_tier"})

	DemotionOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vmem_demotion_ops_total",
		Help: "Number of block demotions",
	}, []string{"from_tier", "to_tier"})

	Evictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vmem_evictions_total",
		Help: "Blocks evicted from the terminal tier",
	})

	Compressions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vmem_compressions_total",
		Help: "Blocks compressed on demotion to the compressed tier",
	})

	CompressionBytesSaved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vmem_compression_bytes_saved_total",
		Help: "Bytes saved by compression",
	})

	// Allocator metrics
	AllocatedBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vmem_allocated_bytes",
		Help: "Bytes currently tracked by the budgeted allocator",
	})

	AllocOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vmem_alloc_ops_total",
		Help: "Allocator operations by type and outcome",
	}, []string{"op", "outcome"})

	// File cache metrics
	FileOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vmem_file_ops_total",
		Help: "File cache operations by type and outcome",
	}, []string{"op", "outcome"})

	StoreWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vmem_store_write_errors_total",
		Help: "Durable store write-through failures (swallowed)",
	})

	StoreReadLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vmem_store_read_latency_seconds",
		Help:    "Durable store read latency on cache miss",
		Buckets: []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})

	// Translator metrics
	TranslateOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vmem_translate_ops_total",
		Help: "Handle translation operations by type and outcome",
	}, []string{"op", "outcome"})

	ActiveHandles = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vmem_active_handles",
		Help: "Active synthetic handles by kind",
	}, []string{"kind"})
)

// RunServer starts the Prometheus metrics HTTP server.
func RunServer(ctx context.Context, cfg config.MetricsConfig) error {
	mux := http.NewServeMux()
	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}
	mux.Handle(path, promhttp.Handler())

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
