package alloc

import (
	"sync"

	"github.com/gftdcojp/tiered-vmem/internal/cache"
	"github.com/gftdcojp/tiered-vmem/internal/config"
	"github.com/gftdcojp/tiered-vmem/internal/metrics"
	"github.com/gftdcojp/tiered-vmem/internal/types"
	"github.com/gftdcojp/tiered-vmem/pkg/codec"
	"go.uber.org/zap"
)

// Allocator enforces a global byte budget over the tiered cache. It is
// the only component that creates or destroys cache entries.
//
// Lock order is fixed: the allocator mutex is acquired first, the
// cache mutex second, never the reverse.
type Allocator struct {
	mu          sync.Mutex
	cache       *cache.TieredCache
	codec       codec.Codec
	budget      int64
	defaultSize int64

	allocations    map[string]int64
	totalAllocated int64

	totalAllocs   uint64
	totalFrees    uint64
	budgetRejects uint64

	logger *zap.Logger
}

func New(cfg config.MemoryConfig, c *cache.TieredCache, cdc codec.Codec, logger *zap.Logger) *Allocator {
	if cdc == nil {
		cdc = codec.Gob{}
	}
	return &Allocator{
		cache:       c,
		codec:       cdc,
		budget:      int64(cfg.Budget),
		defaultSize: int64(cfg.DefaultSizeEstimate),
		allocations: make(map[string]int64),
		logger:      logger,
	}
}

// MallocBytes reserves budget for a byte payload and inserts it into
// the cache as a hot block.
func (a *Allocator) MallocBytes(key string, payload []byte) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mallocLocked(key, payload, int64(len(payload)))
}

// Malloc serializes an arbitrary value through the codec. An encoding
// failure never aborts the call: the allocation falls back to the
// configured default size estimate with an empty payload.
func (a *Allocator) Malloc(key string, value interface{}) bool {
	payload, err := a.codec.Encode(value)
	size := int64(len(payload))
	if err != nil {
		a.logger.Warn("encode failed, using default size estimate",
			zap.String("key", key), zap.Error(err))
		payload = nil
		size = a.defaultSize
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mallocLocked(key, payload, size)
}

// Free releases the allocation and purges the key from every tier.
func (a *Allocator) Free(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.freeLocked(key)
}

// Read returns the cached payload for the key.
func (a *Allocator) Read(key string) ([]byte, bool) {
	return a.cache.Get(key)
}

// ReadValue reads and decodes the payload into out.
func (a *Allocator) ReadValue(key string, out interface{}) bool {
	data, ok := a.cache.Get(key)
	if !ok {
		return false
	}
	if err := a.codec.Decode(data, out); err != nil {
		a.logger.Warn("decode failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// Write replaces the payload under key, implemented as free followed
// by malloc. The block's access history and tier placement reset to a
// fresh hot block on every write; simplicity is traded for
// access-pattern fidelity here.
func (a *Allocator) Write(key string, payload []byte) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.freeLocked(key)
	return a.mallocLocked(key, payload, int64(len(payload)))
}

// Stats returns a snapshot of budget usage and counters.
func (a *Allocator) Stats() types.AllocStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return types.AllocStats{
		BudgetBytes:    a.budget,
		AllocatedBytes: a.totalAllocated,
		Allocations:    len(a.allocations),
		TotalAllocs:    a.totalAllocs,
		TotalFrees:     a.totalFrees,
		BudgetRejects:  a.budgetRejects,
	}
}

func (a *Allocator) mallocLocked(key string, payload []byte, size int64) bool {
	// Re-allocating a live key replaces its reservation; without the
	// subtraction the old size would leak from the budget forever.
	effective := a.totalAllocated
	if prior, ok := a.allocations[key]; ok {
		effective -= prior
	}

	if effective+size > a.budget {
		a.budgetRejects++
		metrics.AllocOps.WithLabelValues("malloc", "rejected").Inc()
		a.logger.Debug("allocation rejected by budget",
			zap.String("key", key),
			zap.Int64("size", size),
			zap.Int64("allocated", a.totalAllocated),
			zap.Int64("budget", a.budget),
		)
		return false
	}

	if err := a.cache.Put(key, payload, size); err != nil {
		// Oversized for the hot tier; no state was changed.
		metrics.AllocOps.WithLabelValues("malloc", "rejected").Inc()
		a.logger.Debug("allocation rejected by cache",
			zap.String("key", key), zap.Int64("size", size), zap.Error(err))
		return false
	}

	a.allocations[key] = size
	a.totalAllocated = effective + size
	a.totalAllocs++
	metrics.AllocOps.WithLabelValues("malloc", "ok").Inc()
	metrics.AllocatedBytes.Set(float64(a.totalAllocated))
	return true
}

func (a *Allocator) freeLocked(key string) bool {
	size, ok := a.allocations[key]
	if !ok {
		metrics.AllocOps.WithLabelValues("free", "unknown").Inc()
		return false
	}
	a.totalAllocated -= size
	delete(a.allocations, key)
	a.cache.Remove(key)
	a.totalFrees++
	metrics.AllocOps.WithLabelValues("free", "ok").Inc()
	metrics.AllocatedBytes.Set(float64(a.totalAllocated))
	return true
}
