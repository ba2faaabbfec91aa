package fscache

import (
	"errors"
	"io/fs"
	"sync"
	"time"

	"github.com/gftdcojp/tiered-vmem/internal/alloc"
	"github.com/gftdcojp/tiered-vmem/internal/metrics"
	"github.com/gftdcojp/tiered-vmem/internal/types"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// keyPrefix namespaces file-backed cache keys away from plain
// allocations.
const keyPrefix = "file:"

// Storage is the durable backend contract: read a whole file, write a
// whole file creating parents as needed.
type Storage interface {
	Read(path string) ([]byte, error)
	Write(path string, data []byte) error
	Ping() error
}

// FileCache adapts the allocator to whole-file read/write semantics
// with best-effort write-through.
//
// Durability caveat: a write-through failure is swallowed and the
// cached value stays authoritative, so readers of this process can see
// data that never reached stable storage.
type FileCache struct {
	mu     sync.Mutex
	memory *alloc.Allocator
	store  Storage
	group  singleflight.Group

	paths map[string]string // path -> cache key

	reads       uint64
	writes      uint64
	cacheHits   uint64
	cacheMisses uint64
	storeReads  uint64
	storeWrites uint64
	writeErrors uint64

	logger *zap.Logger
}

func New(a *alloc.Allocator, store Storage, logger *zap.Logger) *FileCache {
	return &FileCache{
		memory: a,
		store:  store,
		paths:  make(map[string]string),
		logger: logger,
	}
}

// ReadFile returns the file's bytes from cache, falling back to the
// durable store on miss. A missing file is a miss, not an error.
// Concurrent misses on the same path are collapsed into one store read.
func (f *FileCache) ReadFile(path string) ([]byte, bool) {
	key := keyPrefix + path

	f.mu.Lock()
	f.reads++
	f.mu.Unlock()

	if data, ok := f.memory.Read(key); ok {
		f.mu.Lock()
		f.cacheHits++
		f.mu.Unlock()
		metrics.FileOps.WithLabelValues("read", "hit").Inc()
		return data, true
	}

	f.mu.Lock()
	f.cacheMisses++
	f.mu.Unlock()
	metrics.FileOps.WithLabelValues("read", "miss").Inc()

	v, err, _ := f.group.Do(path, func() (interface{}, error) {
		start := time.Now()
		data, err := f.store.Read(path)
		metrics.StoreReadLatency.Observe(time.Since(start).Seconds())
		if err != nil {
			return nil, err
		}
		cached := f.memory.MallocBytes(key, data)
		f.mu.Lock()
		if cached {
			f.paths[path] = key
		}
		f.storeReads++
		f.mu.Unlock()
		return data, nil
	})
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			f.logger.Warn("store read failed", zap.String("path", path), zap.Error(err))
		}
		return nil, false
	}
	return v.([]byte), true
}

// WriteFile updates the cache and, when writeThrough is set, persists
// to the durable store. Persistence failures are logged and counted
// but never fail the call.
func (f *FileCache) WriteFile(path string, data []byte, writeThrough bool) bool {
	key := keyPrefix + path

	ok := f.memory.Write(key, data)

	f.mu.Lock()
	f.writes++
	if ok {
		f.paths[path] = key
	} else {
		// A rejected write has already released any prior allocation
		// under this key, so the old entry is gone too.
		delete(f.paths, path)
	}
	f.mu.Unlock()
	if ok {
		metrics.FileOps.WithLabelValues("write", "ok").Inc()
	} else {
		metrics.FileOps.WithLabelValues("write", "rejected").Inc()
	}

	if writeThrough {
		if err := f.store.Write(path, data); err != nil {
			f.mu.Lock()
			f.writeErrors++
			f.mu.Unlock()
			metrics.StoreWriteErrors.Inc()
			f.logger.Warn("write-through failed, cache remains authoritative",
				zap.String("path", path), zap.Error(err))
		} else {
			f.mu.Lock()
			f.storeWrites++
			f.mu.Unlock()
		}
	}

	return ok
}

// Ping probes the durable backend.
func (f *FileCache) Ping() error {
	return f.store.Ping()
}

// Stats returns a snapshot of file cache counters.
func (f *FileCache) Stats() types.FileStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return types.FileStats{
		CachedFiles: len(f.paths),
		Reads:       f.reads,
		Writes:      f.writes,
		CacheHits:   f.cacheHits,
		CacheMisses: f.cacheMisses,
		StoreReads:  f.storeReads,
		StoreWrites: f.storeWrites,
		WriteErrors: f.writeErrors,
	}
}
