package vmem

import (
	"fmt"

	"github.com/gftdcojp/tiered-vmem/internal/alloc"
	"github.com/gftdcojp/tiered-vmem/internal/cache"
	"github.com/gftdcojp/tiered-vmem/internal/config"
	"github.com/gftdcojp/tiered-vmem/internal/fscache"
	"github.com/gftdcojp/tiered-vmem/internal/translate"
	"github.com/gftdcojp/tiered-vmem/internal/types"
	"go.uber.org/zap"
)

// System wires the tiered cache, budgeted allocator, file cache and
// handle translator into one in-process virtual memory emulator.
type System struct {
	cfg *config.Config

	cache      *cache.TieredCache
	memory     *alloc.Allocator
	files      *fscache.FileCache
	translator *translate.Translator

	bolt *fscache.BoltStorage // nil for the disk backend

	logger *zap.Logger
}

func New(cfg *config.Config, logger *zap.Logger) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := cache.New(cfg.Cache, logger)
	a := alloc.New(cfg.Memory, c, nil, logger)

	var (
		store fscache.Storage
		bolt  *fscache.BoltStorage
	)
	switch cfg.FileCache.Backend {
	case "disk":
		store = fscache.DiskStorage{}
	case "bolt":
		var err error
		bolt, err = fscache.NewBoltStorage(cfg.FileCache.BoltPath, cfg.FileCache.OpenTimeout.Duration(), logger)
		if err != nil {
			return nil, fmt.Errorf("opening bolt backend: %w", err)
		}
		store = bolt
	default:
		return nil, fmt.Errorf("unknown file cache backend %q", cfg.FileCache.Backend)
	}

	f := fscache.New(a, store, logger)
	tr := translate.New(cfg.Translator, cfg.FileCache.WriteThrough, a, f, logger)

	logger.Info("virtual memory system initialized",
		zap.Int64("hot_max_bytes", int64(cfg.Cache.HotMaxBytes)),
		zap.Int64("warm_max_bytes", int64(cfg.Cache.WarmMaxBytes)),
		zap.Int64("compressed_max_bytes", int64(cfg.Cache.CompressedMaxBytes)),
		zap.Int64("memory_budget", int64(cfg.Memory.Budget)),
		zap.String("file_backend", cfg.FileCache.Backend))

	return &System{
		cfg:        cfg,
		cache:      c,
		memory:     a,
		files:      f,
		translator: tr,
		bolt:       bolt,
		logger:     logger,
	}, nil
}

// Malloc allocates a zero-filled buffer and returns a synthetic
// pointer, or 0 when the request cannot be satisfied.
func (s *System) Malloc(size int64) uint64 {
	return s.translator.Malloc(size)
}

// Free releases a synthetic pointer.
func (s *System) Free(ptr uint64) bool {
	return s.translator.Free(ptr)
}

// Read returns size bytes at offset from the pointed-to buffer.
func (s *System) Read(ptr uint64, size, offset int64) ([]byte, bool) {
	return s.translator.Read(ptr, size, offset)
}

// Write splices data into the pointed-to buffer at offset.
func (s *System) Write(ptr uint64, data []byte, offset int64) bool {
	return s.translator.Write(ptr, data, offset)
}

// Open returns a synthetic file descriptor for the path.
func (s *System) Open(path, mode string) uint64 {
	return s.translator.Open(path, mode)
}

// ReadFile returns up to size bytes of the descriptor's file.
func (s *System) ReadFile(fd uint64, size int64) ([]byte, bool) {
	return s.translator.ReadFile(fd, size)
}

// WriteFile replaces the descriptor's file contents.
func (s *System) WriteFile(fd uint64, data []byte) bool {
	return s.translator.WriteFile(fd, data)
}

// CloseFile releases a synthetic file descriptor.
func (s *System) CloseFile(fd uint64) bool {
	return s.translator.Close(fd)
}

// Allocator exposes the key-level allocation API for callers that
// manage their own keys instead of synthetic handles.
func (s *System) Allocator() *alloc.Allocator {
	return s.memory
}

// Files exposes the path-level file cache.
func (s *System) Files() *fscache.FileCache {
	return s.files
}

// Ping probes the durable file backend.
func (s *System) Ping() error {
	return s.files.Ping()
}

// Stats aggregates snapshots from every component.
func (s *System) Stats() types.Stats {
	return types.Stats{
		Cache:      s.cache.Stats(),
		Alloc:      s.memory.Stats(),
		Files:      s.files.Stats(),
		Translator: s.translator.Stats(),
	}
}

// Close releases backend resources. Safe to call once at shutdown.
func (s *System) Close() error {
	if s.bolt != nil {
		return s.bolt.Close()
	}
	return nil
}
