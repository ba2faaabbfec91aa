package vmem

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gftdcojp/tiered-vmem/internal/config"
	"go.uber.org/zap"
)

func newTestSystem(t *testing.T, mutate func(*config.Config)) *System {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Cache.HotMaxBytes = 1024 * 1024
	cfg.Cache.WarmMaxBytes = 1024 * 1024
	cfg.Cache.CompressedMaxBytes = 1024 * 1024
	cfg.Memory.Budget = 4 * 1024 * 1024
	if mutate != nil {
		mutate(cfg)
	}
	s, err := New(cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSystemPointerLifecycle(t *testing.T) {
	s := newTestSystem(t, nil)

	ptr := s.Malloc(16)
	if ptr == 0 {
		t.Fatal("malloc failed")
	}
	if !s.Write(ptr, []byte("payload"), 4) {
		t.Fatal("write failed")
	}
	got, ok := s.Read(ptr, 7, 4)
	if !ok || !bytes.Equal(got, []byte("payload")) {
		t.Fatalf("read = %q ok=%v", got, ok)
	}
	if !s.Free(ptr) {
		t.Fatal("free failed")
	}
	if _, ok := s.Read(ptr, 1, 0); ok {
		t.Error("read after free must fail")
	}
}

func TestSystemFileLifecycle(t *testing.T) {
	s := newTestSystem(t, nil)
	path := filepath.Join(t.TempDir(), "report.txt")

	fd := s.Open(path, "w")
	if !s.WriteFile(fd, []byte("contents")) {
		t.Fatal("write failed")
	}
	got, ok := s.ReadFile(fd, 100)
	if !ok || !bytes.Equal(got, []byte("contents")) {
		t.Fatalf("read = %q ok=%v", got, ok)
	}
	if !s.CloseFile(fd) {
		t.Fatal("close failed")
	}
}

func TestSystemBoltBackend(t *testing.T) {
	dir := t.TempDir()
	s := newTestSystem(t, func(cfg *config.Config) {
		cfg.FileCache.Backend = "bolt"
		cfg.FileCache.BoltPath = filepath.Join(dir, "files.db")
	})

	fd := s.Open("/virtual/x.bin", "w")
	if !s.WriteFile(fd, []byte("bolt data")) {
		t.Fatal("write failed")
	}
	if err := s.Ping(); err != nil {
		t.Errorf("ping failed: %v", err)
	}
}

func TestSystemStatsAggregate(t *testing.T) {
	s := newTestSystem(t, nil)

	ptr := s.Malloc(32)
	s.Write(ptr, []byte("abc"), 0)
	s.Read(ptr, 3, 0)

	fd := s.Open(filepath.Join(t.TempDir(), "f"), "w")
	s.WriteFile(fd, []byte("file"))

	stats := s.Stats()
	if stats.Translator.MallocCalls != 1 || stats.Translator.WriteCalls != 1 {
		t.Errorf("translator counters = %+v", stats.Translator)
	}
	if stats.Alloc.AllocatedBytes <= 0 {
		t.Errorf("allocated bytes = %d, want > 0", stats.Alloc.AllocatedBytes)
	}
	if stats.Files.Writes != 1 {
		t.Errorf("file writes = %d, want 1", stats.Files.Writes)
	}
	if stats.Cache.Tiers[0].BlockCount == 0 {
		t.Error("hot tier should hold blocks")
	}
}

func TestSystemRejectsBadConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Memory.Budget = 0
	if _, err := New(cfg, zap.NewNop()); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestSystemConcurrentAccess(t *testing.T) {
	s := newTestSystem(t, nil)
	dir := t.TempDir()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				ptr := s.Malloc(64)
				if ptr == 0 {
					continue
				}
				data := []byte(fmt.Sprintf("w%d-%d", worker, j))
				if !s.Write(ptr, data, 8) {
					t.Errorf("worker %d: write failed", worker)
				}
				got, ok := s.Read(ptr, int64(len(data)), 8)
				if !ok || !bytes.Equal(got, data) {
					t.Errorf("worker %d: read = %q ok=%v", worker, got, ok)
				}
				s.Free(ptr)

				if j%10 == 0 {
					path := filepath.Join(dir, fmt.Sprintf("w%d.txt", worker))
					fd := s.Open(path, "w")
					s.WriteFile(fd, data)
					s.ReadFile(fd, 64)
					s.CloseFile(fd)
				}
			}
		}(i)
	}
	wg.Wait()

	stats := s.Stats()
	if stats.Translator.ActivePointers != 0 {
		t.Errorf("leaked pointers: %d", stats.Translator.ActivePointers)
	}
}
