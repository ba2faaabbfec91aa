package alloc

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/gftdcojp/tiered-vmem/internal/cache"
	"github.com/gftdcojp/tiered-vmem/internal/config"
	"github.com/gftdcojp/tiered-vmem/pkg/codec"
	"go.uber.org/zap"
)

func newTestAllocator(budget int64) *Allocator {
	c := cache.New(config.CacheConfig{
		HotMaxBytes:        config.ByteSize(budget),
		WarmMaxBytes:       config.ByteSize(budget),
		CompressedMaxBytes: config.ByteSize(budget),
		WarmPromoteHits:    3,
		ColdPromoteHits:    2,
	}, zap.NewNop())
	return New(config.MemoryConfig{
		Budget:              config.ByteSize(budget),
		DefaultSizeEstimate: 1024,
	}, c, codec.Raw{}, zap.NewNop())
}

func TestMallocReadRoundTrip(t *testing.T) {
	a := newTestAllocator(4096)

	payload := []byte("round trip payload")
	if !a.MallocBytes("k", payload) {
		t.Fatal("malloc failed")
	}
	got, ok := a.Read("k")
	if !ok || !bytes.Equal(got, payload) {
		t.Fatalf("read mismatch: got %q", got)
	}
}

func TestBudgetEnforcement(t *testing.T) {
	a := newTestAllocator(100)

	if !a.MallocBytes("a", make([]byte, 60)) {
		t.Fatal("first malloc should fit")
	}
	before := a.Stats().AllocatedBytes

	if a.MallocBytes("b", make([]byte, 60)) {
		t.Fatal("second malloc should exceed budget")
	}
	stats := a.Stats()
	if stats.AllocatedBytes != before {
		t.Errorf("rejected malloc changed allocated bytes: %d -> %d", before, stats.AllocatedBytes)
	}
	if stats.BudgetRejects != 1 {
		t.Errorf("budget rejects = %d, want 1", stats.BudgetRejects)
	}
	if _, ok := a.Read("b"); ok {
		t.Error("rejected key must not be readable")
	}
}

func TestFreeCompleteness(t *testing.T) {
	a := newTestAllocator(4096)

	a.MallocBytes("k", make([]byte, 128))
	allocated := a.Stats().AllocatedBytes

	if !a.Free("k") {
		t.Fatal("free failed")
	}
	stats := a.Stats()
	if got := allocated - stats.AllocatedBytes; got != 128 {
		t.Errorf("free released %d bytes, want 128", got)
	}
	if stats.Allocations != 0 {
		t.Errorf("allocations = %d, want 0", stats.Allocations)
	}
	if _, ok := a.Read("k"); ok {
		t.Error("freed key must miss")
	}
	if a.Free("k") {
		t.Error("double free must fail")
	}
}

func TestFreeUnknownKey(t *testing.T) {
	a := newTestAllocator(4096)
	if a.Free("never-allocated") {
		t.Fatal("free of unknown key must fail")
	}
}

func TestWriteReplacesPayload(t *testing.T) {
	a := newTestAllocator(4096)

	a.MallocBytes("k", []byte("old"))
	if !a.Write("k", []byte("newer data")) {
		t.Fatal("write failed")
	}

	got, ok := a.Read("k")
	if !ok || !bytes.Equal(got, []byte("newer data")) {
		t.Fatalf("read after write: got %q", got)
	}

	stats := a.Stats()
	if stats.AllocatedBytes != int64(len("newer data")) {
		t.Errorf("allocated = %d, want %d", stats.AllocatedBytes, len("newer data"))
	}
}

func TestWriteResetsToHot(t *testing.T) {
	// Hot fits one block; the first is demoted when the second
	// arrives, and a write brings it back hot.
	c := cache.New(config.CacheConfig{
		HotMaxBytes:        32,
		WarmMaxBytes:       64,
		CompressedMaxBytes: 1024,
		WarmPromoteHits:    3,
		ColdPromoteHits:    2,
	}, zap.NewNop())
	a := New(config.MemoryConfig{Budget: 1024, DefaultSizeEstimate: 64}, c, codec.Raw{}, zap.NewNop())

	a.MallocBytes("a", make([]byte, 24))
	a.MallocBytes("b", make([]byte, 24)) // demotes a to warm

	if !a.Write("a", make([]byte, 24)) {
		t.Fatal("write failed")
	}
	stats := c.Stats()
	if stats.Tiers[0].BlockCount != 1 || stats.Tiers[1].BlockCount != 1 {
		t.Errorf("after write, hot=%d warm=%d; the written block should be hot",
			stats.Tiers[0].BlockCount, stats.Tiers[1].BlockCount)
	}
	// "a" is the hot resident: reading it hits the hot tier.
	hotHits := stats.Tiers[0].Hits
	if _, ok := a.Read("a"); !ok {
		t.Fatal("read failed")
	}
	if got := c.Stats().Tiers[0].Hits; got != hotHits+1 {
		t.Error("written block should be resident in the hot tier")
	}
}

func TestCodecFallbackOnEncodeFailure(t *testing.T) {
	a := newTestAllocator(4096)

	// Raw codec cannot encode an int; malloc must still succeed using
	// the default size estimate.
	if !a.Malloc("k", 42) {
		t.Fatal("malloc must not abort on encode failure")
	}
	if got := a.Stats().AllocatedBytes; got != 1024 {
		t.Errorf("allocated = %d, want default estimate 1024", got)
	}
}

func TestMallocValueRoundTrip(t *testing.T) {
	c := cache.New(config.CacheConfig{
		HotMaxBytes:        4096,
		WarmMaxBytes:       4096,
		CompressedMaxBytes: 4096,
		WarmPromoteHits:    3,
		ColdPromoteHits:    2,
	}, zap.NewNop())
	a := New(config.MemoryConfig{Budget: 4096, DefaultSizeEstimate: 1024}, c, codec.Gob{}, zap.NewNop())

	type sample struct {
		ID   int
		Name string
	}
	if !a.Malloc("k", sample{ID: 3, Name: "three"}) {
		t.Fatal("malloc failed")
	}
	var out sample
	if !a.ReadValue("k", &out) {
		t.Fatal("read failed")
	}
	if out.ID != 3 || out.Name != "three" {
		t.Errorf("round trip mismatch: %+v", out)
	}
}

func TestReMallocSameKeyKeepsBudgetConsistent(t *testing.T) {
	a := newTestAllocator(100)

	a.MallocBytes("k", make([]byte, 80))
	if !a.MallocBytes("k", make([]byte, 90)) {
		t.Fatal("re-malloc replacing the same key should fit the budget")
	}
	if got := a.Stats().AllocatedBytes; got != 90 {
		t.Errorf("allocated = %d, want 90", got)
	}
	if got := a.Stats().Allocations; got != 1 {
		t.Errorf("allocations = %d, want 1", got)
	}
}

func TestManyAllocationsStayWithinBudget(t *testing.T) {
	a := newTestAllocator(1024)

	granted := 0
	for i := 0; i < 64; i++ {
		if a.MallocBytes(fmt.Sprintf("k%d", i), make([]byte, 100)) {
			granted++
		}
	}
	if granted != 10 {
		t.Errorf("granted %d allocations of 100 bytes under a 1024 budget, want 10", granted)
	}
	if got := a.Stats().AllocatedBytes; got > 1024 {
		t.Errorf("allocated %d exceeds budget", got)
	}
}
