package translate

import (
	"fmt"
	"sync"
	"time"

	"github.com/gftdcojp/tiered-vmem/internal/alloc"
	"github.com/gftdcojp/tiered-vmem/internal/config"
	"github.com/gftdcojp/tiered-vmem/internal/fscache"
	"github.com/gftdcojp/tiered-vmem/internal/metrics"
	"github.com/gftdcojp/tiered-vmem/internal/types"
	"go.uber.org/zap"
)

// PointerEntry tracks one active synthetic pointer.
type PointerEntry struct {
	Pointer     uint64
	Key         string
	Size        int64
	CreatedAt   time.Time
	LastAccess  time.Time
	AccessCount int
}

func (e *PointerEntry) touch() {
	e.AccessCount++
	e.LastAccess = time.Now()
}

// DescriptorEntry tracks one active synthetic file descriptor.
type DescriptorEntry struct {
	Descriptor uint64
	Path       string
	Mode       string
	OpenedAt   time.Time
}

// Translator issues synthetic pointers and file descriptors and routes
// read/write traffic to the allocator and file cache. Handle values
// are monotonically allocated and never reused while active; a
// released value can in principle recur only after the 64-bit counter
// wraps, which is accepted, not defended against.
type Translator struct {
	mu     sync.Mutex
	memory *alloc.Allocator
	files  *fscache.FileCache

	writeThrough bool

	nextPointer    uint64
	pointerStride  uint64
	nextDescriptor uint64

	ptrs     map[uint64]*PointerEntry
	keyToPtr map[string]uint64
	fds      map[uint64]*DescriptorEntry
	pathToFD map[string]uint64

	mallocCalls uint64
	freeCalls   uint64
	readCalls   uint64
	writeCalls  uint64
	fileCalls   uint64

	logger *zap.Logger
}

func New(cfg config.TranslatorConfig, writeThrough bool, a *alloc.Allocator, f *fscache.FileCache, logger *zap.Logger) *Translator {
	return &Translator{
		memory:         a,
		files:          f,
		writeThrough:   writeThrough,
		nextPointer:    cfg.PointerBase,
		pointerStride:  cfg.PointerStride,
		nextDescriptor: cfg.DescriptorBase,
		ptrs:           make(map[uint64]*PointerEntry),
		keyToPtr:       make(map[string]uint64),
		fds:            make(map[uint64]*DescriptorEntry),
		pathToFD:       make(map[string]uint64),
		logger:         logger,
	}
}

// Malloc allocates a zero-filled buffer and returns its synthetic
// pointer. Returns 0 when the allocator rejects the request.
func (t *Translator) Malloc(size int64) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mallocCalls++

	key := fmt.Sprintf("mem_%016x_%d", t.nextPointer, size)
	if !t.memory.MallocBytes(key, make([]byte, size)) {
		metrics.TranslateOps.WithLabelValues("malloc", "rejected").Inc()
		return 0
	}

	ptr := t.nextPointer
	t.nextPointer += t.pointerStride

	now := time.Now()
	t.ptrs[ptr] = &PointerEntry{
		Pointer:    ptr,
		Key:        key,
		Size:       size,
		CreatedAt:  now,
		LastAccess: now,
	}
	t.keyToPtr[key] = ptr

	metrics.TranslateOps.WithLabelValues("malloc", "ok").Inc()
	metrics.ActiveHandles.WithLabelValues("pointer").Set(float64(len(t.ptrs)))
	return ptr
}

// Free releases a pointer. Double frees fail, they never fault.
func (t *Translator) Free(ptr uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.freeCalls++

	entry, ok := t.ptrs[ptr]
	if !ok {
		metrics.TranslateOps.WithLabelValues("free", "unknown").Inc()
		return false
	}
	t.memory.Free(entry.Key)
	delete(t.ptrs, ptr)
	delete(t.keyToPtr, entry.Key)

	metrics.TranslateOps.WithLabelValues("free", "ok").Inc()
	metrics.ActiveHandles.WithLabelValues("pointer").Set(float64(len(t.ptrs)))
	return true
}

// Read returns size bytes of the buffer starting at offset. Bounds
// past the buffer truncate, they do not error.
func (t *Translator) Read(ptr uint64, size, offset int64) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readCalls++

	entry, ok := t.ptrs[ptr]
	if !ok {
		metrics.TranslateOps.WithLabelValues("read", "unknown").Inc()
		return nil, false
	}
	entry.touch()

	data, ok := t.memory.Read(entry.Key)
	if !ok {
		metrics.TranslateOps.WithLabelValues("read", "miss").Inc()
		return nil, false
	}

	if offset < 0 {
		offset = 0
	}
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	if size < 0 {
		size = 0
	}
	end := offset + size
	if end > int64(len(data)) {
		end = int64(len(data))
	}

	metrics.TranslateOps.WithLabelValues("read", "ok").Inc()
	return data[offset:end], true
}

// Write splices data into the buffer at offset, growing it when the
// write extends past its end, and writes the whole buffer back. This
// is read-modify-write of the entire object per call: a repeated
// small-write workload costs O(size) per call.
func (t *Translator) Write(ptr uint64, data []byte, offset int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeCalls++

	entry, ok := t.ptrs[ptr]
	if !ok {
		metrics.TranslateOps.WithLabelValues("write", "unknown").Inc()
		return false
	}
	entry.touch()

	if offset < 0 {
		offset = 0
	}

	var buf []byte
	if existing, ok := t.memory.Read(entry.Key); ok {
		buf = append([]byte(nil), existing...)
	} else {
		buf = make([]byte, entry.Size)
	}

	end := offset + int64(len(data))
	if end > int64(len(buf)) {
		grown := make([]byte, end)
		copy(grown, buf)
		buf = grown
	}
	copy(buf[offset:end], data)

	if !t.memory.Write(entry.Key, buf) {
		metrics.TranslateOps.WithLabelValues("write", "rejected").Inc()
		return false
	}
	entry.Size = int64(len(buf))

	metrics.TranslateOps.WithLabelValues("write", "ok").Inc()
	return true
}

// Open issues a descriptor for the path. Opening an already-open path
// returns its existing descriptor so no two active descriptors ever
// map to the same path.
func (t *Translator) Open(path, mode string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fileCalls++

	if fd, ok := t.pathToFD[path]; ok {
		return fd
	}

	fd := t.nextDescriptor
	t.nextDescriptor++
	t.fds[fd] = &DescriptorEntry{
		Descriptor: fd,
		Path:       path,
		Mode:       mode,
		OpenedAt:   time.Now(),
	}
	t.pathToFD[path] = fd

	metrics.TranslateOps.WithLabelValues("open", "ok").Inc()
	metrics.ActiveHandles.WithLabelValues("descriptor").Set(float64(len(t.fds)))
	return fd
}

// ReadFile returns up to size bytes of the descriptor's file.
func (t *Translator) ReadFile(fd uint64, size int64) ([]byte, bool) {
	t.mu.Lock()
	entry, ok := t.fds[fd]
	t.fileCalls++
	t.mu.Unlock()

	if !ok {
		metrics.TranslateOps.WithLabelValues("read_file", "unknown").Inc()
		return nil, false
	}

	data, ok := t.files.ReadFile(entry.Path)
	if !ok {
		metrics.TranslateOps.WithLabelValues("read_file", "miss").Inc()
		return nil, false
	}
	if size < 0 {
		size = 0
	}
	if size < int64(len(data)) {
		data = data[:size]
	}
	metrics.TranslateOps.WithLabelValues("read_file", "ok").Inc()
	return data, true
}

// WriteFile writes the descriptor's file through the file cache.
func (t *Translator) WriteFile(fd uint64, data []byte) bool {
	t.mu.Lock()
	entry, ok := t.fds[fd]
	t.fileCalls++
	t.mu.Unlock()

	if !ok {
		metrics.TranslateOps.WithLabelValues("write_file", "unknown").Inc()
		return false
	}
	ok = t.files.WriteFile(entry.Path, data, t.writeThrough)
	if ok {
		metrics.TranslateOps.WithLabelValues("write_file", "ok").Inc()
	} else {
		metrics.TranslateOps.WithLabelValues("write_file", "rejected").Inc()
	}
	return ok
}

// Close releases a descriptor. Double closes fail, they never fault.
func (t *Translator) Close(fd uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fileCalls++

	entry, ok := t.fds[fd]
	if !ok {
		metrics.TranslateOps.WithLabelValues("close", "unknown").Inc()
		return false
	}
	delete(t.fds, fd)
	delete(t.pathToFD, entry.Path)

	metrics.TranslateOps.WithLabelValues("close", "ok").Inc()
	metrics.ActiveHandles.WithLabelValues("descriptor").Set(float64(len(t.fds)))
	return true
}

// Stats returns a snapshot of handle counts and call counters.
func (t *Translator) Stats() types.TranslatorStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return types.TranslatorStats{
		ActivePointers:    len(t.ptrs),
		ActiveDescriptors: len(t.fds),
		MallocCalls:       t.mallocCalls,
		FreeCalls:         t.freeCalls,
		ReadCalls:         t.readCalls,
		WriteCalls:        t.writeCalls,
		FileCalls:         t.fileCalls,
	}
}
