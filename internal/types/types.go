package types

// Tier identifies which storage tier a cache block resides in. Five
// tiers are declared; only the first three are routed by the cache.
// Cold and Disk are extension points with no semantics attached.
type Tier int

const (
	TierHot Tier = iota
	TierWarm
	TierCompressed
	TierCold
	TierDisk
)

func (t Tier) String() string {
	switch t {
	case TierHot:
		return "hot"
	case TierWarm:
		return "warm"
	case TierCompressed:
		return "compressed"
	case TierCold:
		return "cold"
	case TierDisk:
		return "disk"
	default:
		return "unknown"
	}
}

// TierStats reports usage counters for a single cache tier.
type TierStats struct {
	Tier       Tier
	Hits       uint64
	Misses     uint64
	BlockCount int
	UsedBytes  int64
	MaxBytes   int64
}

// CacheStats is a snapshot of the tiered cache as a whole.
type CacheStats struct {
	Tiers        [3]TierStats
	Promotions   uint64
	Demotions    uint64
	Evictions    uint64
	Compressions uint64
	BytesSaved   int64
}

// HitRate returns the overall hit percentage across all tiers.
func (c CacheStats) HitRate() float64 {
	var hits, total uint64
	for _, t := range c.Tiers {
		hits += t.Hits
		total += t.Hits + t.Misses
	}
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

// AllocStats is a snapshot of the budgeted allocator.
type AllocStats struct {
	BudgetBytes    int64
	AllocatedBytes int64
	Allocations    int
	TotalAllocs    uint64
	TotalFrees     uint64
	BudgetRejects  uint64
}

// FileStats is a snapshot of the file cache.
type FileStats struct {
	CachedFiles int
	Reads       uint64
	Writes      uint64
	CacheHits   uint64
	CacheMisses uint64
	StoreReads  uint64
	StoreWrites uint64
	WriteErrors uint64
}

// TranslatorStats is a snapshot of the handle translation layer.
type TranslatorStats struct {
	ActivePointers    int
	ActiveDescriptors int
	MallocCalls       uint64
	FreeCalls         uint64
	ReadCalls         uint64
	WriteCalls        uint64
	FileCalls         uint64
}

// Stats aggregates snapshots from every component.
type Stats struct {
	Cache      CacheStats
	Alloc      AllocStats
	Files      FileStats
	Translator TranslatorStats
}
