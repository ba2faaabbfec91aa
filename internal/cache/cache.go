package cache

import (
	"errors"
	"sync"

	"github.com/gftdcojp/tiered-vmem/internal/config"
	"github.com/gftdcojp/tiered-vmem/internal/metrics"
	"github.com/gftdcojp/tiered-vmem/internal/types"
	"go.uber.org/zap"
)

// ErrOversize is returned by Put when a single payload exceeds the hot
// tier's capacity. Such an insert can never satisfy the occupancy
// invariant, so it is rejected instead of evicting the whole tier.
var ErrOversize = errors.New("payload exceeds hot tier capacity")

// tierState is one capacity-bounded tier: a block map plus an LRU
// order slice, oldest first.
type tierState struct {
	tier   types.Tier
	max    int64
	blocks map[string]*Block
	order  []string
	used   int64
	hits   uint64
	misses uint64
}

func newTierState(tier types.Tier, max int64) *tierState {
	return &tierState{
		tier:   tier,
		max:    max,
		blocks: make(map[string]*Block),
	}
}

func (t *tierState) insert(b *Block) {
	b.Tier = t.tier
	t.blocks[b.Key] = b
	t.order = append(t.order, b.Key)
	t.used += b.effectiveSize()
}

func (t *tierState) remove(key string) *Block {
	b, ok := t.blocks[key]
	if !ok {
		return nil
	}
	delete(t.blocks, key)
	t.removeFromOrder(key)
	t.used -= b.effectiveSize()
	return b
}

func (t *tierState) moveToEnd(key string) {
	t.removeFromOrder(key)
	t.order = append(t.order, key)
}

func (t *tierState) removeFromOrder(key string) {
	for i, k := range t.order {
		if k == key {
			t.order = append(t.order[:i], t.order[i+1:]...)
			return
		}
	}
}

func (t *tierState) oldest() *Block {
	if len(t.order) == 0 {
		return nil
	}
	return t.blocks[t.order[0]]
}

// TieredCache holds keyed blocks across three capacity-bounded tiers
// and owns all promotion, demotion and eviction policy. One mutex
// covers every operation, so a cross-tier move is atomic with respect
// to other callers.
type TieredCache struct {
	mu   sync.Mutex
	hot  *tierState
	warm *tierState
	comp *tierState

	warmPromoteHits int
	coldPromoteHits int

	promotions   uint64
	demotions    uint64
	evictions    uint64
	compressions uint64
	bytesSaved   int64

	logger *zap.Logger
}

func New(cfg config.CacheConfig, logger *zap.Logger) *TieredCache {
	return &TieredCache{
		hot:             newTierState(types.TierHot, int64(cfg.HotMaxBytes)),
		warm:            newTierState(types.TierWarm, int64(cfg.WarmMaxBytes)),
		comp:            newTierState(types.TierCompressed, int64(cfg.CompressedMaxBytes)),
		warmPromoteHits: cfg.WarmPromoteHits,
		coldPromoteHits: cfg.ColdPromoteHits,
		logger:          logger,
	}
}

// Get looks the key up hot-first and returns the payload. A warm hit
// past the promotion threshold moves the block to hot; a compressed
// hit decompresses in place and may move the block to warm.
func (c *TieredCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if b, ok := c.hot.blocks[key]; ok {
		c.hot.hits++
		metrics.TierHits.WithLabelValues("hot").Inc()
		b.touch()
		c.hot.moveToEnd(key)
		return b.Payload, true
	}
	c.hot.misses++
	metrics.TierMisses.WithLabelValues("hot").Inc()

	if b, ok := c.warm.blocks[key]; ok {
		c.warm.hits++
		metrics.TierHits.WithLabelValues("warm").Inc()
		// The promotion check precedes the access-count bump: a block
		// sitting exactly at the threshold stays warm on this hit.
		promote := b.AccessCount > c.warmPromoteHits
		b.touch()
		if promote {
			c.promoteToHot(b)
		} else {
			c.warm.moveToEnd(key)
		}
		c.syncGauges()
		return b.Payload, true
	}
	c.warm.misses++
	metrics.TierMisses.WithLabelValues("warm").Inc()

	if b, ok := c.comp.blocks[key]; ok {
		c.comp.hits++
		metrics.TierHits.WithLabelValues("compressed").Inc()
		b.touch()
		if b.isCompressed() {
			before := b.effectiveSize()
			if err := b.decompress(); err != nil {
				c.logger.Warn("decompression failed, block kept compressed",
					zap.String("key", key), zap.Error(err))
				return nil, false
			}
			c.comp.used += b.SizeBytes - before
		}
		if b.AccessCount > c.coldPromoteHits {
			c.promoteToWarm(b)
		} else {
			c.comp.moveToEnd(key)
			c.trimCompressed()
		}
		c.syncGauges()
		return b.Payload, true
	}
	c.comp.misses++
	metrics.TierMisses.WithLabelValues("compressed").Inc()

	return nil, false
}

// Put inserts a new hot block for key, displacing any existing entry
// in any tier. size is the accounted size, which may differ from
// len(payload) when the caller fell back to an estimate.
func (c *TieredCache) Put(key string, payload []byte, size int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if size > c.hot.max {
		return ErrOversize
	}

	// A key must never be resident in two tiers at once.
	c.hot.remove(key)
	c.warm.remove(key)
	c.comp.remove(key)

	c.makeRoomHot(size)
	c.hot.insert(newBlock(key, payload, size))
	c.syncGauges()
	return nil
}

// Remove purges the key from whichever tier holds it.
func (c *TieredCache) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	found := c.hot.remove(key) != nil
	found = c.warm.remove(key) != nil || found
	found = c.comp.remove(key) != nil || found
	if found {
		c.syncGauges()
	}
	return found
}

// Stats returns a snapshot of all counters and tier occupancy.
func (c *TieredCache) Stats() types.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := types.CacheStats{
		Promotions:   c.promotions,
		Demotions:    c.demotions,
		Evictions:    c.evictions,
		Compressions: c.compressions,
		BytesSaved:   c.bytesSaved,
	}
	for i, t := range []*tierState{c.hot, c.warm, c.comp} {
		stats.Tiers[i] = types.TierStats{
			Tier:       t.tier,
			Hits:       t.hits,
			Misses:     t.misses,
			BlockCount: len(t.blocks),
			UsedBytes:  t.used,
			MaxBytes:   t.max,
		}
	}
	return stats
}

// makeRoomHot demotes oldest hot blocks to warm until needed bytes fit.
func (c *TieredCache) makeRoomHot(needed int64) {
	for c.hot.used+needed > c.hot.max {
		victim := c.hot.oldest()
		if victim == nil {
			return
		}
		c.demoteToWarm(victim)
	}
}

func (c *TieredCache) makeRoomWarm(needed int64) {
	for c.warm.used+needed > c.warm.max {
		victim := c.warm.oldest()
		if victim == nil {
			return
		}
		c.demoteToCompressed(victim)
	}
}

// makeRoomCompressed evicts; the compressed tier is terminal.
func (c *TieredCache) makeRoomCompressed(needed int64) {
	for c.comp.used+needed > c.comp.max {
		victim := c.comp.oldest()
		if victim == nil {
			return
		}
		c.evict(c.comp, victim)
	}
}

func (c *TieredCache) trimCompressed() {
	c.makeRoomCompressed(0)
}

func (c *TieredCache) promoteToHot(b *Block) {
	c.warm.remove(b.Key)
	c.makeRoomHot(b.SizeBytes)
	c.hot.insert(b)
	c.promotions++
	metrics.PromotionOps.WithLabelValues("warm", "hot").Inc()
}

func (c *TieredCache) promoteToWarm(b *Block) {
	c.comp.remove(b.Key)
	c.makeRoomWarm(b.SizeBytes)
	c.warm.insert(b)
	c.promotions++
	metrics.PromotionOps.WithLabelValues("compressed", "warm").Inc()
}

func (c *TieredCache) demoteToWarm(b *Block) {
	c.hot.remove(b.Key)
	c.demotions++
	metrics.DemotionOps.WithLabelValues("hot", "warm").Inc()
	if b.SizeBytes > c.warm.max {
		// Cannot fit even an empty warm tier; evict instead of
		// spinning the make-room loop.
		c.evict(c.warm, b)
		return
	}
	c.makeRoomWarm(b.SizeBytes)
	c.warm.insert(b)
}

func (c *TieredCache) demoteToCompressed(b *Block) {
	c.warm.remove(b.Key)
	c.demotions++
	metrics.DemotionOps.WithLabelValues("warm", "compressed").Inc()

	saved := b.compress()
	if saved > 0 {
		c.compressions++
		c.bytesSaved += saved
		metrics.Compressions.Inc()
		metrics.CompressionBytesSaved.Add(float64(saved))
	}

	eff := b.effectiveSize()
	if eff > c.comp.max {
		c.evict(c.comp, b)
		return
	}
	c.makeRoomCompressed(eff)
	c.comp.insert(b)
}

// evict drops a block permanently. The block may or may not still be
// resident in the given tier; remove is a no-op if it is not.
func (c *TieredCache) evict(t *tierState, b *Block) {
	t.remove(b.Key)
	c.evictions++
	metrics.Evictions.Inc()
	c.logger.Debug("block evicted",
		zap.String("key", b.Key),
		zap.Int64("size", b.SizeBytes),
	)
}

func (c *TieredCache) syncGauges() {
	for _, t := range []*tierState{c.hot, c.warm, c.comp} {
		name := t.tier.String()
		metrics.TierBlockCount.WithLabelValues(name).Set(float64(len(t.blocks)))
		metrics.TierBytes.WithLabelValues(name).Set(float64(t.used))
	}
}
