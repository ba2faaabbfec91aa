package cache

import (
	"time"

	"github.com/gftdcojp/tiered-vmem/internal/types"
	"github.com/klauspost/compress/s2"
)

// Block is a single keyed byte buffer resident in exactly one tier.
type Block struct {
	Key         string
	Payload     []byte
	Tier        types.Tier
	SizeBytes   int64 // uncompressed size
	AccessCount int
	LastAccess  time.Time

	// compressed holds the s2-encoded payload while the block is
	// resident compressed; nil otherwise.
	compressed []byte
}

func newBlock(key string, payload []byte, size int64) *Block {
	return &Block{
		Key:        key,
		Payload:    payload,
		Tier:       types.TierHot,
		SizeBytes:  size,
		LastAccess: time.Now(),
	}
}

func (b *Block) touch() {
	b.AccessCount++
	b.LastAccess = time.Now()
}

func (b *Block) isCompressed() bool {
	return b.compressed != nil
}

// effectiveSize is the block's contribution to tier occupancy.
func (b *Block) effectiveSize() int64 {
	if b.compressed != nil {
		return int64(len(b.compressed))
	}
	return b.SizeBytes
}

// compress encodes the payload with s2 and drops the uncompressed
// copy. Returns the bytes saved (zero when compression did not help;
// the encoded form is kept either way so occupancy accounting always
// uses the compressed length).
func (b *Block) compress() int64 {
	if b.compressed != nil || b.Payload == nil {
		return 0
	}
	b.compressed = s2.Encode(nil, b.Payload)
	b.Payload = nil
	saved := b.SizeBytes - int64(len(b.compressed))
	if saved < 0 {
		return 0
	}
	return saved
}

// decompress restores the payload in place. On decode failure the
// block keeps its compressed form as the last known good state.
func (b *Block) decompress() error {
	if b.compressed == nil {
		return nil
	}
	payload, err := s2.Decode(nil, b.compressed)
	if err != nil {
		return err
	}
	b.Payload = payload
	b.compressed = nil
	return nil
}
