package stream

import (
	"fmt"

	"github.com/23skdu/longbow-warble/internal/metrics"
)

// AttentionCache stores the key/value history of one attention layer in
// strict time order, oldest first. A positive capacity makes it a sliding
// window: once full, every append evicts the oldest entry. Capacity 0 never
// evicts. Each cache is exclusively owned by its layer.
type AttentionCache struct {
	dim      int
	capacity int

	keys   [][]float32
	values [][]float32

	// absolute timestep of keys[0]; needed for positional bookkeeping once
	// the window has slid.
	offset int
}

// NewAttentionCache creates an empty cache. capacity 0 means unbounded.
func NewAttentionCache(dim, capacity int) (*AttentionCache, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid cache dim: %d", dim)
	}
	if capacity < 0 {
		return nil, fmt.Errorf("invalid cache capacity: %d", capacity)
	}
	metrics.AttnCacheCapacity.Set(float64(capacity))
	return &AttentionCache{dim: dim, capacity: capacity}, nil
}

// Append adds one timestep's key/value pair. Eviction on a full bounded
// cache is handled here and never surfaced as an error.
func (c *AttentionCache) Append(key, value []float32) error {
	if len(key) != c.dim || len(value) != c.dim {
		metrics.RecordPreconditionViolation("attn_cache", "dim_mismatch")
		return fmt.Errorf("attention cache: k/v dim mismatch: expected %d, got k=%d v=%d",
			c.dim, len(key), len(value))
	}

	c.keys = append(c.keys, key)
	c.values = append(c.values, value)

	evicted := false
	if c.capacity > 0 && len(c.keys) > c.capacity {
		c.keys = c.keys[1:]
		c.values = c.values[1:]
		c.offset++
		evicted = true
	}
	metrics.RecordAttnCacheAppend(len(c.keys), evicted)
	return nil
}

// View exposes the causal history for attention scoring, oldest first. The
// returned slices alias cache-owned storage and must not be mutated.
func (c *AttentionCache) View() (keys, values [][]float32) {
	return c.keys, c.values
}

// Len returns the number of cached timesteps.
func (c *AttentionCache) Len() int {
	return len(c.keys)
}

// Offset returns the absolute timestep of the oldest cached entry.
func (c *AttentionCache) Offset() int {
	return c.offset
}

// Reset clears the cache to empty.
func (c *AttentionCache) Reset() {
	c.keys = nil
	c.values = nil
	c.offset = 0
}
