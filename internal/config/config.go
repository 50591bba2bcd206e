package config

import (
	"fmt"
	"strings"
)

// NormType selects the normalization applied inside a layer.
type NormType int

const (
	RMSNorm NormType = iota
	LayerNorm
)

func (n NormType) String() string {
	switch n {
	case RMSNorm:
		return "rmsnorm"
	case LayerNorm:
		return "layernorm"
	default:
		return fmt.Sprintf("normtype(%d)", int(n))
	}
}

// ParseNormType maps a config string to a NormType.
func ParseNormType(s string) (NormType, error) {
	switch strings.ToLower(s) {
	case "rmsnorm", "rms":
		return RMSNorm, nil
	case "layernorm", "ln":
		return LayerNorm, nil
	}
	return RMSNorm, fmt.Errorf("unknown norm type: %q", s)
}

// LayerKind discriminates the streaming layer variants.
type LayerKind int

const (
	KindConv LayerKind = iota
	KindAttention
)

func (k LayerKind) String() string {
	switch k {
	case KindConv:
		return "conv"
	case KindAttention:
		return "attention"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// LayerConfig describes one layer of the streaming stack. Immutable after
// construction.
type LayerConfig struct {
	Kind LayerKind
	Dim  int

	// Conv layers
	KernelSize int
	Dilation   int

	// Attention layers
	Heads   int
	HeadDim int
	Context int // max cached timesteps; 0 = unbounded

	Norm NormType
	Eps  float32
}

// HistoryLen returns the number of past frames a conv layer must retain.
func (lc *LayerConfig) HistoryLen() int {
	d := lc.Dilation
	if d < 1 {
		d = 1
	}
	return d * (lc.KernelSize - 1)
}

func (lc *LayerConfig) validate(idx int) error {
	if lc.Dim <= 0 {
		return fmt.Errorf("layer %d: invalid dim: %d (must be positive)", idx, lc.Dim)
	}
	if lc.Eps <= 0 {
		return fmt.Errorf("layer %d: invalid eps: %g (must be positive)", idx, lc.Eps)
	}
	switch lc.Kind {
	case KindConv:
		if lc.KernelSize <= 0 {
			return fmt.Errorf("layer %d: invalid kernel_size: %d (must be positive)", idx, lc.KernelSize)
		}
		if lc.Dilation < 1 {
			return fmt.Errorf("layer %d: invalid dilation: %d (must be >= 1)", idx, lc.Dilation)
		}
	case KindAttention:
		if lc.Heads <= 0 {
			return fmt.Errorf("layer %d: invalid heads: %d (must be positive)", idx, lc.Heads)
		}
		if lc.HeadDim <= 0 {
			return fmt.Errorf("layer %d: invalid head_dim: %d (must be positive)", idx, lc.HeadDim)
		}
		if lc.Heads*lc.HeadDim != lc.Dim {
			return fmt.Errorf("layer %d: dim mismatch: %d != heads(%d) * head_dim(%d)",
				idx, lc.Dim, lc.Heads, lc.HeadDim)
		}
		if lc.Context < 0 {
			return fmt.Errorf("layer %d: invalid context: %d (must be non-negative)", idx, lc.Context)
		}
	default:
		return fmt.Errorf("layer %d: unknown layer kind: %d", idx, lc.Kind)
	}
	return nil
}

// StreamConfig describes the full streaming stack for one session.
type StreamConfig struct {
	Dim    int
	Layers []LayerConfig
}

// Validate checks the configuration. Errors here are fatal at construction
// and never recoverable.
func (c *StreamConfig) Validate() error {
	if c.Dim <= 0 {
		return fmt.Errorf("invalid dim: %d (must be positive)", c.Dim)
	}
	if len(c.Layers) == 0 {
		return fmt.Errorf("invalid layers: 0 (must have at least one layer)")
	}
	for i := range c.Layers {
		if err := c.Layers[i].validate(i); err != nil {
			return err
		}
		// Layer i's output feeds layer i+1; the stack keeps one embedding dim.
		if c.Layers[i].Dim != c.Dim {
			return fmt.Errorf("layer %d: dim chain broken: layer dim %d != model dim %d",
				i, c.Layers[i].Dim, c.Dim)
		}
	}
	return nil
}

// RVQConfig describes the residual vector quantizer.
type RVQConfig struct {
	Stages       int
	CodebookSize int
	Dim          int
}

func (c *RVQConfig) Validate() error {
	if c.Stages <= 0 {
		return fmt.Errorf("invalid stages: %d (must be positive)", c.Stages)
	}
	if c.CodebookSize <= 0 {
		return fmt.Errorf("invalid codebook_size: %d (must be positive)", c.CodebookSize)
	}
	if c.Dim <= 0 {
		return fmt.Errorf("invalid dim: %d (must be positive)", c.Dim)
	}
	return nil
}

// DefaultLayer returns a conv layer config with the common defaults.
func DefaultLayer(dim int) LayerConfig {
	return LayerConfig{
		Kind:       KindConv,
		Dim:        dim,
		KernelSize: 3,
		Dilation:   1,
		Norm:       RMSNorm,
		Eps:        1e-5,
	}
}

// DefaultAttentionLayer returns an attention layer config with the common
// defaults. Context 0 means the cache grows without bound.
func DefaultAttentionLayer(dim, heads int) LayerConfig {
	return LayerConfig{
		Kind:    KindAttention,
		Dim:     dim,
		Heads:   heads,
		HeadDim: dim / heads,
		Context: 0,
		Norm:    RMSNorm,
		Eps:     1e-5,
	}
}
