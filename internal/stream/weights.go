package stream

import (
	"fmt"
	"math/rand"

	"github.com/23skdu/longbow-warble/internal/config"
)

// ConvWeights holds the parameters of one causal conv layer. Taps[t] is the
// row-major [dim][dim] matrix for kernel tap t, Taps[len-1] applying to the
// newest frame.
type ConvWeights struct {
	Taps [][]float32
	Bias []float32
}

// AttentionWeights holds the projection matrices of one attention layer,
// each row-major [dim][dim].
type AttentionWeights struct {
	Wq []float32
	Wk []float32
	Wv []float32
	Wo []float32
}

// LayerWeights is the per-layer parameter bundle supplied fully formed by an
// external loader. Exactly one of Conv/Attn is set, matching the layer kind.
// NormBias is only read for LayerNorm.
type LayerWeights struct {
	Conv *ConvWeights
	Attn *AttentionWeights

	NormGain []float32
	NormBias []float32
}

func (w *LayerWeights) validate(lc *config.LayerConfig, idx int) error {
	if len(w.NormGain) != lc.Dim {
		return fmt.Errorf("layer %d: norm gain mismatch: got %d, want %d", idx, len(w.NormGain), lc.Dim)
	}
	if lc.Norm == config.LayerNorm && len(w.NormBias) != lc.Dim {
		return fmt.Errorf("layer %d: norm bias mismatch: got %d, want %d", idx, len(w.NormBias), lc.Dim)
	}

	switch lc.Kind {
	case config.KindConv:
		if w.Conv == nil {
			return fmt.Errorf("layer %d: conv layer missing conv weights", idx)
		}
		if len(w.Conv.Taps) != lc.KernelSize {
			return fmt.Errorf("layer %d: conv taps mismatch: got %d, want %d",
				idx, len(w.Conv.Taps), lc.KernelSize)
		}
		for t, tap := range w.Conv.Taps {
			if len(tap) != lc.Dim*lc.Dim {
				return fmt.Errorf("layer %d: conv tap %d: got %d weights, want %d",
					idx, t, len(tap), lc.Dim*lc.Dim)
			}
		}
		if len(w.Conv.Bias) != lc.Dim {
			return fmt.Errorf("layer %d: conv bias mismatch: got %d, want %d",
				idx, len(w.Conv.Bias), lc.Dim)
		}
	case config.KindAttention:
		if w.Attn == nil {
			return fmt.Errorf("layer %d: attention layer missing attention weights", idx)
		}
		want := lc.Dim * lc.Dim
		for name, m := range map[string][]float32{
			"wq": w.Attn.Wq, "wk": w.Attn.Wk, "wv": w.Attn.Wv, "wo": w.Attn.Wo,
		} {
			if len(m) != want {
				return fmt.Errorf("layer %d: %s mismatch: got %d weights, want %d",
					idx, name, len(m), want)
			}
		}
	}
	return nil
}

// SyntheticWeights builds deterministic random weights for a whole stack,
// sized to keep activations stable across deep stacks. Used by the demo
// driver and by tests; real deployments load weights externally.
func SyntheticWeights(cfg *config.StreamConfig, seed int64) []LayerWeights {
	rng := rand.New(rand.NewSource(seed))
	weights := make([]LayerWeights, len(cfg.Layers))
	for i := range cfg.Layers {
		lc := &cfg.Layers[i]
		w := LayerWeights{
			NormGain: make([]float32, lc.Dim),
			NormBias: make([]float32, lc.Dim),
		}
		for j := 0; j < lc.Dim; j++ {
			w.NormGain[j] = 1.0
		}

		scale := float32(0.5) / float32(lc.Dim)
		randMat := func() []float32 {
			m := make([]float32, lc.Dim*lc.Dim)
			for j := range m {
				m[j] = (rng.Float32()*2 - 1) * scale
			}
			return m
		}

		switch lc.Kind {
		case config.KindConv:
			cw := &ConvWeights{
				Taps: make([][]float32, lc.KernelSize),
				Bias: make([]float32, lc.Dim),
			}
			for t := range cw.Taps {
				cw.Taps[t] = randMat()
			}
			w.Conv = cw
		case config.KindAttention:
			w.Attn = &AttentionWeights{
				Wq: randMat(),
				Wk: randMat(),
				Wv: randMat(),
				Wo: randMat(),
			}
		}
		weights[i] = w
	}
	return weights
}
