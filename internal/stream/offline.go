package stream

import (
	"fmt"
	"math"

	"github.com/23skdu/longbow-warble/internal/config"
	"github.com/23skdu/longbow-warble/internal/tensor"
)

// EvalOffline runs the whole sequence through the stack non-incrementally
// and returns one output frame per input frame. It is the reference the
// streaming path is measured against: Step called frame-by-frame must match
// this within floating-point tolerance. Deliberately written as a separate
// whole-sequence evaluation rather than a loop over Step.
func EvalOffline(cfg config.StreamConfig, weights []LayerWeights, frames [][]float32) ([][]float32, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid stream config: %w", err)
	}
	if len(weights) != len(cfg.Layers) {
		return nil, fmt.Errorf("weights mismatch: got %d layer weights, config has %d layers",
			len(weights), len(cfg.Layers))
	}
	for p, f := range frames {
		if len(f) != cfg.Dim {
			return nil, fmt.Errorf("offline eval: frame %d dim mismatch: expected %d, got %d",
				p, cfg.Dim, len(f))
		}
	}

	cur := frames
	for i := range cfg.Layers {
		lc := &cfg.Layers[i]
		w := &weights[i]
		if err := w.validate(lc, i); err != nil {
			return nil, err
		}
		switch lc.Kind {
		case config.KindConv:
			cur = offlineConv(lc, w, cur)
		case config.KindAttention:
			cur = offlineAttention(lc, w, cur)
		}
	}
	return cur, nil
}

func offlineNorm(lc *config.LayerConfig, w *LayerWeights, frame []float32) []float32 {
	if lc.Norm == config.LayerNorm {
		return tensor.LayerNorm(frame, w.NormGain, w.NormBias, lc.Eps)
	}
	return tensor.RMSNorm(frame, w.NormGain, lc.Eps)
}

// offlineConv is causal convolution over the full sequence with an implicit
// left zero pad of dilation*(kernel-1) positions.
func offlineConv(lc *config.LayerConfig, w *LayerWeights, frames [][]float32) [][]float32 {
	normed := make([][]float32, len(frames))
	for p := range frames {
		normed[p] = offlineNorm(lc, w, frames[p])
	}

	out := make([][]float32, len(frames))
	for p := range frames {
		acc := make([]float32, lc.Dim)
		copy(acc, w.Conv.Bias)
		for t := 0; t < lc.KernelSize; t++ {
			src := p - (lc.KernelSize-1-t)*lc.Dilation
			if src < 0 {
				continue // zero padding contributes nothing
			}
			tensor.AddInPlace(acc, tensor.MatVec(w.Conv.Taps[t], normed[src], lc.Dim, lc.Dim))
		}
		out[p] = tensor.Add(frames[p], acc)
	}
	return out
}

// offlineAttention is causal windowed attention over the full sequence. A
// positive Context limits each query to the trailing Context timesteps,
// current included, mirroring the streaming cache's FIFO eviction.
func offlineAttention(lc *config.LayerConfig, w *LayerWeights, frames [][]float32) [][]float32 {
	dim := lc.Dim
	heads := lc.Heads
	headDim := lc.HeadDim

	qs := make([][]float32, len(frames))
	ks := make([][]float32, len(frames))
	vs := make([][]float32, len(frames))
	for p := range frames {
		n := offlineNorm(lc, w, frames[p])
		qs[p] = tensor.MatVec(w.Attn.Wq, n, dim, dim)
		ks[p] = tensor.MatVec(w.Attn.Wk, n, dim, dim)
		vs[p] = tensor.MatVec(w.Attn.Wv, n, dim, dim)
	}

	invSqrt := float32(1.0 / math.Sqrt(float64(headDim)))
	out := make([][]float32, len(frames))
	for p := range frames {
		start := 0
		if lc.Context > 0 && p+1 > lc.Context {
			start = p + 1 - lc.Context
		}
		ctxLen := p + 1 - start

		attnOut := make([]float32, dim)
		scores := make([]float32, ctxLen)
		for h := 0; h < heads; h++ {
			qh := qs[p][h*headDim : (h+1)*headDim]
			for t := 0; t < ctxLen; t++ {
				scores[t] = tensor.Dot(qh, ks[start+t][h*headDim:(h+1)*headDim]) * invSqrt
			}
			tensor.Softmax(scores)
			oh := attnOut[h*headDim : (h+1)*headDim]
			for t := 0; t < ctxLen; t++ {
				vh := vs[start+t][h*headDim : (h+1)*headDim]
				wt := scores[t]
				for i := 0; i < headDim; i++ {
					oh[i] += wt * vh[i]
				}
			}
		}
		out[p] = tensor.Add(frames[p], tensor.MatVec(w.Attn.Wo, attnOut, dim, dim))
	}
	return out
}
