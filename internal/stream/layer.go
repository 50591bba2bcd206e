package stream

import (
	"fmt"
	"math"

	"github.com/23skdu/longbow-warble/internal/config"
	"github.com/23skdu/longbow-warble/internal/metrics"
	"github.com/23skdu/longbow-warble/internal/tensor"
)

// RunningNorm tracks an exponential moving average of the pre-normalization
// RMS of a layer's inputs. Diagnostic only: the normalization itself is
// per-frame, which is what keeps streaming equal to offline evaluation.
type RunningNorm struct {
	alpha float64
	count int64
	ema   float64
}

// Update folds one observation into the running average.
func (r *RunningNorm) Update(rms float32) {
	r.count++
	if r.count == 1 {
		r.ema = float64(rms)
		return
	}
	a := r.alpha
	if a == 0 {
		a = 0.01
	}
	r.ema = a*float64(rms) + (1-a)*r.ema
}

// Value returns the current moving average, 0 before any observation.
func (r *RunningNorm) Value() float64 {
	return r.ema
}

// Count returns the number of observations since the last reset.
func (r *RunningNorm) Count() int64 {
	return r.count
}

// Reset clears the tracker.
func (r *RunningNorm) Reset() {
	r.count = 0
	r.ema = 0
}

// LayerState composes everything one layer mutates while streaming: the
// causal conv buffer or the attention cache, selected by the layer kind, plus
// the running normalization statistics. One instance per layer per session.
type LayerState struct {
	idx     int
	cfg     config.LayerConfig
	weights LayerWeights

	conv  *ConvBuffer
	cache *AttentionCache

	normStats RunningNorm
}

// NewLayerState validates the weights against the config and builds the
// initial (empty) state.
func NewLayerState(idx int, lc config.LayerConfig, w LayerWeights) (*LayerState, error) {
	if err := w.validate(&lc, idx); err != nil {
		return nil, err
	}

	ls := &LayerState{idx: idx, cfg: lc, weights: w}
	var err error
	switch lc.Kind {
	case config.KindConv:
		ls.conv, err = NewConvBuffer(lc.Dim, lc.KernelSize, lc.Dilation, w.Conv.Taps, w.Conv.Bias)
	case config.KindAttention:
		ls.cache, err = NewAttentionCache(lc.Dim, lc.Context)
	}
	if err != nil {
		return nil, fmt.Errorf("layer %d: %w", idx, err)
	}
	return ls, nil
}

// Kind returns the layer kind.
func (ls *LayerState) Kind() config.LayerKind {
	return ls.cfg.Kind
}

// NormStats returns the running pre-norm statistics for diagnostics.
func (ls *LayerState) NormStats() *RunningNorm {
	return &ls.normStats
}

// Step consumes one frame and produces one frame, advancing all owned state
// exactly once. The block is pre-norm residual: x + f(norm(x)).
func (ls *LayerState) Step(frame []float32) ([]float32, error) {
	if len(frame) != ls.cfg.Dim {
		metrics.RecordPreconditionViolation("layer", "dim_mismatch")
		return nil, fmt.Errorf("layer %d (%s): frame dim mismatch: expected %d, got %d",
			ls.idx, ls.cfg.Kind, ls.cfg.Dim, len(frame))
	}

	rms := tensor.RMS(frame)
	ls.normStats.Update(rms)
	metrics.NormInputRMS.Observe(float64(rms))

	normed := ls.applyNorm(frame)

	var delta []float32
	var err error
	switch ls.cfg.Kind {
	case config.KindConv:
		delta, err = ls.conv.PushAndConvolve(normed)
	case config.KindAttention:
		delta, err = ls.attend(normed)
	}
	if err != nil {
		return nil, err
	}
	return tensor.Add(frame, delta), nil
}

func (ls *LayerState) applyNorm(frame []float32) []float32 {
	switch ls.cfg.Norm {
	case config.LayerNorm:
		return tensor.LayerNorm(frame, ls.weights.NormGain, ls.weights.NormBias, ls.cfg.Eps)
	default:
		return tensor.RMSNorm(frame, ls.weights.NormGain, ls.cfg.Eps)
	}
}

// attend projects the normed frame to q/k/v, appends k/v to the cache and
// runs causal multi-head attention over the full cached history, current
// timestep included.
func (ls *LayerState) attend(normed []float32) ([]float32, error) {
	dim := ls.cfg.Dim
	heads := ls.cfg.Heads
	headDim := ls.cfg.HeadDim
	w := ls.weights.Attn

	q := tensor.MatVec(w.Wq, normed, dim, dim)
	k := tensor.MatVec(w.Wk, normed, dim, dim)
	v := tensor.MatVec(w.Wv, normed, dim, dim)

	if err := ls.cache.Append(k, v); err != nil {
		return nil, err
	}
	keys, values := ls.cache.View()
	ctxLen := len(keys)

	attnOut := make([]float32, dim)
	invSqrt := float32(1.0 / math.Sqrt(float64(headDim)))
	scores := make([]float32, ctxLen)
	for h := 0; h < heads; h++ {
		qh := q[h*headDim : (h+1)*headDim]
		for t := 0; t < ctxLen; t++ {
			scores[t] = tensor.Dot(qh, keys[t][h*headDim:(h+1)*headDim]) * invSqrt
		}
		tensor.Softmax(scores)
		oh := attnOut[h*headDim : (h+1)*headDim]
		for t := 0; t < ctxLen; t++ {
			vh := values[t][h*headDim : (h+1)*headDim]
			wt := scores[t]
			for i := 0; i < headDim; i++ {
				oh[i] += wt * vh[i]
			}
		}
	}

	return tensor.MatVec(w.Wo, attnOut, dim, dim), nil
}

// Reset cascades to all owned sub-state.
func (ls *LayerState) Reset() {
	if ls.conv != nil {
		ls.conv.Reset()
	}
	if ls.cache != nil {
		ls.cache.Reset()
	}
	ls.normStats.Reset()
}
