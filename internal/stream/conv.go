package stream

import (
	"fmt"

	"github.com/23skdu/longbow-warble/internal/metrics"
	"github.com/23skdu/longbow-warble/internal/tensor"
)

// ConvBuffer holds the trailing input frames a causal convolution needs to
// produce one output frame per input frame. With kernel size K and dilation d
// the history is exactly d*(K-1) frames, oldest first, and is zero-valued
// before the stream is primed. This reproduces offline convolution of a
// signal left-padded with d*(K-1) zeros.
type ConvBuffer struct {
	dim      int
	kernel   int
	dilation int

	// taps[t] is the row-major [dim][dim] weight matrix for kernel tap t,
	// taps[kernel-1] applying to the newest frame.
	taps [][]float32
	bias []float32

	history [][]float32
}

// NewConvBuffer builds a primed (all-zero history) causal conv buffer.
// taps must hold kernel matrices of dim*dim weights each.
func NewConvBuffer(dim, kernel, dilation int, taps [][]float32, bias []float32) (*ConvBuffer, error) {
	if dim <= 0 || kernel <= 0 || dilation < 1 {
		return nil, fmt.Errorf("invalid conv shape: dim=%d kernel=%d dilation=%d", dim, kernel, dilation)
	}
	if len(taps) != kernel {
		return nil, fmt.Errorf("conv taps mismatch: got %d matrices, kernel=%d", len(taps), kernel)
	}
	for t, w := range taps {
		if len(w) != dim*dim {
			return nil, fmt.Errorf("conv tap %d: got %d weights, want %d", t, len(w), dim*dim)
		}
	}
	if len(bias) != dim {
		return nil, fmt.Errorf("conv bias mismatch: got %d, want %d", len(bias), dim)
	}

	b := &ConvBuffer{
		dim:      dim,
		kernel:   kernel,
		dilation: dilation,
		taps:     taps,
		bias:     bias,
	}
	b.history = make([][]float32, b.HistoryLen())
	for i := range b.history {
		b.history[i] = make([]float32, dim)
	}
	metrics.ConvHistoryFrames.Observe(float64(b.HistoryLen()))
	return b, nil
}

// HistoryLen returns the invariant history length, dilation*(kernel-1).
func (b *ConvBuffer) HistoryLen() int {
	return b.dilation * (b.kernel - 1)
}

// PushAndConvolve evaluates the kernel over the stored history plus the new
// frame, then advances the history by one frame. The history length is the
// same before and after every call.
func (b *ConvBuffer) PushAndConvolve(frame []float32) ([]float32, error) {
	if len(frame) != b.dim {
		metrics.RecordPreconditionViolation("conv_buffer", "dim_mismatch")
		return nil, fmt.Errorf("conv buffer: frame dim mismatch: expected %d, got %d", b.dim, len(frame))
	}

	out := make([]float32, b.dim)
	copy(out, b.bias)

	// The conceptual window is history + frame. Tap t < kernel-1 lands on
	// history[t*dilation]; the last tap lands on the new frame.
	for t := 0; t < b.kernel-1; t++ {
		tensor.AddInPlace(out, tensor.MatVec(b.taps[t], b.history[t*b.dilation], b.dim, b.dim))
	}
	tensor.AddInPlace(out, tensor.MatVec(b.taps[b.kernel-1], frame, b.dim, b.dim))

	if len(b.history) > 0 {
		oldest := b.history[0]
		copy(b.history, b.history[1:])
		copy(oldest, frame)
		b.history[len(b.history)-1] = oldest
	}

	metrics.RecordConvPush()
	return out, nil
}

// Reset returns the history to the initial zero-padded state.
func (b *ConvBuffer) Reset() {
	for _, h := range b.history {
		for i := range h {
			h[i] = 0
		}
	}
}
