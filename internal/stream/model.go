// Package stream implements the streaming execution core: causal conv
// buffering, cached attention and the per-session layer stack that makes
// frame-at-a-time evaluation produce the same numbers as offline evaluation.
package stream

import (
	"fmt"
	"time"

	"github.com/23skdu/longbow-warble/internal/config"
	"github.com/23skdu/longbow-warble/internal/logger"
	"github.com/23skdu/longbow-warble/internal/metrics"
)

// Model owns the ordered stack of layer states for one streaming session.
// It is the explicit session object: one Model per concurrent stream, no
// sharing. Step and Reset must be serialized by the caller; independent
// Models may run in parallel.
type Model struct {
	cfg    config.StreamConfig
	layers []*LayerState
	steps  int64
	log    *logger.Logger
}

// NewModel validates the configuration and the supplied weights and builds a
// fresh session. Any error here is a configuration fault, fatal and never
// recoverable.
func NewModel(cfg config.StreamConfig, weights []LayerWeights) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid stream config: %w", err)
	}
	if len(weights) != len(cfg.Layers) {
		return nil, fmt.Errorf("weights mismatch: got %d layer weights, config has %d layers",
			len(weights), len(cfg.Layers))
	}

	m := &Model{
		cfg:    cfg,
		layers: make([]*LayerState, len(cfg.Layers)),
		log:    logger.Log.With("stream"),
	}
	for i := range cfg.Layers {
		ls, err := NewLayerState(i, cfg.Layers[i], weights[i])
		if err != nil {
			return nil, err
		}
		m.layers[i] = ls
	}

	m.log.Debug("session created", "layers", len(m.layers), "dim", cfg.Dim)
	return m, nil
}

// Config returns the immutable session configuration.
func (m *Model) Config() config.StreamConfig {
	return m.cfg
}

// Layers returns the number of layers in the stack.
func (m *Model) Layers() int {
	return len(m.layers)
}

// Layer returns the state of layer i for inspection.
func (m *Model) Layer(i int) *LayerState {
	return m.layers[i]
}

// Steps returns the number of frames processed since the last reset.
func (m *Model) Steps() int64 {
	return m.steps
}

// Step pushes one frame through every layer in order, each layer's output
// feeding the next. The input dimension is checked before any layer mutates;
// once past that check a step cannot fail mid-stack (inter-layer dimensions
// are fixed by the validated config), so a step is always applied fully or
// not at all.
func (m *Model) Step(frame []float32) ([]float32, error) {
	if len(frame) != m.cfg.Dim {
		metrics.RecordPreconditionViolation("model", "dim_mismatch")
		return nil, fmt.Errorf("model step: frame dim mismatch: expected %d, got %d",
			m.cfg.Dim, len(frame))
	}

	start := time.Now()
	cur := frame
	for _, ls := range m.layers {
		layerStart := time.Now()
		out, err := ls.Step(cur)
		if err != nil {
			// Unreachable with a validated config; surfaced for diagnosis
			// rather than swallowed.
			return nil, fmt.Errorf("step %d: %w", m.steps, err)
		}
		metrics.RecordLayerStep(ls.Kind().String(), time.Since(layerStart))
		cur = out
	}
	m.steps++
	metrics.RecordStep(time.Since(start))
	return cur, nil
}

// Reset clears every layer back to the freshly constructed state without
// touching configuration or weights. Idempotent.
func (m *Model) Reset() {
	for _, ls := range m.layers {
		ls.Reset()
	}
	m.steps = 0
	metrics.StreamResetsTotal.Inc()
	m.log.Debug("session reset")
}
