package stream

import (
	"testing"

	"github.com/23skdu/longbow-warble/internal/config"
)

func TestRunningNorm(t *testing.T) {
	var r RunningNorm
	if r.Value() != 0 || r.Count() != 0 {
		t.Fatal("fresh tracker not zero")
	}

	r.Update(2.0)
	if r.Value() != 2.0 {
		t.Errorf("first observation: value = %f, want 2", r.Value())
	}

	r.Update(4.0)
	if !(r.Value() > 2.0 && r.Value() < 4.0) {
		t.Errorf("ema out of range: %f", r.Value())
	}
	if r.Count() != 2 {
		t.Errorf("count = %d, want 2", r.Count())
	}

	r.Reset()
	if r.Value() != 0 || r.Count() != 0 {
		t.Error("reset did not clear tracker")
	}
}

func TestLayerStateConvStep(t *testing.T) {
	lc := config.DefaultLayer(4)
	cfg := config.StreamConfig{Dim: 4, Layers: []config.LayerConfig{lc}}
	w := SyntheticWeights(&cfg, 1)[0]

	ls, err := NewLayerState(0, lc, w)
	if err != nil {
		t.Fatalf("NewLayerState: %v", err)
	}
	if ls.Kind() != config.KindConv {
		t.Errorf("kind = %v, want conv", ls.Kind())
	}

	out, err := ls.Step([]float32{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("output dim = %d, want 4", len(out))
	}
	if ls.NormStats().Count() != 1 {
		t.Errorf("norm stats count = %d, want 1", ls.NormStats().Count())
	}
}

func TestLayerStateDimMismatch(t *testing.T) {
	lc := config.DefaultAttentionLayer(4, 2)
	cfg := config.StreamConfig{Dim: 4, Layers: []config.LayerConfig{lc}}
	w := SyntheticWeights(&cfg, 1)[0]

	ls, err := NewLayerState(0, lc, w)
	if err != nil {
		t.Fatalf("NewLayerState: %v", err)
	}

	if _, err := ls.Step([]float32{1}); err == nil {
		t.Fatal("expected dim mismatch error")
	}
	// Rejected before the cache was touched.
	if ls.cache.Len() != 0 {
		t.Errorf("cache mutated by rejected step: len = %d", ls.cache.Len())
	}
}

func TestLayerStateResetCascades(t *testing.T) {
	lc := config.DefaultAttentionLayer(4, 2)
	cfg := config.StreamConfig{Dim: 4, Layers: []config.LayerConfig{lc}}
	w := SyntheticWeights(&cfg, 1)[0]

	ls, _ := NewLayerState(0, lc, w)
	for i := 0; i < 3; i++ {
		if _, err := ls.Step([]float32{1, 0, -1, 0}); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	if ls.cache.Len() != 3 {
		t.Fatalf("cache len = %d, want 3", ls.cache.Len())
	}

	ls.Reset()
	if ls.cache.Len() != 0 {
		t.Error("reset did not clear attention cache")
	}
	if ls.NormStats().Count() != 0 {
		t.Error("reset did not clear norm stats")
	}
}

func TestNewLayerStateWeightValidation(t *testing.T) {
	lc := config.DefaultLayer(4)

	// Missing conv weights
	if _, err := NewLayerState(0, lc, LayerWeights{NormGain: make([]float32, 4)}); err == nil {
		t.Error("expected error for missing conv weights")
	}

	// Attention weights on a conv layer
	w := LayerWeights{
		NormGain: make([]float32, 4),
		Attn:     &AttentionWeights{},
	}
	if _, err := NewLayerState(0, lc, w); err == nil {
		t.Error("expected error for wrong weight kind")
	}

	// LayerNorm requires a bias vector
	lnc := config.DefaultLayer(4)
	lnc.Norm = config.LayerNorm
	cfg := config.StreamConfig{Dim: 4, Layers: []config.LayerConfig{lnc}}
	lw := SyntheticWeights(&cfg, 1)[0]
	lw.NormBias = nil
	if _, err := NewLayerState(0, lnc, lw); err == nil {
		t.Error("expected error for missing layernorm bias")
	}
}
