package config

import "testing"

func validConvConfig() StreamConfig {
	return StreamConfig{
		Dim: 8,
		Layers: []LayerConfig{
			DefaultLayer(8),
			DefaultLayer(8),
		},
	}
}

func TestValidateOK(t *testing.T) {
	cfg := validConvConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidateAttentionOK(t *testing.T) {
	cfg := StreamConfig{
		Dim:    16,
		Layers: []LayerConfig{DefaultAttentionLayer(16, 4)},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*StreamConfig)
	}{
		{"zero dim", func(c *StreamConfig) { c.Dim = 0 }},
		{"no layers", func(c *StreamConfig) { c.Layers = nil }},
		{"zero kernel", func(c *StreamConfig) { c.Layers[0].KernelSize = 0 }},
		{"negative kernel", func(c *StreamConfig) { c.Layers[0].KernelSize = -3 }},
		{"zero dilation", func(c *StreamConfig) { c.Layers[0].Dilation = 0 }},
		{"zero eps", func(c *StreamConfig) { c.Layers[0].Eps = 0 }},
		{"dim chain broken", func(c *StreamConfig) { c.Layers[1].Dim = 4 }},
		{"layer dim zero", func(c *StreamConfig) { c.Layers[0].Dim = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConvConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error for %s", tc.name)
			}
		})
	}
}

func TestValidateAttentionRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*LayerConfig)
	}{
		{"zero heads", func(lc *LayerConfig) { lc.Heads = 0 }},
		{"zero head dim", func(lc *LayerConfig) { lc.HeadDim = 0 }},
		{"heads times head_dim mismatch", func(lc *LayerConfig) { lc.HeadDim = 3 }},
		{"negative context", func(lc *LayerConfig) { lc.Context = -1 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := StreamConfig{
				Dim:    16,
				Layers: []LayerConfig{DefaultAttentionLayer(16, 4)},
			}
			tc.mutate(&cfg.Layers[0])
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error for %s", tc.name)
			}
		})
	}
}

func TestHistoryLen(t *testing.T) {
	lc := DefaultLayer(4)
	lc.KernelSize = 3
	lc.Dilation = 1
	if got := lc.HistoryLen(); got != 2 {
		t.Errorf("kernel 3 dilation 1: history = %d, want 2", got)
	}

	lc.Dilation = 4
	if got := lc.HistoryLen(); got != 8 {
		t.Errorf("kernel 3 dilation 4: history = %d, want 8", got)
	}

	lc.KernelSize = 1
	if got := lc.HistoryLen(); got != 0 {
		t.Errorf("kernel 1: history = %d, want 0", got)
	}
}

func TestParseNormType(t *testing.T) {
	for _, s := range []string{"rmsnorm", "RMS", "RmsNorm"} {
		n, err := ParseNormType(s)
		if err != nil || n != RMSNorm {
			t.Errorf("ParseNormType(%q) = %v, %v; want RMSNorm", s, n, err)
		}
	}
	for _, s := range []string{"layernorm", "LN"} {
		n, err := ParseNormType(s)
		if err != nil || n != LayerNorm {
			t.Errorf("ParseNormType(%q) = %v, %v; want LayerNorm", s, n, err)
		}
	}
	if _, err := ParseNormType("batchnorm"); err == nil {
		t.Error("expected error for unknown norm type")
	}
}

func TestRVQConfigValidate(t *testing.T) {
	good := RVQConfig{Stages: 8, CodebookSize: 1024, Dim: 64}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected valid rvq config, got: %v", err)
	}

	for _, bad := range []RVQConfig{
		{Stages: 0, CodebookSize: 1024, Dim: 64},
		{Stages: 8, CodebookSize: 0, Dim: 64},
		{Stages: 8, CodebookSize: 1024, Dim: 0},
	} {
		if err := bad.Validate(); err == nil {
			t.Errorf("expected error for %+v", bad)
		}
	}
}
