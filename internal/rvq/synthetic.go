package rvq

import (
	"math/rand"

	"github.com/23skdu/longbow-warble/internal/config"
)

// SyntheticCodebooks builds deterministic random codebooks for the demo
// driver and tests. Real deployments load trained centroids externally.
func SyntheticCodebooks(cfg config.RVQConfig, seed int64) []*Codebook {
	rng := rand.New(rand.NewSource(seed))
	books := make([]*Codebook, cfg.Stages)
	// Later stages quantize ever smaller residuals; shrinking the centroid
	// spread per stage keeps the synthetic codec's error profile realistic.
	scale := float32(1.0)
	for s := 0; s < cfg.Stages; s++ {
		data := make([]float32, cfg.CodebookSize*cfg.Dim)
		for i := range data {
			data[i] = (rng.Float32()*2 - 1) * scale
		}
		books[s], _ = NewCodebook(cfg.CodebookSize, cfg.Dim, data)
		scale *= 0.5
	}
	return books
}
