// Package rvq implements residual vector quantization: the multi-stage
// nearest-centroid codec that maps continuous audio embeddings to short
// sequences of discrete codebook indices and back.
package rvq

import (
	"fmt"
	"math"
	"time"

	"github.com/23skdu/longbow-warble/internal/config"
	"github.com/23skdu/longbow-warble/internal/metrics"
	"github.com/23skdu/longbow-warble/internal/tensor"
)

// Codebook is one stage's fixed set of centroid vectors. Immutable at
// inference time and safe for concurrent read-only use by any number of
// sessions.
type Codebook struct {
	size int
	dim  int
	// centroids is row-major [size][dim].
	centroids []float32
}

// NewCodebook wraps externally loaded centroid data.
func NewCodebook(size, dim int, centroids []float32) (*Codebook, error) {
	if size <= 0 || dim <= 0 {
		return nil, fmt.Errorf("invalid codebook shape: size=%d dim=%d", size, dim)
	}
	if len(centroids) != size*dim {
		return nil, fmt.Errorf("codebook data mismatch: got %d values, want %d", len(centroids), size*dim)
	}
	return &Codebook{size: size, dim: dim, centroids: centroids}, nil
}

// Size returns the number of centroids.
func (cb *Codebook) Size() int {
	return cb.size
}

// Centroid returns centroid i as a read-only view.
func (cb *Codebook) Centroid(i int) []float32 {
	return cb.centroids[i*cb.dim : (i+1)*cb.dim]
}

// nearest returns the index of the centroid closest to v by squared
// Euclidean distance. Ties resolve to the lowest index: the scan only
// replaces the best candidate on a strict improvement.
func (cb *Codebook) nearest(v []float32) int {
	best := 0
	bestDist := tensor.SquaredDistance(v, cb.Centroid(0))
	for i := 1; i < cb.size; i++ {
		d := tensor.SquaredDistance(v, cb.Centroid(i))
		if d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

// Quantizer chains one codebook per stage. Stage k quantizes the residual
// left by stages 1..k-1, so code order is load-bearing: decoding a permuted
// sequence reconstructs the wrong vector.
type Quantizer struct {
	cfg   config.RVQConfig
	books []*Codebook
}

// NewQuantizer validates the configuration and the per-stage codebooks.
func NewQuantizer(cfg config.RVQConfig, books []*Codebook) (*Quantizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rvq config: %w", err)
	}
	if len(books) != cfg.Stages {
		return nil, fmt.Errorf("codebook count mismatch: got %d, config has %d stages",
			len(books), cfg.Stages)
	}
	for s, cb := range books {
		if cb.size != cfg.CodebookSize {
			return nil, fmt.Errorf("stage %d: codebook size mismatch: got %d, want %d",
				s, cb.size, cfg.CodebookSize)
		}
		if cb.dim != cfg.Dim {
			return nil, fmt.Errorf("stage %d: codebook dim mismatch: got %d, want %d",
				s, cb.dim, cfg.Dim)
		}
	}
	return &Quantizer{cfg: cfg, books: books}, nil
}

// Stages returns the configured stage count.
func (q *Quantizer) Stages() int {
	return q.cfg.Stages
}

// Dim returns the embedding dimension.
func (q *Quantizer) Dim() int {
	return q.cfg.Dim
}

// Encode maps a vector to one codebook index per stage, in stage order.
// Deterministic: identical input and codebooks always produce identical
// codes.
func (q *Quantizer) Encode(vec []float32) ([]int, error) {
	if len(vec) != q.cfg.Dim {
		metrics.RecordPreconditionViolation("rvq", "dim_mismatch")
		return nil, fmt.Errorf("rvq encode: vector dim mismatch: expected %d, got %d",
			q.cfg.Dim, len(vec))
	}

	start := time.Now()
	codes := make([]int, q.cfg.Stages)
	residual := make([]float32, q.cfg.Dim)
	copy(residual, vec)

	for s, cb := range q.books {
		idx := cb.nearest(residual)
		codes[s] = idx
		centroid := cb.Centroid(idx)
		for i := range residual {
			residual[i] -= centroid[i]
		}
	}

	// After the loop the residual is exactly input - decode(codes).
	errNorm := 0.0
	for _, r := range residual {
		errNorm += float64(r) * float64(r)
	}
	metrics.RecordRVQEncode(q.cfg.Stages, math.Sqrt(errNorm), time.Since(start))
	return codes, nil
}

// Decode sums the chosen centroids across all stages, the algebraic inverse
// of encode's residual decomposition. Lossy by construction.
func (q *Quantizer) Decode(codes []int) ([]float32, error) {
	if len(codes) != q.cfg.Stages {
		metrics.RecordPreconditionViolation("rvq", "stage_mismatch")
		return nil, fmt.Errorf("rvq decode: code count mismatch: expected %d stages, got %d",
			q.cfg.Stages, len(codes))
	}
	return q.decode(codes)
}

// DecodePrefix reconstructs from the first n stages only, zeroing the
// contribution of the rest. Reconstruction error is non-increasing in n.
func (q *Quantizer) DecodePrefix(codes []int, n int) ([]float32, error) {
	if n < 0 || n > len(codes) {
		metrics.RecordPreconditionViolation("rvq", "stage_mismatch")
		return nil, fmt.Errorf("rvq decode: invalid prefix length %d for %d codes", n, len(codes))
	}
	if len(codes) != q.cfg.Stages {
		metrics.RecordPreconditionViolation("rvq", "stage_mismatch")
		return nil, fmt.Errorf("rvq decode: code count mismatch: expected %d stages, got %d",
			q.cfg.Stages, len(codes))
	}
	return q.decode(codes[:n])
}

func (q *Quantizer) decode(codes []int) ([]float32, error) {
	out := make([]float32, q.cfg.Dim)
	for s, idx := range codes {
		if idx < 0 || idx >= q.cfg.CodebookSize {
			metrics.RecordPreconditionViolation("rvq", "index_out_of_range")
			return nil, fmt.Errorf("rvq decode: stage %d index out of range: %d (codebook size %d)",
				s, idx, q.cfg.CodebookSize)
		}
		tensor.AddInPlace(out, q.books[s].Centroid(idx))
	}
	return out, nil
}

// ReconstructionError returns the Euclidean distance between vec and its
// encode/decode round trip.
func (q *Quantizer) ReconstructionError(vec []float32) (float64, error) {
	codes, err := q.Encode(vec)
	if err != nil {
		return 0, err
	}
	rec, err := q.Decode(codes)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(float64(tensor.SquaredDistance(vec, rec))), nil
}
