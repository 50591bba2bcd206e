// Package arrowstream moves RVQ code batches between processes as Arrow
// record batches, either in-memory or over Arrow Flight.
package arrowstream

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// CodeBatch is a contiguous run of encoded frames from one stream: one code
// row per frame, optionally paired with the reconstructed embedding.
type CodeBatch struct {
	StreamID  string
	StartStep uint64
	// Codes[i] holds one index per quantizer stage for frame i.
	Codes [][]uint32
	// Embeddings[i] is the decoded embedding for frame i; may be nil when
	// only codes travel.
	Embeddings [][]float32
}

// Rows returns the number of frames in the batch.
func (b *CodeBatch) Rows() int {
	return len(b.Codes)
}

// Schema returns the Arrow schema for code batches with the given stage
// count and embedding dimension.
func Schema(stages, dim int) *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "codes", Type: arrow.FixedSizeListOf(int32(stages), arrow.PrimitiveTypes.Uint32)},
		{Name: "embedding", Type: arrow.FixedSizeListOf(int32(dim), arrow.PrimitiveTypes.Float32), Nullable: true},
		{Name: "stream_id", Type: arrow.BinaryTypes.String},
		{Name: "step", Type: arrow.PrimitiveTypes.Uint64},
	}, nil)
}

// BuildRecord converts a batch to an Arrow record against Schema(stages,
// dim). The caller releases the returned record.
func BuildRecord(mem memory.Allocator, batch *CodeBatch, stages, dim int) (arrow.Record, error) {
	if batch.Rows() == 0 {
		return nil, fmt.Errorf("empty code batch")
	}
	if mem == nil {
		mem = memory.DefaultAllocator
	}

	schema := Schema(stages, dim)
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	codesB := b.Field(0).(*array.FixedSizeListBuilder)
	codesVals := codesB.ValueBuilder().(*array.Uint32Builder)
	embB := b.Field(1).(*array.FixedSizeListBuilder)
	embVals := embB.ValueBuilder().(*array.Float32Builder)
	idB := b.Field(2).(*array.StringBuilder)
	stepB := b.Field(3).(*array.Uint64Builder)

	for i, row := range batch.Codes {
		if len(row) != stages {
			return nil, fmt.Errorf("row %d: got %d codes, want %d stages", i, len(row), stages)
		}
		codesB.Append(true)
		codesVals.AppendValues(row, nil)

		if batch.Embeddings != nil {
			emb := batch.Embeddings[i]
			if len(emb) != dim {
				return nil, fmt.Errorf("row %d: got %d embedding values, want %d", i, len(emb), dim)
			}
			embB.Append(true)
			embVals.AppendValues(emb, nil)
		} else {
			embB.AppendNull()
		}

		idB.Append(batch.StreamID)
		stepB.Append(batch.StartStep + uint64(i))
	}

	return b.NewRecord(), nil
}

// BatchFromRecord converts an Arrow record built with Schema back into a
// CodeBatch.
func BatchFromRecord(rec arrow.Record) (*CodeBatch, error) {
	if rec.NumCols() < 4 {
		return nil, fmt.Errorf("record has %d columns, want 4", rec.NumCols())
	}

	codesCol, ok := rec.Column(0).(*array.FixedSizeList)
	if !ok {
		return nil, fmt.Errorf("codes column: unexpected type %T", rec.Column(0))
	}
	embCol, ok := rec.Column(1).(*array.FixedSizeList)
	if !ok {
		return nil, fmt.Errorf("embedding column: unexpected type %T", rec.Column(1))
	}
	idCol, ok := rec.Column(2).(*array.String)
	if !ok {
		return nil, fmt.Errorf("stream_id column: unexpected type %T", rec.Column(2))
	}
	stepCol, ok := rec.Column(3).(*array.Uint64)
	if !ok {
		return nil, fmt.Errorf("step column: unexpected type %T", rec.Column(3))
	}

	stages := int(codesCol.DataType().(*arrow.FixedSizeListType).Len())
	dim := int(embCol.DataType().(*arrow.FixedSizeListType).Len())
	codesVals := codesCol.ListValues().(*array.Uint32)
	embVals := embCol.ListValues().(*array.Float32)

	rows := int(rec.NumRows())
	batch := &CodeBatch{Codes: make([][]uint32, rows)}
	if rows > 0 {
		batch.StreamID = idCol.Value(0)
		batch.StartStep = stepCol.Value(0)
	}

	hasEmb := false
	for i := 0; i < rows; i++ {
		row := make([]uint32, stages)
		for j := 0; j < stages; j++ {
			row[j] = codesVals.Value(i*stages + j)
		}
		batch.Codes[i] = row
		if embCol.IsValid(i) {
			hasEmb = true
		}
	}

	if hasEmb {
		batch.Embeddings = make([][]float32, rows)
		for i := 0; i < rows; i++ {
			if !embCol.IsValid(i) {
				continue
			}
			emb := make([]float32, dim)
			for j := 0; j < dim; j++ {
				emb[j] = embVals.Value(i*dim + j)
			}
			batch.Embeddings[i] = emb
		}
	}

	return batch, nil
}
