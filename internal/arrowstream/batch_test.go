package arrowstream

import (
	"context"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
)

func testBatch() *CodeBatch {
	return &CodeBatch{
		StreamID:  "session-1",
		StartStep: 40,
		Codes: [][]uint32{
			{1, 2, 3},
			{4, 5, 6},
			{7, 0, 1},
		},
		Embeddings: [][]float32{
			{0.1, 0.2},
			{0.3, 0.4},
			{-0.5, 0.5},
		},
	}
}

func TestRecordRoundTrip(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer mem.AssertSize(t, 0)

	in := testBatch()
	rec, err := BuildRecord(mem, in, 3, 2)
	if err != nil {
		t.Fatalf("BuildRecord: %v", err)
	}
	defer rec.Release()

	if rec.NumRows() != 3 {
		t.Fatalf("rows = %d, want 3", rec.NumRows())
	}

	out, err := BatchFromRecord(rec)
	if err != nil {
		t.Fatalf("BatchFromRecord: %v", err)
	}

	if out.StreamID != in.StreamID {
		t.Errorf("stream id = %q, want %q", out.StreamID, in.StreamID)
	}
	if out.StartStep != in.StartStep {
		t.Errorf("start step = %d, want %d", out.StartStep, in.StartStep)
	}
	if out.Rows() != in.Rows() {
		t.Fatalf("rows = %d, want %d", out.Rows(), in.Rows())
	}
	for i := range in.Codes {
		for j := range in.Codes[i] {
			if out.Codes[i][j] != in.Codes[i][j] {
				t.Errorf("codes[%d][%d] = %d, want %d", i, j, out.Codes[i][j], in.Codes[i][j])
			}
		}
		for j := range in.Embeddings[i] {
			if out.Embeddings[i][j] != in.Embeddings[i][j] {
				t.Errorf("emb[%d][%d] = %f, want %f", i, j, out.Embeddings[i][j], in.Embeddings[i][j])
			}
		}
	}
}

func TestRecordWithoutEmbeddings(t *testing.T) {
	in := testBatch()
	in.Embeddings = nil

	rec, err := BuildRecord(nil, in, 3, 2)
	if err != nil {
		t.Fatalf("BuildRecord: %v", err)
	}
	defer rec.Release()

	out, err := BatchFromRecord(rec)
	if err != nil {
		t.Fatalf("BatchFromRecord: %v", err)
	}
	if out.Embeddings != nil {
		t.Errorf("expected nil embeddings, got %v", out.Embeddings)
	}
	if out.Rows() != 3 {
		t.Errorf("rows = %d, want 3", out.Rows())
	}
}

func TestBuildRecordRejects(t *testing.T) {
	if _, err := BuildRecord(nil, &CodeBatch{}, 3, 2); err == nil {
		t.Error("expected error for empty batch")
	}

	short := testBatch()
	short.Codes[1] = []uint32{4}
	if _, err := BuildRecord(nil, short, 3, 2); err == nil {
		t.Error("expected error for short code row")
	}

	badEmb := testBatch()
	badEmb.Embeddings[0] = []float32{0.1}
	if _, err := BuildRecord(nil, badEmb, 3, 2); err == nil {
		t.Error("expected error for wrong embedding dim")
	}
}

func TestMemPublisher(t *testing.T) {
	p := &MemPublisher{}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b := testBatch()
		b.StartStep = uint64(i * 3)
		if err := p.Publish(ctx, b); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	if len(p.Batches) != 3 {
		t.Fatalf("got %d batches, want 3", len(p.Batches))
	}
	if p.Batches[2].StartStep != 6 {
		t.Errorf("batch order broken: start step %d, want 6", p.Batches[2].StartStep)
	}
	if err := p.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
}

func TestFlightPublisherRequiresConnect(t *testing.T) {
	p := NewFlightPublisher("localhost:0", 3, 2)
	if err := p.Publish(context.Background(), testBatch()); err == nil {
		t.Error("expected error before Connect")
	}
	if err := p.Close(); err != nil {
		t.Errorf("close without connect: %v", err)
	}
}
