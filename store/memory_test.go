package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
)

type stubEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (e *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, ok := e.vectors[text]
		if !ok {
			v = []float32{1, 1}
		}
		out[i] = v
	}
	return out, nil
}

func memChunk(name, text string, id, total int) DocumentChunk {
	return DocumentChunk{
		Text:         text,
		DocumentName: name,
		DocumentType: "txt",
		ChunkID:      id,
		TotalChunks:  total,
	}
}

func TestMemoryStoreWriteAndSearch(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"red apples": {1, 0},
		"blue sky":   {0, 1},
		"crimson":    {0.9, 0.1},
	}}
	st := NewMemoryStore(embedder)
	ctx := context.Background()

	written, err := st.Write(ctx, []DocumentChunk{
		memChunk("colors.txt", "red apples", 0, 2),
		memChunk("colors.txt", "blue sky", 1, 2),
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if written != 2 {
		t.Fatalf("expected 2 written, got %d", written)
	}

	hits, err := st.Search(ctx, "crimson", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Chunk.Text != "red apples" {
		t.Fatalf("expected closest hit first, got %q", hits[0].Chunk.Text)
	}
	if hits[0].Distance >= hits[1].Distance {
		t.Fatalf("distances must ascend: %v then %v", hits[0].Distance, hits[1].Distance)
	}
	if hits[0].Distance < 0 {
		t.Fatalf("distance must be non-negative, got %v", hits[0].Distance)
	}
}

func TestMemoryStoreReplacesDocument(t *testing.T) {
	st := NewMemoryStore(&stubEmbedder{})
	ctx := context.Background()

	if _, err := st.Write(ctx, []DocumentChunk{
		memChunk("keep.txt", "kept chunk", 0, 1),
	}); err != nil {
		t.Fatalf("write keep: %v", err)
	}
	if _, err := st.Write(ctx, []DocumentChunk{
		memChunk("replace.txt", "old first", 0, 2),
		memChunk("replace.txt", "old second", 1, 2),
	}); err != nil {
		t.Fatalf("write old: %v", err)
	}

	if _, err := st.Write(ctx, []DocumentChunk{
		memChunk("replace.txt", "new only", 0, 1),
	}); err != nil {
		t.Fatalf("write new: %v", err)
	}

	if st.Len() != 2 {
		t.Fatalf("expected 2 records after replace, got %d", st.Len())
	}

	hits, err := st.Search(ctx, "anything", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for _, h := range hits {
		if h.Chunk.DocumentName == "replace.txt" && h.Chunk.Text != "new only" {
			t.Fatalf("stale chunk survived replace: %q", h.Chunk.Text)
		}
	}
}

func TestMemoryStoreLimit(t *testing.T) {
	st := NewMemoryStore(&stubEmbedder{})
	ctx := context.Background()

	chunks := make([]DocumentChunk, 0, 5)
	for i := 0; i < 5; i++ {
		chunks = append(chunks, memChunk("doc.txt", fmt.Sprintf("chunk %d", i), i, 5))
	}
	if _, err := st.Write(ctx, chunks); err != nil {
		t.Fatalf("write: %v", err)
	}

	hits, err := st.Search(ctx, "chunk", 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected limit to cap hits at 2, got %d", len(hits))
	}
}

func TestMemoryStoreReset(t *testing.T) {
	st := NewMemoryStore(&stubEmbedder{})
	ctx := context.Background()

	if _, err := st.Write(ctx, []DocumentChunk{memChunk("doc.txt", "content", 0, 1)}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := st.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if st.Len() != 0 {
		t.Fatalf("expected empty store after reset, got %d records", st.Len())
	}

	hits, err := st.Search(ctx, "content", 10)
	if err != nil {
		t.Fatalf("search after reset: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no hits after reset, got %d", len(hits))
	}
}

func TestMemoryStoreWriteEmpty(t *testing.T) {
	st := NewMemoryStore(nil)

	written, err := st.Write(context.Background(), nil)
	if err != nil {
		t.Fatalf("empty write must succeed, got %v", err)
	}
	if written != 0 {
		t.Fatalf("expected 0 written, got %d", written)
	}
}

func TestMemoryStoreEmbedderFailure(t *testing.T) {
	st := NewMemoryStore(&stubEmbedder{err: errors.New("connection refused")})
	ctx := context.Background()

	if _, err := st.Write(ctx, []DocumentChunk{memChunk("doc.txt", "content", 0, 1)}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("write: expected ErrUnavailable, got %v", err)
	}
	if _, err := st.Search(ctx, "content", 5); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("search: expected ErrUnavailable, got %v", err)
	}
}

func TestCosineSimilarity(t *testing.T) {
	cases := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1}, []float32{1, 2}, 0},
	}

	for _, tc := range cases {
		if got := cosineSimilarity(tc.a, tc.b); math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}
