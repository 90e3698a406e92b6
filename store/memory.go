package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/fabfab/docrag/embeddings"
)

// MemoryStore keeps chunks and their vectors in process memory. It exists for
// tests and single-node local runs; nothing survives a restart.
type MemoryStore struct {
	embedder embeddings.Embedder

	mu      sync.RWMutex
	records map[string]memoryRecord
}

type memoryRecord struct {
	chunk  DocumentChunk
	vector []float32
}

func NewMemoryStore(embedder embeddings.Embedder) *MemoryStore {
	return &MemoryStore{
		embedder: embedder,
		records:  make(map[string]memoryRecord),
	}
}

func (s *MemoryStore) Write(ctx context.Context, chunks []DocumentChunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	if s.embedder == nil {
		return 0, fmt.Errorf("%w: embedder not configured", ErrUnavailable)
	}

	vectors, err := s.embedder.Embed(ctx, chunkTexts(chunks))
	if err != nil {
		return 0, fmt.Errorf("%w: embed chunks: %v", ErrUnavailable, err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("%w: embedding count mismatch: have %d chunks, %d vectors", ErrUnavailable, len(chunks), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range documentNames(chunks) {
		for key, record := range s.records {
			if record.chunk.DocumentName == name {
				delete(s.records, key)
			}
		}
	}

	for i, chunk := range chunks {
		key := fmt.Sprintf("%s#%d", chunk.DocumentName, chunk.ChunkID)
		s.records[key] = memoryRecord{chunk: chunk, vector: vectors[i]}
	}

	return len(chunks), nil
}

func (s *MemoryStore) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	if s.embedder == nil {
		return nil, fmt.Errorf("%w: embedder not configured", ErrUnavailable)
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", ErrUnavailable, err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: embedder returned no vectors", ErrUnavailable)
	}
	queryVector := vectors[0]

	s.mu.RLock()
	hits := make([]SearchHit, 0, len(s.records))
	for _, record := range s.records {
		distance := 1 - cosineSimilarity(queryVector, record.vector)
		if distance < 0 {
			distance = 0
		}
		hits = append(hits, SearchHit{Chunk: record.chunk, Distance: distance})
	}
	s.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		// Tie-break on identity so map iteration order never leaks out.
		if hits[i].Chunk.DocumentName != hits[j].Chunk.DocumentName {
			return hits[i].Chunk.DocumentName < hits[j].Chunk.DocumentName
		}
		return hits[i].Chunk.ChunkID < hits[j].Chunk.ChunkID
	})

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *MemoryStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]memoryRecord)
	return nil
}

func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}

// Len reports the number of stored chunks.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var _ Store = (*MemoryStore)(nil)
