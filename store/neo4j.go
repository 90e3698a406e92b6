package store

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/fabfab/docrag/embeddings"
)

const neo4jVectorIndex = "document_chunks_embedding"

// Neo4jStore keeps chunks as DocumentChunk nodes with a native vector index.
// Embeddings are produced client-side; the index scores with cosine similarity
// and distance is derived as 1 - score.
type Neo4jStore struct {
	driver    neo4j.DriverWithContext
	embedder  embeddings.Embedder
	dimension int
	logger    *log.Logger
}

func NewNeo4jStore(ctx context.Context, uri, user, password string, embedder embeddings.Embedder, dimension int, logger *log.Logger) (*Neo4jStore, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive")
	}
	if logger == nil {
		logger = log.Default()
	}

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("%w: create neo4j driver: %v", ErrUnavailable, err)
	}

	s := &Neo4jStore{
		driver:    driver,
		embedder:  embedder,
		dimension: dimension,
		logger:    logger,
	}

	if err := s.ensureIndex(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Neo4jStore) ensureIndex(ctx context.Context) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := fmt.Sprintf(
		"CREATE VECTOR INDEX %s IF NOT EXISTS "+
			"FOR (c:DocumentChunk) ON (c.embedding) "+
			"OPTIONS {indexConfig: {"+
			" `vector.dimensions`: %d,"+
			" `vector.similarity_function`: 'cosine'"+
			"}}",
		neo4jVectorIndex, s.dimension,
	)

	result, err := session.Run(ctx, query, nil)
	if err != nil {
		return fmt.Errorf("%w: create vector index: %v", ErrUnavailable, err)
	}
	if _, err := result.Consume(ctx); err != nil {
		return fmt.Errorf("%w: create vector index: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *Neo4jStore) Write(ctx context.Context, chunks []DocumentChunk) (int, error) {
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

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, name := range documentNames(chunks) {
			if _, err := tx.Run(ctx, `
				MATCH (c:DocumentChunk {document_name: $name})
				DETACH DELETE c
			`, map[string]any{"name": name}); err != nil {
				return nil, fmt.Errorf("clear existing chunks: %w", err)
			}
		}

		for i, chunk := range chunks {
			if _, err := tx.Run(ctx, `
				CREATE (c:DocumentChunk {
					id: $id,
					text: $text,
					document_name: $document_name,
					document_type: $document_type,
					chunk_id: $chunk_id,
					total_chunks: $total_chunks,
					context_before: $context_before,
					context_after: $context_after,
					embedding: $embedding
				})
			`, map[string]any{
				"id":             uuid.New().String(),
				"text":           chunk.Text,
				"document_name":  chunk.DocumentName,
				"document_type":  chunk.DocumentType,
				"chunk_id":       chunk.ChunkID,
				"total_chunks":   chunk.TotalChunks,
				"context_before": chunk.ContextBefore,
				"context_after":  chunk.ContextAfter,
				"embedding":      vectors[i],
			}); err != nil {
				return nil, fmt.Errorf("create chunk node %d: %w", chunk.ChunkID, err)
			}
		}

		return nil, nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return len(chunks), nil
}

func (s *Neo4jStore) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
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

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		CALL db.index.vector.queryNodes($index, $k, $embedding)
		YIELD node, score
		RETURN node, score
	`, map[string]any{
		"index":     neo4jVectorIndex,
		"k":         limit,
		"embedding": vectors[0],
	})
	if err != nil {
		return nil, fmt.Errorf("%w: vector index query: %v", ErrUnavailable, err)
	}

	hits := make([]SearchHit, 0, limit)
	for result.Next(ctx) {
		record := result.Record()

		nodeVal, _ := record.Get("node")
		node, ok := nodeVal.(neo4j.Node)
		if !ok {
			continue
		}

		score := 0.0
		if scoreVal, ok := record.Get("score"); ok {
			if f, ok := scoreVal.(float64); ok {
				score = f
			}
		}
		distance := 1 - score
		if distance < 0 {
			distance = 0
		}

		hits = append(hits, SearchHit{
			Chunk: DocumentChunk{
				Text:          propString(node.Props, "text"),
				DocumentName:  propString(node.Props, "document_name"),
				DocumentType:  propString(node.Props, "document_type"),
				ChunkID:       propInt(node.Props, "chunk_id"),
				TotalChunks:   propInt(node.Props, "total_chunks"),
				ContextBefore: propString(node.Props, "context_before"),
				ContextAfter:  propString(node.Props, "context_after"),
			},
			Distance: distance,
		})
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, result.Err())
	}

	return hits, nil
}

func (s *Neo4jStore) Reset(ctx context.Context) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	result, err := session.Run(ctx, "MATCH (c:DocumentChunk) DETACH DELETE c", nil)
	if err != nil {
		return fmt.Errorf("%w: delete chunk nodes: %v", ErrUnavailable, err)
	}
	if _, err := result.Consume(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return s.ensureIndex(ctx)
}

func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func propString(props map[string]any, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

func propInt(props map[string]any, key string) int {
	if v, ok := props[key].(int64); ok {
		return int(v)
	}
	return 0
}

var _ Store = (*Neo4jStore)(nil)
