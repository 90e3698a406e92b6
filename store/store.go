// Package store persists document chunks and serves similarity queries over
// them. Backends share a single Store interface so the rest of the system
// never touches driver types.
package store

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/fabfab/docrag/config"
	"github.com/fabfab/docrag/embeddings"
)

// ErrUnavailable reports that the backing vector store (or its embedding
// collaborator) could not complete a request.
var ErrUnavailable = errors.New("vector store unavailable")

// DocumentChunk is one stored slice of a document, together with the full text
// of its neighbors. Field names follow the wire format of the HTTP API.
type DocumentChunk struct {
	Text          string `json:"text"`
	DocumentName  string `json:"document_name"`
	DocumentType  string `json:"document_type"`
	ChunkID       int    `json:"chunk_id"`
	TotalChunks   int    `json:"total_chunks"`
	ContextBefore string `json:"context_before"`
	ContextAfter  string `json:"context_after"`
}

// SearchHit pairs a stored chunk with its raw distance to the query. Distance
// is non-negative and zero only for an exact match.
type SearchHit struct {
	Chunk    DocumentChunk
	Distance float64
}

// Store writes, searches, and clears document chunks.
//
// Write replaces any chunks previously stored under the same document name
// before inserting, so re-uploading a document never leaves stale records.
// Search returns up to limit hits ordered by increasing distance. Reset drops
// every stored chunk and leaves an empty, usable store behind.
type Store interface {
	Write(ctx context.Context, chunks []DocumentChunk) (int, error)
	Search(ctx context.Context, query string, limit int) ([]SearchHit, error)
	Reset(ctx context.Context) error
	Close(ctx context.Context) error
}

// New opens the store backend selected by cfg.Store.Backend. Backends that
// embed client-side (pgvector, neo4j, memory) get their embedder from the
// embeddings configuration; the weaviate backend vectorizes server-side.
func New(ctx context.Context, cfg config.Config, logger *log.Logger) (Store, error) {
	if logger == nil {
		logger = log.Default()
	}

	switch cfg.Store.Backend {
	case config.BackendWeaviate:
		return NewWeaviateStore(ctx, WeaviateOptions{
			URL:          cfg.Store.WeaviateURL,
			APIKey:       cfg.Store.WeaviateAPIKey,
			Class:        cfg.Store.WeaviateClass,
			OpenAIAPIKey: cfg.OpenAIAPIKey,
		}, logger)
	case config.BackendPgvector:
		embedder, err := embeddings.NewEmbedder(cfg)
		if err != nil {
			return nil, fmt.Errorf("embedder setup: %w", err)
		}
		return NewPostgresStore(ctx, cfg.Store.PostgresDSN, embedder, cfg.Embeddings.Dimension, logger)
	case config.BackendNeo4j:
		embedder, err := embeddings.NewEmbedder(cfg)
		if err != nil {
			return nil, fmt.Errorf("embedder setup: %w", err)
		}
		return NewNeo4jStore(ctx, cfg.Store.Neo4jURI, cfg.Store.Neo4jUser, cfg.Store.Neo4jPass, embedder, cfg.Embeddings.Dimension, logger)
	case config.BackendMemory:
		embedder, err := embeddings.NewEmbedder(cfg)
		if err != nil {
			return nil, fmt.Errorf("embedder setup: %w", err)
		}
		return NewMemoryStore(embedder), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Store.Backend)
	}
}

// documentNames returns the distinct document names in chunks, in first-seen
// order.
func documentNames(chunks []DocumentChunk) []string {
	seen := make(map[string]struct{}, len(chunks))
	names := make([]string, 0, 1)
	for _, chunk := range chunks {
		if _, ok := seen[chunk.DocumentName]; ok {
			continue
		}
		seen[chunk.DocumentName] = struct{}{}
		names = append(names, chunk.DocumentName)
	}
	return names
}

// chunkTexts collects the chunk texts in order, for embedding.
func chunkTexts(chunks []DocumentChunk) []string {
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	return texts
}
