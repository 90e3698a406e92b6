package store

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/fabfab/docrag/embeddings"
)

// PostgresStore keeps chunks in a pgvector table and embeds client-side
// through the configured embedder. Search orders by cosine distance.
type PostgresStore struct {
	pool      *pgxpool.Pool
	embedder  embeddings.Embedder
	dimension int
	logger    *log.Logger
}

// NewPostgresStore opens a connection pool and makes sure the chunk table and
// its vector index exist.
func NewPostgresStore(ctx context.Context, dsn string, embedder embeddings.Embedder, dimension int, logger *log.Logger) (*PostgresStore, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive")
	}
	if logger == nil {
		logger = log.Default()
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: create postgres pool: %v", ErrUnavailable, err)
	}

	s := &PostgresStore{
		pool:      pool,
		embedder:  embedder,
		dimension: dimension,
		logger:    logger,
	}

	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS document_chunks (
			id UUID PRIMARY KEY,
			document_name TEXT NOT NULL,
			document_type TEXT NOT NULL,
			chunk_id INT NOT NULL,
			total_chunks INT NOT NULL,
			content TEXT NOT NULL,
			context_before TEXT NOT NULL DEFAULT '',
			context_after TEXT NOT NULL DEFAULT '',
			embedding VECTOR(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(document_name, chunk_id)
		)`, s.dimension),
		"CREATE INDEX IF NOT EXISTS idx_document_chunks_name ON document_chunks(document_name)",
		"CREATE INDEX IF NOT EXISTS idx_document_chunks_embedding ON document_chunks USING ivfflat (embedding vector_cosine_ops)",
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: execute schema statement: %v", ErrUnavailable, err)
		}
	}
	return nil
}

func (s *PostgresStore) Write(ctx context.Context, chunks []DocumentChunk) (written int, err error) {
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

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return 0, fmt.Errorf("%w: begin tx: %v", ErrUnavailable, err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				s.logger.Printf("rollback error: %v", rbErr)
			}
		}
	}()

	for _, name := range documentNames(chunks) {
		if _, err = tx.Exec(ctx, "DELETE FROM document_chunks WHERE document_name = $1", name); err != nil {
			return 0, fmt.Errorf("%w: clear existing chunks: %v", ErrUnavailable, err)
		}
	}

	for i, chunk := range chunks {
		vec := pgvector.NewVector(vectors[i])
		if _, err = tx.Exec(ctx, `
			INSERT INTO document_chunks (id, document_name, document_type, chunk_id, total_chunks, content, context_before, context_after, embedding, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		`, uuid.New(), chunk.DocumentName, chunk.DocumentType, chunk.ChunkID, chunk.TotalChunks, chunk.Text, chunk.ContextBefore, chunk.ContextAfter, vec); err != nil {
			return 0, fmt.Errorf("%w: insert chunk %d: %v", ErrUnavailable, chunk.ChunkID, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("%w: commit tx: %v", ErrUnavailable, err)
	}

	return len(chunks), nil
}

func (s *PostgresStore) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
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

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: acquire connection: %v", ErrUnavailable, err)
	}
	defer conn.Release()

	probes := limit * 10
	if probes < 10 {
		probes = 10
	}
	if _, err := conn.Exec(ctx, fmt.Sprintf("SET ivfflat.probes = %d", probes)); err != nil {
		return nil, fmt.Errorf("%w: set ivfflat probes: %v", ErrUnavailable, err)
	}

	rows, err := conn.Query(ctx, `
		SELECT
			content,
			document_name,
			document_type,
			chunk_id,
			total_chunks,
			context_before,
			context_after,
			(embedding <=> $1::vector) AS distance
		FROM document_chunks
		ORDER BY embedding <=> $1::vector
		LIMIT $2
	`, pgvector.NewVector(vectors[0]), limit)
	if err != nil {
		return nil, fmt.Errorf("%w: query similar chunks: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	hits := make([]SearchHit, 0)
	for rows.Next() {
		var hit SearchHit
		if scanErr := rows.Scan(
			&hit.Chunk.Text,
			&hit.Chunk.DocumentName,
			&hit.Chunk.DocumentType,
			&hit.Chunk.ChunkID,
			&hit.Chunk.TotalChunks,
			&hit.Chunk.ContextBefore,
			&hit.Chunk.ContextAfter,
			&hit.Distance,
		); scanErr != nil {
			return nil, fmt.Errorf("%w: scan similar chunk: %v", ErrUnavailable, scanErr)
		}
		if hit.Distance < 0 {
			hit.Distance = 0
		}
		hits = append(hits, hit)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, rows.Err())
	}

	return hits, nil
}

func (s *PostgresStore) Reset(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "TRUNCATE document_chunks"); err != nil {
		return fmt.Errorf("%w: truncate document_chunks: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) Close(ctx context.Context) error {
	s.pool.Close()
	return nil
}

var _ Store = (*PostgresStore)(nil)
