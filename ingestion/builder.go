package ingestion

import "github.com/fabfab/docrag/store"

// BuildChunks assembles storage-ready records from the ordered chunk texts of a
// single document. Each record carries its zero-based position, the document
// chunk total, and the full text of its neighbors; the first and last chunks
// get empty context on the open side.
func BuildChunks(name string, format DocumentFormat, texts []string) []store.DocumentChunk {
	chunks := make([]store.DocumentChunk, 0, len(texts))
	for i, text := range texts {
		chunk := store.DocumentChunk{
			Text:         text,
			DocumentName: name,
			DocumentType: string(format),
			ChunkID:      i,
			TotalChunks:  len(texts),
		}
		if i > 0 {
			chunk.ContextBefore = texts[i-1]
		}
		if i < len(texts)-1 {
			chunk.ContextAfter = texts[i+1]
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}
