package ingestion

import "testing"

func TestBuildChunksLinksNeighbors(t *testing.T) {
	texts := []string{"first chunk", "second chunk", "third chunk"}

	chunks := BuildChunks("report.pdf", FormatPDF, texts)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}

	for i, chunk := range chunks {
		if chunk.Text != texts[i] {
			t.Fatalf("chunk %d text: expected %q, got %q", i, texts[i], chunk.Text)
		}
		if chunk.ChunkID != i {
			t.Fatalf("chunk %d has id %d", i, chunk.ChunkID)
		}
		if chunk.TotalChunks != 3 {
			t.Fatalf("chunk %d has total %d, expected 3", i, chunk.TotalChunks)
		}
		if chunk.DocumentName != "report.pdf" {
			t.Fatalf("chunk %d document name: %q", i, chunk.DocumentName)
		}
		if chunk.DocumentType != "pdf" {
			t.Fatalf("chunk %d document type: %q", i, chunk.DocumentType)
		}
	}

	if chunks[0].ContextBefore != "" {
		t.Fatalf("first chunk should have empty context before, got %q", chunks[0].ContextBefore)
	}
	if chunks[0].ContextAfter != texts[1] {
		t.Fatalf("first chunk context after: expected %q, got %q", texts[1], chunks[0].ContextAfter)
	}
	if chunks[1].ContextBefore != texts[0] || chunks[1].ContextAfter != texts[2] {
		t.Fatalf("middle chunk contexts wrong: %q / %q", chunks[1].ContextBefore, chunks[1].ContextAfter)
	}
	if chunks[2].ContextBefore != texts[1] {
		t.Fatalf("last chunk context before: expected %q, got %q", texts[1], chunks[2].ContextBefore)
	}
	if chunks[2].ContextAfter != "" {
		t.Fatalf("last chunk should have empty context after, got %q", chunks[2].ContextAfter)
	}
}

func TestBuildChunksSingle(t *testing.T) {
	chunks := BuildChunks("note.txt", FormatText, []string{"only chunk"})
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].ContextBefore != "" || chunks[0].ContextAfter != "" {
		t.Fatalf("single chunk should have empty contexts, got %q / %q", chunks[0].ContextBefore, chunks[0].ContextAfter)
	}
	if chunks[0].TotalChunks != 1 {
		t.Fatalf("expected total 1, got %d", chunks[0].TotalChunks)
	}
}

func TestBuildChunksEmpty(t *testing.T) {
	chunks := BuildChunks("empty.txt", FormatText, nil)
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks, got %d", len(chunks))
	}
}
