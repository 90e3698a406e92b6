package ingestion

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/fabfab/docrag/store"
)

// Service runs the upload pipeline: format detection, text extraction,
// chunking, context linking, and the store write.
type Service struct {
	store   store.Store
	size    int
	overlap int
	logger  *log.Logger
}

// Receipt summarizes a completed upload.
type Receipt struct {
	DocumentName string `json:"document_name"`
	Chunks       int    `json:"chunks"`
}

// NewService wires the upload pipeline to a store. The chunk geometry is
// taken as given; invalid combinations surface as ErrInvalidChunking on the
// first upload.
func NewService(st store.Store, chunkSize, chunkOverlap int, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}

	return &Service{
		store:   st,
		size:    chunkSize,
		overlap: chunkOverlap,
		logger:  logger,
	}
}

// Upload ingests a raw document payload. The format is inferred from the
// filename extension and the text extracted with the matching extractor. A
// document with no extractable text succeeds with a zero-chunk receipt and no
// store write.
func (s *Service) Upload(ctx context.Context, filename string, data []byte) (Receipt, error) {
	format := DetectFormat(filename)
	if format == FormatUnknown {
		return Receipt{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(filename))
	}

	extractor, err := ExtractorFor(format)
	if err != nil {
		return Receipt{}, err
	}

	text, err := extractor.Extract(ctx, data)
	if err != nil {
		return Receipt{}, fmt.Errorf("extract %s: %w", filename, err)
	}

	return s.UploadText(ctx, filename, format, text)
}

// UploadText ingests already-extracted text under the given document name.
func (s *Service) UploadText(ctx context.Context, name string, format DocumentFormat, text string) (Receipt, error) {
	if s.store == nil {
		return Receipt{}, fmt.Errorf("store not configured")
	}
	if strings.TrimSpace(name) == "" {
		return Receipt{}, fmt.Errorf("document name is required")
	}

	texts, err := SplitText(text, s.size, s.overlap)
	if err != nil {
		return Receipt{}, err
	}
	if len(texts) == 0 {
		s.logger.Printf("skip empty document %s", name)
		return Receipt{DocumentName: name, Chunks: 0}, nil
	}

	chunks := BuildChunks(name, format, texts)

	written, err := s.store.Write(ctx, chunks)
	if err != nil {
		return Receipt{}, fmt.Errorf("store chunks: %w", err)
	}

	s.logger.Printf("ingested %s (%d chunks)", name, written)
	return Receipt{DocumentName: name, Chunks: written}, nil
}
