package ingestion

import (
	"errors"
	"fmt"
	"strings"
)

// Default window geometry for SplitText, measured in runes.
const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 150
)

// ErrInvalidChunking reports a chunk size/overlap combination that cannot
// produce forward progress.
var ErrInvalidChunking = errors.New("invalid chunking configuration")

// SplitText splits text into chunks of at most size runes, with consecutive
// chunks sharing overlap runes. Cuts prefer the latest natural boundary inside
// the window (paragraph break, then line break, then space) and fall back to a
// hard cut at the window edge. The split is deterministic and every rune of the
// input lands in at least one chunk.
//
// Blank input yields no chunks. size must be positive and overlap must satisfy
// 0 <= overlap < size, otherwise ErrInvalidChunking is returned.
func SplitText(text string, size, overlap int) ([]string, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive, got %d", ErrInvalidChunking, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap must be in [0, size), got %d with size %d", ErrInvalidChunking, overlap, size)
	}

	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}, nil
	}

	chunks := make([]string, 0, len(runes)/(size-overlap)+1)
	start := 0
	for {
		end := start + size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}

		cut := end
		// A natural boundary is only usable when it leaves the window
		// ahead of the overlap region, so the next start still advances.
		if natural := lastBoundary(runes, start, end, start+overlap); natural >= 0 {
			cut = natural
		}

		chunks = append(chunks, string(runes[start:cut]))
		start = cut - overlap
	}

	return chunks, nil
}

// lastBoundary finds the rightmost cut position in runes[start:end] that lies
// strictly past floor, preferring paragraph breaks over line breaks over
// spaces. Each tier is scanned on its own, so a paragraph break at or before
// floor does not mask a later line break or space. The returned position sits
// just after the separator so it stays with the earlier chunk. Returns -1 when
// no tier has a qualifying separator.
func lastBoundary(runes []rune, start, end, floor int) int {
	lo := floor
	if lo <= start {
		lo = start + 1
	}
	for i := end - 1; i >= lo; i-- {
		if runes[i] == '\n' && runes[i-1] == '\n' {
			return i + 1
		}
	}
	for i := end - 1; i >= lo; i-- {
		if runes[i] == '\n' {
			return i + 1
		}
	}
	for i := end - 1; i >= lo; i-- {
		if runes[i] == ' ' {
			return i + 1
		}
	}
	return -1
}
