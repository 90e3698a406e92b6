package query

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/fabfab/docrag/store"
)

// DefaultLimit is the number of results returned when the caller does not ask
// for a specific count.
const DefaultLimit = 5

var (
	// ErrEmptyQuery reports a blank query string.
	ErrEmptyQuery = errors.New("query cannot be empty")
	// ErrInvalidLimit reports a non-positive result limit.
	ErrInvalidLimit = errors.New("limit must be positive")
)

// Service answers search requests against the chunk store.
type Service struct {
	store  store.Store
	logger *log.Logger
}

func NewService(st store.Store, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{store: st, logger: logger}
}

// Search runs a similarity search and shapes the hits into a ranked response.
// The query must be non-blank and limit positive; both are validated before
// the store is touched.
func (s *Service) Search(ctx context.Context, q string, limit int) (Response, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return Response{}, ErrEmptyQuery
	}
	if limit <= 0 {
		return Response{}, fmt.Errorf("%w: got %d", ErrInvalidLimit, limit)
	}
	if s.store == nil {
		return Response{}, fmt.Errorf("store not configured")
	}

	hits, err := s.store.Search(ctx, q, limit)
	if err != nil {
		return Response{}, fmt.Errorf("similarity search: %w", err)
	}

	s.logger.Printf("query %q returned %d hits", q, len(hits))
	return Response{Results: FormatHits(hits), Query: q}, nil
}
