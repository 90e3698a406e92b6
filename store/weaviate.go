package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// WeaviateStore is a minimal REST client to Weaviate. Chunks are vectorized
// server-side by the class vectorizer, so no local embedder is involved.
type WeaviateStore struct {
	baseURL   string
	apiKey    string
	openAIKey string
	class     string
	client    *http.Client
	logger    *log.Logger
}

type WeaviateOptions struct {
	URL    string
	APIKey string
	Class  string
	// OpenAIAPIKey is forwarded as X-OpenAI-Api-Key for the text2vec-openai
	// module.
	OpenAIAPIKey string
	Timeout      time.Duration
}

// NewWeaviateStore connects to Weaviate and creates the chunk class if it does
// not exist yet.
func NewWeaviateStore(ctx context.Context, opts WeaviateOptions, logger *log.Logger) (*WeaviateStore, error) {
	if logger == nil {
		logger = log.Default()
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	class := opts.Class
	if class == "" {
		class = "DocumentChunk"
	}

	s := &WeaviateStore{
		baseURL:   strings.TrimRight(opts.URL, "/"),
		apiKey:    opts.APIKey,
		openAIKey: opts.OpenAIAPIKey,
		class:     class,
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
	}

	if err := s.ensureClass(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *WeaviateStore) Write(ctx context.Context, chunks []DocumentChunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	for _, name := range documentNames(chunks) {
		if err := s.deleteDocument(ctx, name); err != nil {
			return 0, err
		}
	}

	objects := make([]weaviateObject, 0, len(chunks))
	for _, chunk := range chunks {
		objects = append(objects, weaviateObject{
			Class:      s.class,
			ID:         uuid.New().String(),
			Properties: chunk,
		})
	}

	var results []weaviateBatchResult
	if err := s.do(ctx, http.MethodPost, "/v1/batch/objects", weaviateBatchRequest{Objects: objects}, &results); err != nil {
		return 0, err
	}

	for _, result := range results {
		if msg := result.errorMessage(); msg != "" {
			return 0, fmt.Errorf("%w: batch insert: %s", ErrUnavailable, msg)
		}
	}

	return len(chunks), nil
}

func (s *WeaviateStore) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	concept, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	gql := fmt.Sprintf(
		`{ Get { %s(nearText: {concepts: [%s]}, limit: %d) { text document_name document_type chunk_id total_chunks context_before context_after _additional { distance } } } }`,
		s.class, concept, limit,
	)

	var resp weaviateGraphQLResponse
	if err := s.do(ctx, http.MethodPost, "/v1/graphql", map[string]string{"query": gql}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("%w: graphql: %s", ErrUnavailable, resp.Errors[0].Message)
	}

	rows := resp.Data.Get[s.class]
	hits := make([]SearchHit, 0, len(rows))
	for _, row := range rows {
		distance := row.Additional.Distance
		if distance < 0 {
			distance = 0
		}
		hits = append(hits, SearchHit{
			Chunk: DocumentChunk{
				Text:          row.Text,
				DocumentName:  row.DocumentName,
				DocumentType:  row.DocumentType,
				ChunkID:       row.ChunkID,
				TotalChunks:   row.TotalChunks,
				ContextBefore: row.ContextBefore,
				ContextAfter:  row.ContextAfter,
			},
			Distance: distance,
		})
	}

	return hits, nil
}

// Reset drops the chunk class entirely and recreates it empty.
func (s *WeaviateStore) Reset(ctx context.Context) error {
	if err := s.do(ctx, http.MethodDelete, "/v1/schema/"+url.PathEscape(s.class), nil, nil); err != nil {
		return err
	}
	return s.ensureClass(ctx)
}

func (s *WeaviateStore) Close(ctx context.Context) error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *WeaviateStore) deleteDocument(ctx context.Context, name string) error {
	body := map[string]any{
		"match": map[string]any{
			"class": s.class,
			"where": map[string]any{
				"path":      []string{"document_name"},
				"operator":  "Equal",
				"valueText": name,
			},
		},
		"output": "minimal",
	}
	return s.do(ctx, http.MethodDelete, "/v1/batch/objects", body, nil)
}

func (s *WeaviateStore) ensureClass(ctx context.Context) error {
	exists, err := s.classExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	schema := map[string]any{
		"class":      s.class,
		"vectorizer": "text2vec-openai",
		"properties": []map[string]any{
			{"name": "text", "dataType": []string{"text"}},
			{"name": "document_name", "dataType": []string{"text"}},
			{"name": "document_type", "dataType": []string{"text"}},
			{"name": "chunk_id", "dataType": []string{"int"}},
			{"name": "total_chunks", "dataType": []string{"int"}},
			{"name": "context_before", "dataType": []string{"text"}},
			{"name": "context_after", "dataType": []string{"text"}},
		},
	}

	if err := s.do(ctx, http.MethodPost, "/v1/schema", schema, nil); err != nil {
		return err
	}

	s.logger.Printf("created weaviate class %s", s.class)
	return nil
}

func (s *WeaviateStore) classExists(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v1/schema/"+url.PathEscape(s.class), nil)
	if err != nil {
		return false, fmt.Errorf("create schema request: %w", err)
	}
	s.setHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("%w: weaviate http %d on schema lookup", ErrUnavailable, resp.StatusCode)
	}
}

func (s *WeaviateStore) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	s.setHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: weaviate http %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
		}
	}

	return nil
}

func (s *WeaviateStore) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	if s.openAIKey != "" {
		req.Header.Set("X-OpenAI-Api-Key", s.openAIKey)
	}
}

type weaviateObject struct {
	Class      string        `json:"class"`
	ID         string        `json:"id"`
	Properties DocumentChunk `json:"properties"`
}

type weaviateBatchRequest struct {
	Objects []weaviateObject `json:"objects"`
}

type weaviateBatchResult struct {
	Result struct {
		Status string `json:"status"`
		Errors *struct {
			Error []struct {
				Message string `json:"message"`
			} `json:"error"`
		} `json:"errors"`
	} `json:"result"`
}

func (r weaviateBatchResult) errorMessage() string {
	if r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
		return r.Result.Errors.Error[0].Message
	}
	if strings.EqualFold(r.Result.Status, "failed") {
		return "object rejected"
	}
	return ""
}

type weaviateGraphQLResponse struct {
	Data struct {
		Get map[string][]weaviateHit `json:"Get"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type weaviateHit struct {
	Text          string `json:"text"`
	DocumentName  string `json:"document_name"`
	DocumentType  string `json:"document_type"`
	ChunkID       int    `json:"chunk_id"`
	TotalChunks   int    `json:"total_chunks"`
	ContextBefore string `json:"context_before"`
	ContextAfter  string `json:"context_after"`
	Additional    struct {
		Distance float64 `json:"distance"`
	} `json:"_additional"`
}

var _ Store = (*WeaviateStore)(nil)
