package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/fabfab/docrag/config"
	"github.com/fabfab/docrag/query"
	"github.com/fabfab/docrag/store"
)

// letterEmbedder maps text to its letter frequencies. Crude, but deterministic
// and good enough to rank "red" against "blue".
type letterEmbedder struct{}

func (letterEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, 26)
		for _, r := range strings.ToLower(text) {
			if r >= 'a' && r <= 'z' {
				vec[r-'a']++
			}
		}
		out[i] = vec
	}
	return out, nil
}

type downStore struct{}

func (downStore) Write(ctx context.Context, chunks []store.DocumentChunk) (int, error) {
	return 0, store.ErrUnavailable
}

func (downStore) Search(ctx context.Context, q string, limit int) ([]store.SearchHit, error) {
	return nil, store.ErrUnavailable
}

func (downStore) Reset(ctx context.Context) error { return store.ErrUnavailable }

func (downStore) Close(ctx context.Context) error { return nil }

func newTestServer(st store.Store) *Server {
	cfg := config.Config{
		Chunking: config.ChunkingConfig{Size: 500, Overlap: 150},
	}
	return New(cfg, st, log.New(io.Discard, "", 0))
}

func newMemoryServer() *Server {
	return newTestServer(store.NewMemoryStore(letterEmbedder{}))
}

func doJSON(t *testing.T, srv *Server, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func uploadText(t *testing.T, srv *Server, name, docType, text string) *httptest.ResponseRecorder {
	t.Helper()
	return doJSON(t, srv, http.MethodPost, "/upload", uploadRequest{
		DocumentName: name,
		DocumentType: docType,
		Text:         text,
	})
}

func TestUploadQueryDeleteRoundTrip(t *testing.T) {
	srv := newMemoryServer()

	rec := uploadText(t, srv, "red.txt", "txt", "red red red apples")
	if rec.Code != http.StatusOK {
		t.Fatalf("upload red: status %d, body %s", rec.Code, rec.Body.String())
	}
	var up uploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &up); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	if !up.Success || up.Chunks != 1 {
		t.Fatalf("unexpected upload response: %+v", up)
	}

	if rec := uploadText(t, srv, "blue.txt", "txt", "blue blue blue sky"); rec.Code != http.StatusOK {
		t.Fatalf("upload blue: status %d", rec.Code)
	}

	params := url.Values{"query": {"red"}, "limit": {"5"}}
	rec = doJSON(t, srv, http.MethodGet, "/query?"+params.Encode(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("query: status %d, body %s", rec.Code, rec.Body.String())
	}

	var resp query.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode query response: %v", err)
	}
	if resp.Query != "red" {
		t.Fatalf("unexpected query echo: %q", resp.Query)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(resp.Results))
	}
	if resp.Results[0].DocumentName != "red.txt" {
		t.Fatalf("expected red.txt first, got %s", resp.Results[0].DocumentName)
	}
	if resp.Results[0].RelevanceScore <= resp.Results[1].RelevanceScore {
		t.Fatalf("scores must rank red.txt above blue.txt: %v vs %v",
			resp.Results[0].RelevanceScore, resp.Results[1].RelevanceScore)
	}
	if s := resp.Results[0].RelevanceScore; s <= 0 || s > 1 {
		t.Fatalf("score out of range: %v", s)
	}

	rec = doJSON(t, srv, http.MethodDelete, "/delete", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodGet, "/query?query=red", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("query after delete: status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"results":[]`) {
		t.Fatalf("empty results must marshal as [], got %s", rec.Body.String())
	}
}

func TestUploadMultipartFile(t *testing.T) {
	srv := newMemoryServer()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "notes.txt")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write([]byte("uploaded through a form")); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}
	var up uploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &up); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !up.Success || up.Chunks != 1 {
		t.Fatalf("unexpected response: %+v", up)
	}
	if up.Message != "processed notes.txt" {
		t.Fatalf("unexpected message: %q", up.Message)
	}
}

func TestUploadMultipartRejectsUnknownExtension(t *testing.T) {
	srv := newMemoryServer()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "setup.exe")
	fw.Write([]byte("binary"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "not allowed") {
		t.Fatalf("expected a format error, got %s", rec.Body.String())
	}
}

func TestUploadMultipartRequiresFileField(t *testing.T) {
	srv := newMemoryServer()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("name", "no file here")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUploadTextValidation(t *testing.T) {
	srv := newMemoryServer()

	if rec := uploadText(t, srv, "", "txt", "content"); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing name: expected 400, got %d", rec.Code)
	}
	if rec := uploadText(t, srv, "doc.xyz", "xyz", "content"); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad type: expected 400, got %d", rec.Code)
	}

	rec := doJSON(t, srv, http.MethodPost, "/upload", map[string]string{
		"document_name": "doc.txt",
		"document_type": "txt",
		"unexpected":    "field",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field: expected 400, got %d", rec.Code)
	}
}

func TestUploadEmptyTextSucceeds(t *testing.T) {
	srv := newMemoryServer()

	rec := uploadText(t, srv, "empty.txt", "txt", "   \n ")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var up uploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &up); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !up.Success || up.Chunks != 0 {
		t.Fatalf("expected zero-chunk success, got %+v", up)
	}
	if up.Message != "no text content in empty.txt" {
		t.Fatalf("unexpected message: %q", up.Message)
	}
}

func TestUploadExtractionFailureReturns422(t *testing.T) {
	srv := newMemoryServer()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "broken.json")
	fw.Write([]byte("{not json"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestQueryValidation(t *testing.T) {
	srv := newMemoryServer()

	if rec := doJSON(t, srv, http.MethodGet, "/query", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing query: expected 400, got %d", rec.Code)
	}
	if rec := doJSON(t, srv, http.MethodGet, "/query?query=x&limit=abc", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: expected 400, got %d", rec.Code)
	}
	if rec := doJSON(t, srv, http.MethodGet, "/query?query=x&limit=0", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("zero limit: expected 400, got %d", rec.Code)
	}
}

func TestStoreDownMapsToBadGateway(t *testing.T) {
	srv := newTestServer(downStore{})

	if rec := uploadText(t, srv, "doc.txt", "txt", "some content"); rec.Code != http.StatusBadGateway {
		t.Fatalf("upload: expected 502, got %d", rec.Code)
	}
	if rec := doJSON(t, srv, http.MethodGet, "/query?query=x", nil); rec.Code != http.StatusBadGateway {
		t.Fatalf("query: expected 502, got %d", rec.Code)
	}
	if rec := doJSON(t, srv, http.MethodDelete, "/delete", nil); rec.Code != http.StatusBadGateway {
		t.Fatalf("delete: expected 502, got %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newMemoryServer()

	cases := []struct {
		method, target, allow string
	}{
		{http.MethodGet, "/upload", http.MethodPost},
		{http.MethodPost, "/query", http.MethodGet},
		{http.MethodGet, "/delete", http.MethodDelete},
		{http.MethodPost, "/healthz", http.MethodGet},
	}

	for _, tc := range cases {
		rec := doJSON(t, srv, tc.method, tc.target, nil)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s %s: expected 405, got %d", tc.method, tc.target, rec.Code)
		}
		if got := rec.Header().Get("Allow"); got != tc.allow {
			t.Fatalf("%s %s: expected Allow %s, got %q", tc.method, tc.target, tc.allow, got)
		}
	}
}

func TestHealthz(t *testing.T) {
	srv := newMemoryServer()

	rec := doJSON(t, srv, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected permissive CORS origin, got %q", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newMemoryServer()

	rec := doJSON(t, srv, http.MethodOptions, "/query", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "DELETE") {
		t.Fatalf("expected DELETE in allowed methods, got %q", got)
	}
}
