// Package api exposes the document ingestion and search workflows over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fabfab/docrag/config"
	"github.com/fabfab/docrag/ingestion"
	"github.com/fabfab/docrag/query"
	"github.com/fabfab/docrag/store"
)

// maxUploadMemory bounds how much of a multipart upload stays in memory
// before spilling to disk.
const maxUploadMemory = 32 << 20

// Server exposes HTTP handlers for upload, query, and delete.
type Server struct {
	cfg     config.Config
	store   store.Store
	uploads *ingestion.Service
	queries *query.Service
	logger  *log.Logger
	handler http.Handler
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type uploadRequest struct {
	DocumentName string `json:"document_name"`
	DocumentType string `json:"document_type"`
	Text         string `json:"text"`
}

type uploadResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Chunks  int    `json:"chunks"`
}

// New constructs a Server bound to the given store.
func New(cfg config.Config, st store.Store, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		cfg:     cfg,
		store:   st,
		uploads: ingestion.NewService(st, cfg.Chunking.Size, cfg.Chunking.Overlap, logger),
		queries: query.NewService(st, logger),
		logger:  logger,
	}
	s.handler = withCORS(s.routes())
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/upload", s.handleUpload)
	mux.HandleFunc("/query", s.handleQuery)
	mux.HandleFunc("/delete", s.handleDelete)
	return mux
}

// withCORS allows browser clients from any origin and answers preflight
// requests directly.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	s.writeJSON(w, http.StatusOK, messageResponse{Message: "ok"})
}

// handleUpload accepts either a multipart form with a "file" field or a JSON
// body carrying already-extracted text.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		s.handleUploadFile(w, r)
		return
	}
	s.handleUploadText(w, r)
}

func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("parse multipart form: %w", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("file field is required"))
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if ingestion.DetectFormat(name) == ingestion.FormatUnknown {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("file type %q not allowed, supported: %s", filepath.Ext(name), supportedFormats()))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("read upload: %w", err))
		return
	}

	receipt, err := s.uploads.Upload(r.Context(), name, data)
	if err != nil {
		s.writeError(w, statusFromError(err), fmt.Errorf("upload failed: %w", err))
		return
	}

	s.writeJSON(w, http.StatusOK, uploadReceipt(receipt))
}

func (s *Server) handleUploadText(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	name := strings.TrimSpace(req.DocumentName)
	if name == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("document_name is required"))
		return
	}

	format := ingestion.ParseFormat(req.DocumentType)
	if format == ingestion.FormatUnknown {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("document_type %q not allowed, supported: %s", req.DocumentType, supportedFormats()))
		return
	}

	receipt, err := s.uploads.UploadText(r.Context(), name, format, req.Text)
	if err != nil {
		s.writeError(w, statusFromError(err), fmt.Errorf("upload failed: %w", err))
		return
	}

	s.writeJSON(w, http.StatusOK, uploadReceipt(receipt))
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	q := r.URL.Query().Get("query")

	limit := query.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("limit must be an integer"))
			return
		}
		limit = parsed
	}

	resp, err := s.queries.Search(r.Context(), q, limit)
	if err != nil {
		s.writeError(w, statusFromError(err), fmt.Errorf("query failed: %w", err))
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		s.methodNotAllowed(w, http.MethodDelete)
		return
	}

	if err := s.store.Reset(r.Context()); err != nil {
		s.writeError(w, statusFromError(err), fmt.Errorf("delete failed: %w", err))
		return
	}

	s.logger.Println("all stored documents deleted")
	s.writeJSON(w, http.StatusOK, messageResponse{Message: "all documents deleted"})
}

func uploadReceipt(receipt ingestion.Receipt) uploadResponse {
	message := fmt.Sprintf("processed %s", receipt.DocumentName)
	if receipt.Chunks == 0 {
		message = fmt.Sprintf("no text content in %s", receipt.DocumentName)
	}
	return uploadResponse{
		Success: true,
		Message: message,
		Chunks:  receipt.Chunks,
	}
}

func supportedFormats() string {
	formats := ingestion.Formats()
	names := make([]string, len(formats))
	for i, format := range formats {
		names[i] = string(format)
	}
	return strings.Join(names, ", ")
}

// statusFromError maps pipeline errors onto HTTP status codes: bad input 400,
// failed extraction 422, unreachable store 502, everything else 500.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, ingestion.ErrUnsupportedFormat),
		errors.Is(err, ingestion.ErrInvalidChunking),
		errors.Is(err, query.ErrEmptyQuery),
		errors.Is(err, query.ErrInvalidLimit):
		return http.StatusBadRequest
	case errors.Is(err, ingestion.ErrExtraction):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed, use %s", allowed))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Printf("encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Printf("api error (%d): %v", status, err)
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}

	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}

	return nil
}
