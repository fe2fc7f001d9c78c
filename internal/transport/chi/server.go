package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	gochi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	domentry "github.com/kailas-cloud/flagsearch/internal/domain/entry"
	"github.com/kailas-cloud/flagsearch/internal/domain/search/query"
	"github.com/kailas-cloud/flagsearch/internal/metrics"
	healthuc "github.com/kailas-cloud/flagsearch/internal/usecase/health"
	searchuc "github.com/kailas-cloud/flagsearch/internal/usecase/search"
)

// imageExtensions are the upload types accepted by POST /flags/image.
// Files without an extension are passed through and sniffed by the decoder.
var imageExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".gif":  {},
	".webp": {},
}

// CorpusReader exposes the loaded corpus to the read endpoints.
type CorpusReader interface {
	EntryAt(i int) (domentry.Flag, error)
	IndexOf(name string) (int, bool)
	Size() int
	Dim() int
}

// Limits bounds request parameters.
type Limits struct {
	DefaultTopK    int
	MaxTopK        int
	MaxUploadBytes int64
}

// Server serves the flag search HTTP API.
type Server struct {
	search        *searchuc.Service
	corpus        CorpusReader
	health        *healthuc.Service
	limits        Limits
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	search *searchuc.Service,
	corpus CorpusReader,
	health *healthuc.Service,
	limits Limits,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		search:        search,
		corpus:        corpus,
		health:        health,
		limits:        limits,
		logger:        logger,
		errorHandlers: defaultErrorHandlers(),
	}
}

// Mount registers the API routes on r.
func (s *Server) Mount(r gochi.Router) {
	r.Post("/flags", s.SearchText)
	r.Post("/flags/image", s.SearchImage)
	r.Post("/flags/vector", s.SearchVector)
	r.Get("/flags/by-name/{name}", s.GetFlagByName)
	r.Get("/flags/{index}", s.GetFlag)
	r.Get("/corpus", s.GetCorpus)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, ErrorCodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrorCodeMethodNotAllowed, "method not allowed")
	})
}

// SearchText handles POST /flags.
func (s *Server) SearchText(w http.ResponseWriter, r *http.Request) {
	var req TextSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	topK, ok := s.resolveTopK(w, req.TopK)
	if !ok {
		return
	}

	results, err := s.search.Search(r.Context(), query.Text(req.TextQuery), topK)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resultsToResponse(results))
}

// SearchImage handles POST /flags/image (multipart field "file", optional field "top_k").
func (s *Server) SearchImage(w http.ResponseWriter, r *http.Request) {
	limit := s.limits.MaxUploadBytes
	if limit > 0 {
		if r.ContentLength > limit {
			writeError(w, http.StatusRequestEntityTooLarge, ErrorCodePayloadTooLarge,
				fmt.Sprintf("upload exceeds %d bytes", limit))
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}

	if err := r.ParseMultipartForm(limit); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrorCodePayloadTooLarge,
				fmt.Sprintf("upload exceeds %d bytes", limit))
			return
		}
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid multipart body: "+err.Error())
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	topK, ok := s.formTopK(w, r.FormValue("top_k"))
	if !ok {
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, "file is required")
		return
	}
	defer func() { _ = file.Close() }()

	if ext := strings.ToLower(filepath.Ext(header.Filename)); ext != "" {
		if _, ok := imageExtensions[ext]; !ok {
			writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed,
				fmt.Sprintf("unsupported image type %q", ext))
			return
		}
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "failed to read upload")
		return
	}
	metrics.ObserveUpload(len(data))

	results, err := s.search.Search(r.Context(), query.Image(data), topK)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resultsToResponse(results))
}

// SearchVector handles POST /flags/vector.
func (s *Server) SearchVector(w http.ResponseWriter, r *http.Request) {
	var req VectorSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Embedding) == 0 {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, "embedding is required")
		return
	}

	topK, ok := s.resolveTopK(w, req.TopK)
	if !ok {
		return
	}

	results, err := s.search.SearchVector(r.Context(), req.Embedding, topK)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resultsToResponse(results))
}

// GetFlag handles GET /flags/{index}.
func (s *Server) GetFlag(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(gochi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "index must be an integer")
		return
	}

	f, err := s.corpus.EntryAt(index)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, flagToResponse(&f, index))
}

// GetFlagByName handles GET /flags/by-name/{name}.
func (s *Server) GetFlagByName(w http.ResponseWriter, r *http.Request) {
	name := gochi.URLParam(r, "name")
	index, ok := s.corpus.IndexOf(name)
	if !ok {
		writeError(w, http.StatusNotFound, ErrorCodeFlagNotFound, fmt.Sprintf("flag %q not found", name))
		return
	}

	f, err := s.corpus.EntryAt(index)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, flagToResponse(&f, index))
}

// GetCorpus handles GET /corpus.
func (s *Server) GetCorpus(w http.ResponseWriter, _ *http.Request) {
	text, image := s.search.Capabilities()
	writeJSON(w, http.StatusOK, CorpusResponse{
		Size:        s.corpus.Size(),
		Dimensions:  s.corpus.Dim(),
		TextSearch:  text,
		ImageSearch: image,
	})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// resolveTopK applies the default and the upper bound. Values below 1 are left to the ranker.
func (s *Server) resolveTopK(w http.ResponseWriter, topK *int) (int, bool) {
	if topK == nil {
		return s.limits.DefaultTopK, true
	}
	if s.limits.MaxTopK > 0 && *topK > s.limits.MaxTopK {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed,
			fmt.Sprintf("top_k must not exceed %d", s.limits.MaxTopK))
		return 0, false
	}
	return *topK, true
}

func (s *Server) formTopK(w http.ResponseWriter, raw string) (int, bool) {
	if raw == "" {
		return s.resolveTopK(w, nil)
	}
	k, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, "top_k must be an integer")
		return 0, false
	}
	return s.resolveTopK(w, &k)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}
